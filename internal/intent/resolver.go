// Package intent classifies the user's first message into one of the two
// form-filling intents.
package intent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/harvestflow/harvestflow/internal/genai"
	"github.com/harvestflow/harvestflow/internal/models"
)

// classificationPrompt instructs the model to answer with exactly one token.
const classificationPrompt = `You are an intent classifier for an agricultural marketplace app.
Analyze the user message and classify it as exactly ONE of these intents:

1. "product" - When the user wants to add or create a new product listing
   Examples:
   - "I want to add a new product"
   - "I need to list my wheat crop for sale"
   - "Let me create a product entry for my rice harvest"

2. "post" - When the user wants to create a social post using an existing product
   Examples:
   - "I want to post about my existing product"
   - "I need to advertise the cotton I already listed"
   - "Help me create a post for my listed mangoes"

Return ONLY the word "product" or "post" without any additional text.`

// DefaultIntent is substituted whenever classification fails or returns an
// unrecognized token. Documented behavior: classifier failures are masked and
// the conversation proceeds as a product listing.
const DefaultIntent = models.IntentProduct

// Result is the outcome of one classification.
type Result struct {
	Intent models.Intent
	// FellBack is true when the default intent was substituted because the
	// classifier errored or answered with an unknown token. Callers should
	// log it; conversational behavior is identical either way.
	FellBack bool
	// Raw is the unparsed classifier response, kept for diagnostics.
	Raw string
}

// Resolver classifies user text via the text-generation capability.
type Resolver struct {
	client genai.ClientInterface
}

// NewResolver creates a Resolver.
func NewResolver(client genai.ClientInterface) *Resolver {
	return &Resolver{client: client}
}

// Resolve classifies userText. It never returns an error: any failure falls
// back to DefaultIntent with FellBack set. The engine calls this at most once
// per conversation, on the first user message.
func (r *Resolver) Resolve(ctx context.Context, userText string) Result {
	raw, err := r.client.Generate(ctx, classificationPrompt, userText)
	if err != nil {
		slog.Warn("Resolver.Resolve: classification failed, using default intent", "error", err, "default", DefaultIntent)
		return Result{Intent: DefaultIntent, FellBack: true}
	}

	token := firstToken(raw)
	tag := models.Intent(token)
	if !models.IsValidIntent(tag) {
		slog.Warn("Resolver.Resolve: unrecognized intent token, using default intent", "token", token, "default", DefaultIntent)
		return Result{Intent: DefaultIntent, FellBack: true, Raw: raw}
	}

	slog.Debug("Resolver.Resolve: intent classified", "intent", tag)
	return Result{Intent: tag, Raw: raw}
}

// firstToken returns the first whitespace-delimited token of s, lowercased.
func firstToken(s string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
