// Package summary generates the closing summary for a completed form.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harvestflow/harvestflow/internal/genai"
	"github.com/harvestflow/harvestflow/internal/models"
)

// FallbackText is returned when generation fails. Finalization must complete
// even without a summary so the conversation cannot get stuck.
const FallbackText = "[Error generating summary]"

// Summarizer turns collected form data into a short human-readable summary.
type Summarizer struct {
	client genai.ClientInterface
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(client genai.ClientInterface) *Summarizer {
	return &Summarizer{client: client}
}

// Summarize builds the intent-specific prompt over the collected data and
// returns the generated text. On any failure it returns FallbackText instead
// of an error.
func (s *Summarizer) Summarize(ctx context.Context, intent models.Intent, data models.CollectedData) string {
	var prompt string
	switch intent {
	case models.IntentPost:
		prompt = "You are a social-media assistant. Combine the details below " +
			"into a catchy post caption (max 40 words).\n" +
			"Details: " + formatDetails(data)
	default:
		prompt = "You are a marketplace assistant. Using the details below, " +
			"write a short, compelling product listing (max 60 words).\n" +
			"Details: " + formatDetails(data)
	}

	text, err := s.client.Generate(ctx, prompt, "Write the summary now.")
	if err != nil {
		slog.Warn("Summarizer.Summarize: generation failed, using fallback text", "error", err, "intent", intent)
		return FallbackText
	}

	text = strings.TrimSpace(text)
	if text == "" {
		slog.Warn("Summarizer.Summarize: empty response, using fallback text", "intent", intent)
		return FallbackText
	}
	slog.Debug("Summarizer.Summarize: summary generated", "intent", intent, "length", len(text))
	return text
}

// formatDetails renders the collected data as "key: value" lines in
// collection order.
func formatDetails(data models.CollectedData) string {
	var sb strings.Builder
	for _, fv := range data {
		fmt.Fprintf(&sb, "\n- %s: %s", fv.Key, fv.Value)
	}
	return sb.String()
}
