// Package engine implements the form-filling conversation state machine.
//
// The engine is a pure function of (state, input): it owns no process-wide
// state, holds no locks, and touches the outside world only through the two
// injected capabilities (intent resolution and summarization). Transport
// adapters load a session's state, run one turn, and persist the result;
// turns for one session are assumed to arrive strictly sequentially.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harvestflow/harvestflow/internal/deeplink"
	"github.com/harvestflow/harvestflow/internal/intent"
	"github.com/harvestflow/harvestflow/internal/models"
	"github.com/harvestflow/harvestflow/internal/schedule"
)

// Resolver classifies the first user message of a conversation.
type Resolver interface {
	Resolve(ctx context.Context, userText string) intent.Result
}

// Summarizer generates the closing summary for a completed form. It never
// fails; summary errors are absorbed into fallback text.
type Summarizer interface {
	Summarize(ctx context.Context, intent models.Intent, data models.CollectedData) string
}

// TurnResult is what one engine turn hands back to the transport adapter.
type TurnResult struct {
	// AssistantText is always non-empty: every turn, including every failure
	// path, produces conversational output.
	AssistantText string `json:"assistant_text"`
	// CurrentURL is the deep link over the data collected so far.
	CurrentURL string `json:"current_url"`
	// NextFieldKey is the key the conversation now awaits, empty when done.
	NextFieldKey string `json:"next_field_key,omitempty"`
	// Done is true once the conversation is finalized.
	Done bool `json:"done"`
	// IntentFellBack reports that this turn's classification substituted the
	// default intent. Adapters log it; the conversation is unaffected.
	IntentFellBack bool `json:"-"`
}

// Engine executes conversation turns against injected schedules and
// capabilities.
type Engine struct {
	schedules  schedule.Config
	resolver   Resolver
	summarizer Summarizer
}

// New creates an Engine.
func New(schedules schedule.Config, resolver Resolver, summarizer Summarizer) *Engine {
	return &Engine{schedules: schedules, resolver: resolver, summarizer: summarizer}
}

// ProcessTurn runs one turn: save the pending answer if any, classify the
// intent on the first turn, then either ask the next question or finalize.
// The state is mutated in place; callers persist it afterwards.
func (e *Engine) ProcessTurn(ctx context.Context, state *models.ConversationState, userInput string) *TurnResult {
	slog.Debug("Engine.ProcessTurn: turn started", "sessionID", state.ID, "intent", state.Intent, "awaitingKey", state.AwaitingKey, "finalized", state.Finalized)

	// Finalized conversations are read-only: late or duplicate submissions
	// get the stored summary back and mutate nothing.
	if state.Finalized {
		slog.Debug("Engine.ProcessTurn: conversation already finalized", "sessionID", state.ID)
		return &TurnResult{
			AssistantText: AlreadyCompleteNotice(state),
			CurrentURL:    state.CurrentURL,
			Done:          true,
		}
	}

	state.AppendMessage(models.RoleUser, userInput)

	// Save step: the pending answer is stored verbatim after trimming. An
	// empty answer still counts as answered; it just contributes nothing to
	// the URL.
	if state.AwaitingKey != "" {
		if _, fromUser := state.LastUserMessage(); fromUser {
			answer := strings.TrimSpace(userInput)
			slog.Debug("Engine.ProcessTurn: saving answer", "sessionID", state.ID, "key", state.AwaitingKey, "empty", answer == "")
			state.Collected = state.Collected.Set(state.AwaitingKey, answer)
		}
		state.AwaitingKey = ""
	}

	// Classify step: runs exactly once, on the conversation's first user
	// message. That message is consumed for intent detection and is not an
	// answer to any field.
	var fellBack bool
	if state.Intent == "" {
		res := e.resolver.Resolve(ctx, userInput)
		fellBack = res.FellBack
		if fellBack {
			slog.Warn("Engine.ProcessTurn: intent classification fell back to default", "sessionID", state.ID, "intent", res.Intent)
		} else {
			slog.Info("Engine.ProcessTurn: intent classified", "sessionID", state.ID, "intent", res.Intent)
		}
		state.Intent = res.Intent
		state.BaseURL = e.schedules.BaseURL(res.Intent)
		state.Collected = nil
		state.AwaitingKey = ""
		state.Finalized = false
		state.Summary = ""
	}

	// A classified conversation without a configured schedule cannot make
	// progress; finalize with an apology instead of looping forever.
	if !e.schedules.HasIntent(state.Intent) {
		slog.Error("Engine.ProcessTurn: no schedule for intent, aborting conversation", "sessionID", state.ID, "intent", state.Intent)
		state.Finalized = true
		state.AwaitingKey = ""
		text := "Sorry, something went wrong on our side and this request cannot be completed. Please start a new conversation."
		state.AppendMessage(models.RoleAssistant, text)
		return &TurnResult{AssistantText: text, CurrentURL: state.CurrentURL, Done: true, IntentFellBack: fellBack}
	}

	state.CurrentURL = deeplink.Encode(state.BaseURL, state.Collected)

	// Advance step: ask the first unanswered field, or finalize when none
	// remains.
	if next, ok := e.schedules.NextField(state.Intent, state.Collected); ok {
		text := fmt.Sprintf("%s\n(please type your answer)\n\nCurrent progress URL: %s", next.Prompt, state.CurrentURL)
		state.AwaitingKey = next.Key
		state.AppendMessage(models.RoleAssistant, text)
		slog.Debug("Engine.ProcessTurn: asking next question", "sessionID", state.ID, "key", next.Key)
		return &TurnResult{
			AssistantText:  text,
			CurrentURL:     state.CurrentURL,
			NextFieldKey:   next.Key,
			IntentFellBack: fellBack,
		}
	}

	// Finalize step: all fields collected. Summary generation may fall back
	// to sentinel text but finalization always completes.
	summaryText := e.summarizer.Summarize(ctx, state.Intent, state.Collected)
	state.Summary = summaryText
	state.Finalized = true
	state.AwaitingKey = ""
	text := fmt.Sprintf("All questions answered! Here is a concise summary:\n\n%s\n\nFinal submission link:\n%s", summaryText, state.CurrentURL)
	state.AppendMessage(models.RoleAssistant, text)
	slog.Info("Engine.ProcessTurn: conversation finalized", "sessionID", state.ID, "intent", state.Intent, "fields", len(state.Collected))
	return &TurnResult{
		AssistantText:  text,
		CurrentURL:     state.CurrentURL,
		Done:           true,
		IntentFellBack: fellBack,
	}
}

// Reset returns a session to the unclassified state so a second form can be
// filled. This is the only way past a finalized conversation.
func (e *Engine) Reset(state *models.ConversationState, keepHistory bool) {
	slog.Info("Engine.Reset: resetting conversation", "sessionID", state.ID, "keepHistory", keepHistory)
	state.Reset(keepHistory)
}

// AlreadyCompleteNotice rebuilds the closing notice for a finalized session.
// Transport adapters use it to answer late or duplicate submissions without
// re-entering the state machine.
func AlreadyCompleteNotice(state *models.ConversationState) string {
	if state.Summary == "" {
		return "This conversation is already complete. Start a new conversation to fill another form."
	}
	return fmt.Sprintf("This conversation is already complete. Here is the summary again:\n\n%s\n\nFinal submission link:\n%s", state.Summary, state.CurrentURL)
}
