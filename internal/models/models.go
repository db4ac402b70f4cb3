// Package models defines the core data structures for HarvestFlow.
//
// It includes the conversation state record shared by every transport adapter,
// plus the API response envelope used by the HTTP and WebSocket layers.
package models

import (
	"errors"
	"time"
)

// Intent identifies what kind of form a conversation is filling.
type Intent string

const (
	// IntentProduct collects a new product listing.
	IntentProduct Intent = "product"
	// IntentPost collects a social post about an existing product.
	IntentPost Intent = "post"
)

// IsValidIntent checks whether the given intent is supported.
func IsValidIntent(i Intent) bool {
	switch i {
	case IntentProduct, IntentPost:
		return true
	default:
		return false
	}
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Error variables for conditions callers branch on.
var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrEmptyMessage          = errors.New("message cannot be empty")
	ErrConversationFinalized = errors.New("conversation already finalized")
	ErrNoScheduleForIntent   = errors.New("no field schedule configured for intent")
)

// Message is one entry in a session's conversation transcript.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FieldValue is one collected answer. Collected data is kept as an ordered
// slice rather than a map so the question order survives serialization and
// drives the query-parameter order of the generated deep link.
type FieldValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CollectedData holds answers in the order they were collected.
type CollectedData []FieldValue

// Get returns the value for key and whether it is present.
func (d CollectedData) Get(key string) (string, bool) {
	for _, fv := range d {
		if fv.Key == key {
			return fv.Value, true
		}
	}
	return "", false
}

// Has reports whether key has been answered (even with an empty value).
func (d CollectedData) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Set appends a new key or overwrites the value of an existing one without
// changing its position.
func (d CollectedData) Set(key, value string) CollectedData {
	for i, fv := range d {
		if fv.Key == key {
			d[i].Value = value
			return d
		}
	}
	return append(d, FieldValue{Key: key, Value: value})
}

// Keys returns the answered keys in collection order.
func (d CollectedData) Keys() []string {
	keys := make([]string, 0, len(d))
	for _, fv := range d {
		keys = append(keys, fv.Key)
	}
	return keys
}

// ConversationState is the per-session record owned by the session store and
// read-modify-written by the engine on each turn.
type ConversationState struct {
	ID          string        `json:"id"`
	Messages    []Message     `json:"messages"`
	Intent      Intent        `json:"intent,omitempty"`
	BaseURL     string        `json:"base_url,omitempty"`
	Collected   CollectedData `json:"collected,omitempty"`
	AwaitingKey string        `json:"awaiting_key,omitempty"`
	Finalized   bool          `json:"finalized"`
	Summary     string        `json:"summary,omitempty"`
	CurrentURL  string        `json:"current_url,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewConversationState creates an empty, unclassified session record.
func NewConversationState(id string) *ConversationState {
	now := time.Now()
	return &ConversationState{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendMessage adds a message to the transcript and bumps UpdatedAt.
func (s *ConversationState) AppendMessage(role Role, text string) {
	now := time.Now()
	s.Messages = append(s.Messages, Message{Role: role, Text: text, Timestamp: now})
	s.UpdatedAt = now
}

// LastUserMessage returns the most recent message and whether it came from the
// user. The engine's save step only fires when the newest message is a user
// message.
func (s *ConversationState) LastUserMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	last := s.Messages[len(s.Messages)-1]
	return last, last.Role == RoleUser
}

// Reset returns the session to the unclassified state so a second form can be
// filled. The transcript is kept when keepHistory is true.
func (s *ConversationState) Reset(keepHistory bool) {
	if !keepHistory {
		s.Messages = nil
	}
	s.Intent = ""
	s.BaseURL = ""
	s.Collected = nil
	s.AwaitingKey = ""
	s.Finalized = false
	s.Summary = ""
	s.CurrentURL = ""
	s.UpdatedAt = time.Now()
}

// API response types for consistent JSON responses.

// APIStatus represents the status field of an API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
