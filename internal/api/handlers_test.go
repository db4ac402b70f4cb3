package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harvestflow/harvestflow/internal/engine"
	"github.com/harvestflow/harvestflow/internal/intent"
	"github.com/harvestflow/harvestflow/internal/models"
	"github.com/harvestflow/harvestflow/internal/schedule"
	"github.com/harvestflow/harvestflow/internal/store"
)

type stubResolver struct {
	intent models.Intent
}

func (r *stubResolver) Resolve(_ context.Context, _ string) intent.Result {
	return intent.Result{Intent: r.intent}
}

type stubSummarizer struct{}

func (s *stubSummarizer) Summarize(_ context.Context, _ models.Intent, _ models.CollectedData) string {
	return "Fresh produce, ready to sell."
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	st := store.NewInMemoryStore()
	t.Cleanup(func() { st.Close() })
	eng := engine.New(schedule.Default(), &stubResolver{intent: models.IntentProduct}, &stubSummarizer{})
	srv := NewServer(st, eng, schedule.Default(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, models.APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	var envelope models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode response envelope: %v", err)
	}
	return resp, envelope
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, envelope := doJSON(t, http.MethodPost, ts.URL+"/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201 creating session, got %d", resp.StatusCode)
	}
	result, ok := envelope.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected result object, got %T", envelope.Result)
	}
	id, _ := result["session_id"].(string)
	if id == "" {
		t.Fatal("expected non-empty session_id")
	}
	return id
}

func sendTurn(t *testing.T, ts *httptest.Server, id, message string) map[string]interface{} {
	t.Helper()
	resp, envelope := doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/turns", ts.URL, id), map[string]string{"message": message})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for turn, got %d", resp.StatusCode)
	}
	result, ok := envelope.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected result object, got %T", envelope.Result)
	}
	return result
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)
	resp, envelope := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if envelope.Status != string(models.APIStatusOK) {
		t.Errorf("expected ok status, got %q", envelope.Status)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)

	resp, envelope := doJSON(t, http.MethodGet, ts.URL+"/sessions/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	state, ok := envelope.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected result object, got %T", envelope.Result)
	}
	if state["id"] != id {
		t.Errorf("expected session id %q, got %v", id, state["id"])
	}
}

func TestGetSessionNotFound(t *testing.T) {
	_, ts := newTestServer(t)
	resp, envelope := doJSON(t, http.MethodGet, ts.URL+"/sessions/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", resp.StatusCode)
	}
	if envelope.Status != string(models.APIStatusError) {
		t.Errorf("expected error status, got %q", envelope.Status)
	}
}

func TestTurnMissingMessage(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)
	resp, _ := doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/turns", ts.URL, id), map[string]string{"text": "hi"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400 for missing message field, got %d", resp.StatusCode)
	}
}

func TestTurnUnknownSession(t *testing.T) {
	_, ts := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/sessions/missing/turns", map[string]string{"message": "hi"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", resp.StatusCode)
	}
}

func TestTurnEmptyMessageIsAccepted(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)
	sendTurn(t, ts, id, "I want to sell my tomatoes")
	result := sendTurn(t, ts, id, "")
	if result["next_field_key"] != "category" {
		t.Errorf("expected empty answer to advance to category, got %v", result["next_field_key"])
	}
}

func TestProductConversationOverHTTP(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)

	answers := []string{
		"I want to sell my tomatoes",
		"Fresh Tomatoes",
		"Vegetables",
		"Organic, picked this morning",
		"40",
		"25",
		"kg",
	}
	var last map[string]interface{}
	for _, msg := range answers {
		last = sendTurn(t, ts, id, msg)
	}

	if last["done"] != true {
		t.Fatalf("expected conversation to be done, got %v", last["done"])
	}
	text, _ := last["assistant_text"].(string)
	if !strings.Contains(text, "Fresh produce, ready to sell.") {
		t.Errorf("expected final text to contain the summary, got %q", text)
	}
	url, _ := last["current_url"].(string)
	if !strings.Contains(url, "/app/add/product?") {
		t.Errorf("expected final URL under /app/add/product, got %q", url)
	}
	if !strings.Contains(url, "name=Fresh+Tomatoes") {
		t.Errorf("expected encoded name param, got %q", url)
	}
}

func TestTurnAfterFinalizationDoesNotMutate(t *testing.T) {
	srv, ts := newTestServer(t)
	id := createSession(t, ts)
	for _, msg := range []string{"selling tomatoes", "Tomatoes", "Vegetables", "Fresh", "40", "25", "kg"} {
		sendTurn(t, ts, id, msg)
	}

	before, err := srv.st.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	msgCount := len(before.Messages)

	result := sendTurn(t, ts, id, "one more thing")
	if result["done"] != true {
		t.Errorf("expected done on resubmission, got %v", result["done"])
	}
	text, _ := result["assistant_text"].(string)
	if !strings.Contains(text, "already complete") {
		t.Errorf("expected already-complete notice, got %q", text)
	}

	after, err := srv.st.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if len(after.Messages) != msgCount {
		t.Errorf("expected transcript unchanged after finalized turn, got %d messages, want %d", len(after.Messages), msgCount)
	}
}

func TestResetSession(t *testing.T) {
	srv, ts := newTestServer(t)
	id := createSession(t, ts)
	sendTurn(t, ts, id, "selling tomatoes")
	sendTurn(t, ts, id, "Tomatoes")

	resp, _ := doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/reset", ts.URL, id), map[string]bool{"keep_history": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for reset, got %d", resp.StatusCode)
	}

	state, err := srv.st.GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if state.Intent != "" || len(state.Collected) != 0 || state.AwaitingKey != "" {
		t.Errorf("expected form progress cleared, got intent=%q collected=%d awaiting=%q", state.Intent, len(state.Collected), state.AwaitingKey)
	}
	if len(state.Messages) == 0 {
		t.Error("expected message history to be kept")
	}
}

func TestDeleteSession(t *testing.T) {
	_, ts := newTestServer(t)
	id := createSession(t, ts)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 for delete, got %d", resp.StatusCode)
	}

	getResp, _ := doJSON(t, http.MethodGet, ts.URL+"/sessions/"+id, nil)
	if getResp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404 after delete, got %d", getResp.StatusCode)
	}
}

func TestListSessions(t *testing.T) {
	_, ts := newTestServer(t)
	first := createSession(t, ts)
	second := createSession(t, ts)

	_, envelope := doJSON(t, http.MethodGet, ts.URL+"/sessions", nil)
	result, ok := envelope.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected result object, got %T", envelope.Result)
	}
	ids, _ := result["session_ids"].([]interface{})
	if len(ids) != 2 {
		t.Fatalf("expected 2 session ids, got %d", len(ids))
	}
	seen := map[string]bool{}
	for _, v := range ids {
		id, _ := v.(string)
		seen[id] = true
	}
	if !seen[first] || !seen[second] {
		t.Errorf("expected both sessions listed, got %v", seen)
	}
}
