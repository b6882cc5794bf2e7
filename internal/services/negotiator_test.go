package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type fakeBackend struct {
	mu        sync.Mutex
	requests  []chatCompletionsRequest
	responses []func(w http.ResponseWriter, req chatCompletionsRequest)
}

func (f *fakeBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		idx := len(f.requests) - 1
		f.mu.Unlock()
		if idx >= len(f.responses) {
			idx = len(f.responses) - 1
		}
		f.responses[idx](w, req)
	}
}

func respondContent(content string) func(w http.ResponseWriter, req chatCompletionsRequest) {
	return func(w http.ResponseWriter, req chatCompletionsRequest) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}
}

func respondContextLengthError() func(w http.ResponseWriter, req chatCompletionsRequest) {
	return func(w http.ResponseWriter, req chatCompletionsRequest) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "This model's maximum context length is 2048 tokens. However, your request has 1900 input tokens."}}`))
	}
}

const validSkillSetJSON = `{"skills": [{"skill_id": "s1", "name": "Fractions", "description": "", "weight": 0.7, "is_prerequisite": false}], "skill_dependencies": {}}`

func newTestNegotiator(t *testing.T, backend *fakeBackend) *Negotiator {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)
	client := NewOpenAIClientForTest(testLogger(t), srv.URL, "test-model", 0)
	return NewNegotiator(testLogger(t), client, nil)
}

func TestRequestJSONBudgetRenegotiation(t *testing.T) {
	backend := &fakeBackend{
		responses: []func(w http.ResponseWriter, req chatCompletionsRequest){
			respondContextLengthError(),
			respondContent(validSkillSetJSON),
		},
	}
	n := newTestNegotiator(t, backend)

	payload, err := n.RequestJSON(context.Background(), nil, "extract_skills", SchemaSkillSet, "sys", "user")
	if err != nil {
		t.Fatalf("RequestJSON error: %v", err)
	}
	if _, ok := payload["skills"]; !ok {
		t.Fatalf("payload missing skills: %v", payload)
	}

	if len(backend.requests) != 2 {
		t.Fatalf("got %d requests, want 2", len(backend.requests))
	}
	if backend.requests[0].MaxTokens != 512 {
		t.Fatalf("first max_tokens=%d, want initial 512", backend.requests[0].MaxTokens)
	}
	// budget 2048-1900=148, minus the 64 safety margin
	if backend.requests[1].MaxTokens != 84 {
		t.Fatalf("second max_tokens=%d, want 84", backend.requests[1].MaxTokens)
	}
}

func TestRequestJSONTruncationBump(t *testing.T) {
	backend := &fakeBackend{
		responses: []func(w http.ResponseWriter, req chatCompletionsRequest){
			respondContent(`{"skills": [`),
			respondContent(validSkillSetJSON),
		},
	}
	n := newTestNegotiator(t, backend)

	if _, err := n.RequestJSON(context.Background(), nil, "extract_skills", SchemaSkillSet, "sys", "user"); err != nil {
		t.Fatalf("RequestJSON error: %v", err)
	}
	if len(backend.requests) != 2 {
		t.Fatalf("got %d requests, want 2", len(backend.requests))
	}
	if backend.requests[1].MaxTokens != 512+64 {
		t.Fatalf("second max_tokens=%d, want %d", backend.requests[1].MaxTokens, 512+64)
	}
}

// Shrinks and truncation bumps have independent caps: a full run of ten
// context-length rejections must not exhaust the retry a later truncated
// completion needs.
func TestRequestJSONShrinksDoNotConsumeTruncationBudget(t *testing.T) {
	responses := make([]func(w http.ResponseWriter, req chatCompletionsRequest), 0, 12)
	for i := 0; i < 10; i++ {
		responses = append(responses, respondContextLengthError())
	}
	responses = append(responses,
		respondContent(`{"skills": [`),
		respondContent(validSkillSetJSON),
	)
	backend := &fakeBackend{responses: responses}
	n := newTestNegotiator(t, backend)

	payload, err := n.RequestJSON(context.Background(), nil, "extract_skills", SchemaSkillSet, "sys", "user")
	if err != nil {
		t.Fatalf("RequestJSON error: %v", err)
	}
	if _, ok := payload["skills"]; !ok {
		t.Fatalf("payload missing skills: %v", payload)
	}
	if len(backend.requests) != 12 {
		t.Fatalf("got %d requests, want 12", len(backend.requests))
	}
}

func TestRequestJSONRepairPath(t *testing.T) {
	// aliased fields: invalid on strict parse, fixable by repair
	backend := &fakeBackend{
		responses: []func(w http.ResponseWriter, req chatCompletionsRequest){
			respondContent(`{"skills": [{"skillId": "s1", "title": "Fractions"}]}`),
		},
	}
	n := newTestNegotiator(t, backend)

	payload, err := n.RequestJSON(context.Background(), nil, "extract_skills", SchemaSkillSet, "sys", "user")
	if err != nil {
		t.Fatalf("RequestJSON error: %v", err)
	}
	skill := payload["skills"].([]any)[0].(map[string]any)
	if skill["skill_id"] != "s1" {
		t.Fatalf("repair did not run: %v", skill)
	}
	if len(backend.requests) != 1 {
		t.Fatalf("repairable output should not consume a retry, got %d requests", len(backend.requests))
	}
}

func TestRequestJSONParseRetriesExhausted(t *testing.T) {
	backend := &fakeBackend{
		responses: []func(w http.ResponseWriter, req chatCompletionsRequest){
			respondContent("not json at all"),
		},
	}
	n := newTestNegotiator(t, backend)

	_, err := n.RequestJSON(context.Background(), nil, "extract_skills", SchemaSkillSet, "sys", "user")
	if !errors.Is(err, ErrNegotiationExhausted) {
		t.Fatalf("err=%v, want ErrNegotiationExhausted", err)
	}
	// initial attempt plus maxParseRetries
	if len(backend.requests) != 3 {
		t.Fatalf("got %d requests, want 3", len(backend.requests))
	}

	last := backend.requests[len(backend.requests)-1]
	var userMsg string
	for _, m := range last.Messages {
		if m.Role == "user" {
			userMsg = m.Content
		}
	}
	if !strings.Contains(userMsg, "Return ONLY a valid JSON object") {
		t.Fatalf("stricter retry prompt missing instruction: %q", userMsg)
	}
}
