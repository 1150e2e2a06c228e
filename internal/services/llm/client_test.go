package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"subtitler/internal/services"
	"subtitler/internal/services/httpretry"
	"subtitler/internal/testsupport"
)

func replyServer(t *testing.T, choice map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewEncoder(w).Encode(map[string]any{"choices": []any{choice}}); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func quickRetries(attempts int) []Option {
	return []Option{
		WithRetryMaxAttempts(attempts),
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	}
}

func TestCompleteSendsPromptAndHeaders(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if title := r.Header.Get("X-Title"); title != "Subtitler" {
			t.Errorf("unexpected title header %q", title)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": `{"translation":"Hola"}`}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: " test ", BaseURL: server.URL, Model: "demo-model", Title: "Subtitler"})
	content, err := client.Complete(context.Background(), Prompt{System: "sys", User: "Hello", JSON: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if content != `{"translation":"Hola"}` {
		t.Fatalf("unexpected content %q", content)
	}
	if got.Model != "demo-model" || len(got.Messages) != 2 || got.Messages[1].Content != "Hello" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.ResponseFormat["type"] != "json_object" {
		t.Fatalf("expected json response format, got %v", got.ResponseFormat)
	}
}

func TestCompleteWithoutSystemPromptOrJSON(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})
	req := client.newRequest(Prompt{User: "Hi"})
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.ResponseFormat != nil {
		t.Fatalf("unexpected request %+v", req)
	}
	if client.cfg.BaseURL != defaultBaseURL || client.httpClient.Timeout != defaultHTTPTimeout {
		t.Fatalf("expected defaults, got %+v", client.cfg)
	}
}

func TestCompleteValidation(t *testing.T) {
	client := NewClient(Config{})
	if client.Configured() {
		t.Fatal("client without key must not be configured")
	}
	if _, err := client.Complete(context.Background(), Prompt{User: "Hi"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	client = NewClient(Config{APIKey: "k"})
	if _, err := client.Complete(context.Background(), Prompt{User: "  "}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCompleteReplyShapes(t *testing.T) {
	tests := []struct {
		name   string
		choice map[string]any
	}{
		{"message", map[string]any{"message": map[string]any{"content": " Hallo "}}},
		{"delta", map[string]any{"delta": map[string]any{"content": "Hallo"}}},
		{"legacy text", map[string]any{"finish_reason": "stop", "text": "Hallo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := replyServer(t, tt.choice)
			client := NewClient(Config{APIKey: "test", BaseURL: server.URL})
			content, err := client.Complete(context.Background(), Prompt{User: "Hello"})
			if err != nil || content != "Hallo" {
				t.Fatalf("Complete = %q, %v", content, err)
			}
		})
	}
}

func TestCompleteEmptyReplyIsRetriedThenReported(t *testing.T) {
	server := replyServer(t, map[string]any{
		"finish_reason": "content_filter",
		"message":       map[string]any{"content": "", "refusal": "cannot help"},
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL}, quickRetries(2)...)
	_, err := client.Complete(context.Background(), Prompt{User: "Hello"})
	if err == nil {
		t.Fatal("expected completion to fail")
	}
	for _, want := range []string{"failed after 2 attempts", "finish_reason=content_filter", "refused: cannot help", "response:"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in error, got %v", want, err)
		}
	}
}

func TestCompleteRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "Salom"}}},
		})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test", BaseURL: server.URL},
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	content, err := client.Complete(context.Background(), Prompt{User: "Hello"})
	if err != nil || content != "Salom" {
		t.Fatalf("Complete = %q, %v", content, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected a single 1s sleep, got %v", slept)
	}
}

func TestPing(t *testing.T) {
	server := replyServer(t, map[string]any{"message": map[string]any{"content": "```json\n{\"ok\":true}\n```"}})
	if err := NewClient(Config{APIKey: "test", BaseURL: server.URL}).Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	unauthorized := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer unauthorized.Close()
	err := NewClient(Config{APIKey: "bad", BaseURL: unauthorized.URL}).Ping(context.Background())
	var statusErr *httpretry.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
}

func TestConfigFromApp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	got := ConfigFromApp(cfg)
	if got.APIKey != "test" || got.BaseURL != cfg.LLM.BaseURL || got.Model != cfg.LLM.Model {
		t.Fatalf("unexpected mapping %+v", got)
	}
	if got.Timeout != time.Duration(cfg.LLM.TimeoutSeconds)*time.Second {
		t.Fatalf("unexpected timeout %s", got.Timeout)
	}
}

func TestDecodeJSON(t *testing.T) {
	var parsed struct {
		Translation string `json:"translation"`
	}
	for _, reply := range []string{
		`{"translation":"Bonjour"}`,
		"```json\n{\"translation\":\"Bonjour\"}\n```",
		"Sure! {\"translation\":\"Bonjour\"} Hope that helps.",
	} {
		parsed.Translation = ""
		if err := DecodeJSON(reply, &parsed); err != nil || parsed.Translation != "Bonjour" {
			t.Fatalf("DecodeJSON(%q) = %q, %v", reply, parsed.Translation, err)
		}
	}
	if err := DecodeJSON("   ", &parsed); err == nil {
		t.Fatal("expected error for empty reply")
	}
	if err := DecodeJSON("no json here", &parsed); err == nil || !strings.Contains(err.Error(), "no json here") {
		t.Fatalf("expected error with reply snippet, got %v", err)
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet(" a\n\tb  "); got != "a b" {
		t.Fatalf("snippet = %q", got)
	}
	if got := snippet(strings.Repeat("x", 200)); len(got) != 163 {
		t.Fatalf("expected capped snippet, got %d chars", len(got))
	}
	if snippet("") != "<empty>" {
		t.Fatal("expected placeholder for empty content")
	}
}
