package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/higherself-ai/higherself/internal/llm/prompt"
	"github.com/higherself-ai/higherself/internal/llm/provider"
)

type stubCompleter struct {
	reply string
	err   error
	last  []provider.Message
}

func (s *stubCompleter) Complete(ctx context.Context, messages []provider.Message) (string, error) {
	s.last = messages
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newTestServer(completer *stubCompleter) *Server {
	return New(Options{
		CORSOrigin:    "*",
		RatePerMinute: 600,
		RateBurst:     600,
		Composer:      prompt.NewComposer(),
		Completer:     completer,
	})
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return out
}

func TestChatSendSuccess(t *testing.T) {
	completer := &stubCompleter{reply: "Hi there"}
	srv := newTestServer(completer)

	w := postJSON(t, srv, "/api/chat/send", map[string]any{
		"message":        "Hello",
		"conversationId": "conv-42",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("data missing: %v", body)
	}
	if data["message"] != "Hi there" {
		t.Errorf("message = %v", data["message"])
	}
	if data["conversationId"] != "conv-42" {
		t.Errorf("conversationId = %v, want echo of request", data["conversationId"])
	}
	if ts, _ := data["timestamp"].(string); ts == "" {
		t.Error("timestamp missing")
	}
}

func TestChatSendGeneratesConversationID(t *testing.T) {
	srv := newTestServer(&stubCompleter{reply: "ok"})

	w := postJSON(t, srv, "/api/chat/send", map[string]any{"message": "Hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	data := decodeBody(t, w)["data"].(map[string]any)
	if id, _ := data["conversationId"].(string); id == "" {
		t.Error("conversationId should be generated when absent")
	}
}

func TestChatSendForwardsHistory(t *testing.T) {
	completer := &stubCompleter{reply: "ok"}
	srv := newTestServer(completer)

	w := postJSON(t, srv, "/api/chat/send", map[string]any{
		"message": "Go on",
		"messageHistory": []map[string]string{
			{"role": "user", "content": "Hi"},
			{"role": "assistant", "content": "Hello!"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	// system + 2 history + new user message
	if got := len(completer.last); got != 4 {
		t.Fatalf("composed messages = %d, want 4", got)
	}
	if completer.last[0].Role != "system" {
		t.Errorf("first role = %q, want system", completer.last[0].Role)
	}
	last := completer.last[len(completer.last)-1]
	if last.Role != "user" || last.Content != "Go on" {
		t.Errorf("last message = %+v", last)
	}
}

func TestChatSendValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"empty message", map[string]any{"message": ""}, "INVALID_MESSAGE"},
		{"whitespace message", map[string]any{"message": "   "}, "INVALID_MESSAGE"},
		{"missing message", map[string]any{}, "INVALID_MESSAGE"},
		{"too long", map[string]any{"message": strings.Repeat("a", 4001)}, "MESSAGE_TOO_LONG"},
		{"too long multibyte", map[string]any{"message": strings.Repeat("日", 4001)}, "MESSAGE_TOO_LONG"},
		{
			"history not an array",
			map[string]any{"message": "hi", "messageHistory": "not an array"},
			"INVALID_MESSAGE_HISTORY",
		},
		{
			"history is an object",
			map[string]any{"message": "hi", "messageHistory": map[string]string{"role": "user"}},
			"INVALID_MESSAGE_HISTORY",
		},
		{
			"bad history role",
			map[string]any{
				"message":        "hi",
				"messageHistory": []map[string]string{{"role": "wizard", "content": "zap"}},
			},
			"INVALID_MESSAGE_FORMAT",
		},
		{
			"empty history content",
			map[string]any{
				"message":        "hi",
				"messageHistory": []map[string]string{{"role": "user", "content": ""}},
			},
			"INVALID_MESSAGE_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubCompleter{reply: "never"})

			w := postJSON(t, srv, "/api/chat/send", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			body := decodeBody(t, w)
			if body["success"] != false {
				t.Errorf("success = %v, want false", body["success"])
			}
			if body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %q", body["code"], tt.wantCode)
			}
		})
	}
}

func TestChatSendLengthCountsCharacters(t *testing.T) {
	// 4000 three-byte characters exceed 4000 bytes but not the
	// character bound.
	srv := newTestServer(&stubCompleter{reply: "ok"})

	w := postJSON(t, srv, "/api/chat/send", map[string]any{
		"message": strings.Repeat("日", 4000),
	})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestChatSendMalformedJSON(t *testing.T) {
	srv := newTestServer(&stubCompleter{reply: "never"})

	req := httptest.NewRequest(http.MethodPost, "/api/chat/send", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if decodeBody(t, w)["code"] != "INVALID_MESSAGE" {
		t.Errorf("code = %v", decodeBody(t, w)["code"])
	}
}

func TestChatSendProviderErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			"rate limit",
			provider.NewProviderError("openai", provider.ErrorCodeRateLimit, "slow down", nil),
			http.StatusTooManyRequests, "OPENAI_ERROR",
		},
		{
			"authentication",
			provider.NewProviderError("openai", provider.ErrorCodeAuthentication, "bad key", nil),
			http.StatusBadGateway, "OPENAI_ERROR",
		},
		{
			"server error",
			provider.NewProviderError("openai", provider.ErrorCodeServerError, "boom", nil),
			http.StatusBadGateway, "OPENAI_ERROR",
		},
		{
			"malformed response",
			provider.NewProviderError("openai", provider.ErrorCodeMalformedResponse, "no content", nil),
			http.StatusBadGateway, "OPENAI_ERROR",
		},
		{
			"timeout",
			provider.NewProviderError("openai", provider.ErrorCodeTimeout, "too slow", nil),
			http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
		},
		{
			"unknown",
			provider.NewProviderError("openai", provider.ErrorCodeUnknown, "mystery", nil),
			http.StatusInternalServerError, "SERVER_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubCompleter{err: tt.err})

			w := postJSON(t, srv, "/api/chat/send", map[string]any{"message": "Hello"})
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := decodeBody(t, w)
			if body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %q", body["code"], tt.wantCode)
			}
			if msg, _ := body["error"].(string); msg == "" || strings.Contains(msg, "slow down") {
				t.Errorf("error = %q, provider payloads must not be relayed", msg)
			}
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&stubCompleter{reply: "ok"})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["message"] != "Server is running" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(&stubCompleter{reply: "ok"})

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	body := decodeBody(t, w)
	if body["code"] != "NOT_FOUND" {
		t.Errorf("code = %v", body["code"])
	}
	if body["error"] != "Resource not found" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&stubCompleter{reply: "ok"})

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/send", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	srv := New(Options{
		CORSOrigin:    "*",
		RatePerMinute: 60,
		RateBurst:     2,
		Composer:      prompt.NewComposer(),
		Completer:     &stubCompleter{reply: "ok"},
	})

	var last *httptest.ResponseRecorder
	for i := 0; i < 5; i++ {
		last = postJSON(t, srv, "/api/chat/send", map[string]any{"message": "Hello"})
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after burst", last.Code)
	}
	if decodeBody(t, last)["code"] != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %v", decodeBody(t, last)["code"])
	}
}

func TestBodyLimit(t *testing.T) {
	srv := newTestServer(&stubCompleter{reply: "never"})

	big := strings.Repeat("a", maxBodyBytes+1)
	w := postJSON(t, srv, "/api/chat/send", map[string]any{"message": big})

	if w.Code == http.StatusOK {
		t.Error("oversized body should be rejected")
	}
}
