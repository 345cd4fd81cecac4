package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "token" {
			t.Fatalf("missing api key header")
		}
		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			System    []struct {
				Text string `json:"text"`
			} `json:"system"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "claude-test" {
			t.Fatalf("unexpected model: %s", req.Model)
		}
		if req.MaxTokens != defaultAnthropicMaxTokens {
			t.Fatalf("unexpected max tokens: %d", req.MaxTokens)
		}
		if len(req.System) != 1 || req.System[0].Text != "be brief" {
			t.Fatalf("unexpected system: %+v", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Fatalf("unexpected messages: %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "hello"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 7, "output_tokens": 3}
		}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(AnthropicConfig{
		BaseURL: server.URL,
		Token:   "token",
		Model:   "claude-test",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "hello" {
		t.Fatalf("unexpected content: %s", resp.Content)
	}
	if resp.FinishReason != "end_turn" {
		t.Fatalf("unexpected finish reason: %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestAnthropicChatError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(AnthropicConfig{
		BaseURL: server.URL,
		Token:   "token",
		Model:   "claude-test",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewAnthropicClientValidation(t *testing.T) {
	if _, err := NewAnthropicClient(AnthropicConfig{Model: "m"}); err == nil {
		t.Fatalf("expected error for missing token")
	}
	if _, err := NewAnthropicClient(AnthropicConfig{Token: "t"}); err == nil {
		t.Fatalf("expected error for missing model")
	}
}
