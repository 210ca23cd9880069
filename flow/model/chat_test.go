package model

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestChatProviderAdapterMapsResult(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{
		Text:         "pong",
		Model:        "mock-1",
		FinishReason: "stop",
		Usage:        Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	}}}
	adapter := NewChatProviderAdapter(mock)

	result, err := adapter.Chat(context.Background(), "ping", "", 0.2, 128, "t1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Message != "pong" || result.Model != "mock-1" {
		t.Errorf("result %+v", result)
	}
	if result.Usage.TotalTokens != 8 {
		t.Errorf("usage %+v", result.Usage)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	req := calls[0]
	if req.Temperature != 0.2 || req.MaxTokens != 128 {
		t.Errorf("request knobs not forwarded: %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != RoleUser || req.Messages[0].Content != "ping" {
		t.Errorf("messages %+v", req.Messages)
	}
}

func TestChatProviderAdapterFoldsErrorIntoResult(t *testing.T) {
	mock := &MockChatModel{Err: errors.New("rate limit exceeded")}
	adapter := NewChatProviderAdapter(mock)

	result, err := adapter.Chat(context.Background(), "ping", "", 0, 0, "t1", "u1")
	if err != nil {
		t.Fatalf("provider errors must be folded into the result, got %v", err)
	}
	if result.Success || !strings.Contains(result.Error, "rate limit") {
		t.Errorf("result %+v", result)
	}
}

func TestChatProviderAdapterStreamsIncrementally(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "the quick brown fox"}}}
	adapter := NewChatProviderAdapter(mock)

	ch, err := adapter.StreamChat(context.Background(), "go", "", 0, 0, "t1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	var chunks []string
	var full strings.Builder
	for chunk := range ch {
		if !chunk.Success {
			t.Fatalf("chunk error %q", chunk.Error)
		}
		chunks = append(chunks, chunk.Content)
		full.WriteString(chunk.Content)
	}
	if len(chunks) < 2 {
		t.Errorf("expected incremental chunks, got %d", len(chunks))
	}
	if full.String() != "the quick brown fox" {
		t.Errorf("reassembled %q", full.String())
	}
}

// nonStreamingModel hides MockChatModel's StreamChat so the adapter's
// single-chunk fallback path is the one under test.
type nonStreamingModel struct{ inner *MockChatModel }

func (m nonStreamingModel) Chat(ctx context.Context, req Request) (ChatOut, error) {
	return m.inner.Chat(ctx, req)
}

func TestChatProviderAdapterFallbackSingleChunk(t *testing.T) {
	adapter := NewChatProviderAdapter(nonStreamingModel{&MockChatModel{Responses: []ChatOut{{Text: "whole response"}}}})
	ch, err := adapter.StreamChat(context.Background(), "go", "", 0, 0, "t1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	var chunks []string
	for chunk := range ch {
		chunks = append(chunks, chunk.Content)
	}
	if len(chunks) != 1 || chunks[0] != "whole response" {
		t.Errorf("chunks %v", chunks)
	}
}

func TestEmbeddingProviderAdapterSuccess(t *testing.T) {
	mock := &MockEmbeddingModel{Dim: 3}
	adapter := NewEmbeddingProviderAdapter(mock)

	result, err := adapter.Embed(context.Background(), []string{"ab", "cdef"}, "", "t1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || len(result.Embeddings) != 2 {
		t.Fatalf("result %+v", result)
	}
	if result.Embeddings[0][0] != 2 || result.Embeddings[1][0] != 4 {
		t.Errorf("vectors %v", result.Embeddings)
	}
}

func TestEmbeddingProviderAdapterFoldsErrorIntoResult(t *testing.T) {
	mock := &MockEmbeddingModel{Err: errors.New("service unavailable")}
	adapter := NewEmbeddingProviderAdapter(mock)

	result, err := adapter.Embed(context.Background(), []string{"x"}, "", "t1", "u1")
	if err != nil {
		t.Fatalf("provider errors must be folded into the result, got %v", err)
	}
	if result.Success || result.Error == "" {
		t.Errorf("result %+v", result)
	}
}

func TestMockChatModelScriptRepeatsLastResponse(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "first"}, {Text: "second"}}}
	ctx := context.Background()
	for _, want := range []string{"first", "second", "second"} {
		out, err := mock.Chat(ctx, Request{})
		if err != nil {
			t.Fatal(err)
		}
		if out.Text != want {
			t.Errorf("got %q, want %q", out.Text, want)
		}
	}
	if len(mock.Calls()) != 3 {
		t.Errorf("recorded %d calls", len(mock.Calls()))
	}
}
