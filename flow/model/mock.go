package model

import (
	"context"
	"strings"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests: each Chat call
// returns the next response in Responses (repeating the last once the
// script runs out), records the request, and honors Err injection.
// Safe for concurrent use.
type MockChatModel struct {
	Responses []ChatOut
	Err       error

	mu    sync.Mutex
	calls []Request
	index int
}

var _ StreamingChatModel = (*MockChatModel)(nil)

func (m *MockChatModel) Chat(ctx context.Context, req Request) (ChatOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if len(m.Responses) == 0 {
		return ChatOut{Text: "mock response", Model: "mock"}, nil
	}
	out := m.Responses[m.index]
	if m.index < len(m.Responses)-1 {
		m.index++
	}
	return out, nil
}

// StreamChat delivers the scripted response word by word, which gives
// streaming consumers something genuinely incremental to assert on.
func (m *MockChatModel) StreamChat(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	out, err := m.Chat(ctx, req)
	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		if err != nil {
			ch <- StreamChunk{Err: err}
			return
		}
		words := strings.Fields(out.Text)
		for i, w := range words {
			if i > 0 {
				w = " " + w
			}
			select {
			case ch <- StreamChunk{Text: w}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Calls returns a copy of the recorded requests.
func (m *MockChatModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// MockEmbeddingModel is a deterministic EmbeddingModel for tests: each
// text maps to a Dim-wide vector whose first component is the text
// length, so assertions can distinguish inputs without fixtures.
type MockEmbeddingModel struct {
	Dim int
	Err error

	mu    sync.Mutex
	calls [][]string
}

var _ EmbeddingModel = (*MockEmbeddingModel)(nil)

func (m *MockEmbeddingModel) Embed(ctx context.Context, texts []string, modelName string) ([][]float64, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	dim := m.Dim
	if dim <= 0 {
		dim = 4
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, dim)
		vec[0] = float64(len(text))
		out[i] = vec
	}
	return out, nil
}

// Calls returns a copy of the recorded Embed inputs.
func (m *MockEmbeddingModel) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.calls))
	copy(out, m.calls)
	return out
}
