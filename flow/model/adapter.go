package model

import (
	"context"
	"fmt"

	"github.com/ragforge/flowengine/flow/collab"
)

// ChatProviderAdapter presents a ChatModel as the tenant-aware
// collab.ChatProvider the llm node consumes. Tenant and user ids are
// accepted for interface parity and quota attribution by callers; the
// provider SDKs themselves are tenant-blind.
type ChatProviderAdapter struct {
	Model ChatModel
}

// NewChatProviderAdapter wraps m behind the collab.ChatProvider shape.
func NewChatProviderAdapter(m ChatModel) *ChatProviderAdapter {
	return &ChatProviderAdapter{Model: m}
}

var _ collab.ChatProvider = (*ChatProviderAdapter)(nil)

// Chat delegates to the wrapped ChatModel. Provider errors come back as
// an unsuccessful ChatResult rather than a Go error, so the llm node's
// recovery policy sees the provider's message text for classification.
func (a *ChatProviderAdapter) Chat(ctx context.Context, message, modelName string, temperature float64, maxTokens int, tenantID, userID string) (collab.ChatResult, error) {
	out, err := a.Model.Chat(ctx, Request{
		Model:       modelName,
		Messages:    []Message{{Role: RoleUser, Content: message}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return collab.ChatResult{Success: false, Error: err.Error()}, nil
	}
	return collab.ChatResult{
		Success: true,
		Message: out.Text,
		Model:   out.Model,
		Usage: collab.ChatUsage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		},
	}, nil
}

// StreamChat streams from the wrapped model when it implements
// StreamingChatModel, and otherwise degrades to a single chunk carrying
// the whole response.
func (a *ChatProviderAdapter) StreamChat(ctx context.Context, message, modelName string, temperature float64, maxTokens int, tenantID, userID string) (<-chan collab.ChatChunk, error) {
	req := Request{
		Model:       modelName,
		Messages:    []Message{{Role: RoleUser, Content: message}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	if streamer, ok := a.Model.(StreamingChatModel); ok {
		inner, err := streamer.StreamChat(ctx, req)
		if err != nil {
			return nil, err
		}
		ch := make(chan collab.ChatChunk)
		go func() {
			defer close(ch)
			for chunk := range inner {
				if chunk.Err != nil {
					ch <- collab.ChatChunk{Success: false, Error: chunk.Err.Error()}
					return
				}
				ch <- collab.ChatChunk{Success: true, Content: chunk.Text}
			}
		}()
		return ch, nil
	}

	ch := make(chan collab.ChatChunk, 1)
	out, err := a.Model.Chat(ctx, req)
	if err != nil {
		ch <- collab.ChatChunk{Success: false, Error: err.Error()}
	} else {
		ch <- collab.ChatChunk{Success: true, Content: out.Text}
	}
	close(ch)
	return ch, nil
}

// EmbeddingProviderAdapter presents an EmbeddingModel as
// collab.EmbeddingProvider for the retrieval and embeddings node types.
type EmbeddingProviderAdapter struct {
	Model EmbeddingModel
}

// NewEmbeddingProviderAdapter wraps m behind collab.EmbeddingProvider.
func NewEmbeddingProviderAdapter(m EmbeddingModel) *EmbeddingProviderAdapter {
	return &EmbeddingProviderAdapter{Model: m}
}

var _ collab.EmbeddingProvider = (*EmbeddingProviderAdapter)(nil)

// Embed delegates to the wrapped EmbeddingModel, folding errors into the
// unsuccessful-result shape the nodes expect.
func (a *EmbeddingProviderAdapter) Embed(ctx context.Context, texts []string, modelName, tenantID, userID string) (collab.EmbeddingResult, error) {
	vectors, err := a.Model.Embed(ctx, texts, modelName)
	if err != nil {
		return collab.EmbeddingResult{Success: false, Error: err.Error()}, nil
	}
	if len(vectors) != len(texts) {
		return collab.EmbeddingResult{
			Success: false,
			Error:   fmt.Sprintf("embedding count mismatch: %d texts, %d vectors", len(texts), len(vectors)),
		}, nil
	}
	return collab.EmbeddingResult{Success: true, Embeddings: vectors}, nil
}
