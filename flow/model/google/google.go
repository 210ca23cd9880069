// Package google implements model.ChatModel and model.EmbeddingModel
// over the official Google Gemini SDK.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ragforge/flowengine/flow/model"
)

const (
	defaultChatModel      = "gemini-1.5-pro"
	defaultEmbeddingModel = "text-embedding-004"
)

// ChatModel calls Gemini's generateContent API. Gemini has no separate
// system parameter in this SDK surface; system messages are folded into
// the prompt ahead of the conversation.
type ChatModel struct {
	modelName string
	client    generateClient
}

// generateClient is the seam between request shaping and the SDK, so
// tests can substitute a fake without network access.
type generateClient interface {
	generateContent(ctx context.Context, req model.Request) (model.ChatOut, error)
}

// NewChatModel builds a ChatModel for the given key and model name
// (empty modelName selects gemini-1.5-pro).
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = defaultChatModel
	}
	return &ChatModel{
		modelName: modelName,
		client:    &sdkClient{apiKey: apiKey, modelName: modelName},
	}
}

var _ model.ChatModel = (*ChatModel)(nil)

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, req model.Request) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	return m.client.generateContent(ctx, req)
}

// sdkClient is the real SDK-backed generateClient.
type sdkClient struct {
	apiKey    string
	modelName string
}

func (c *sdkClient) generateContent(ctx context.Context, req model.Request) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("google API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("failed to create Google client: %w", err)
	}
	defer func() { _ = client.Close() }()

	modelName := req.Model
	if modelName == "" {
		modelName = c.modelName
	}
	genModel := client.GenerativeModel(modelName)
	if req.Temperature > 0 {
		genModel.SetTemperature(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		genModel.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	resp, err := genModel.GenerateContent(ctx, convertMessages(req.Messages)...)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google API error: %w", err)
	}
	out := convertResponse(resp)
	out.Model = modelName
	return out, nil
}

func convertMessages(messages []model.Message) []genai.Part {
	parts := make([]genai.Part, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		parts = append(parts, genai.Text(msg.Content))
	}
	return parts
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	out := model.ChatOut{}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return out
	}
	candidate := resp.Candidates[0]
	out.FinishReason = candidate.FinishReason.String()
	if candidate.Content == nil {
		return out
	}
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(text)
		}
	}
	return out
}

// EmbeddingModel calls Gemini's embedContent API.
type EmbeddingModel struct {
	modelName string
	client    embedClient
}

type embedClient interface {
	embedContent(ctx context.Context, texts []string, modelName string) ([][]float64, error)
}

// NewEmbeddingModel builds an EmbeddingModel for the given key and model
// name (empty modelName selects text-embedding-004).
func NewEmbeddingModel(apiKey, modelName string) *EmbeddingModel {
	if modelName == "" {
		modelName = defaultEmbeddingModel
	}
	return &EmbeddingModel{
		modelName: modelName,
		client:    &sdkEmbedClient{apiKey: apiKey},
	}
}

var _ model.EmbeddingModel = (*EmbeddingModel)(nil)

// Embed implements model.EmbeddingModel.
func (m *EmbeddingModel) Embed(ctx context.Context, texts []string, modelName string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = m.modelName
	}
	return m.client.embedContent(ctx, texts, modelName)
}

type sdkEmbedClient struct {
	apiKey string
}

func (c *sdkEmbedClient) embedContent(ctx context.Context, texts []string, modelName string) ([][]float64, error) {
	if c.apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	defer func() { _ = client.Close() }()

	em := client.EmbeddingModel(modelName)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("google API error: %w", err)
	}
	out := make([][]float64, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		out[i] = vec
	}
	return out, nil
}
