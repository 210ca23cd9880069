package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/ragforge/flowengine/flow/model"
)

type fakeCompletionsClient struct {
	out model.ChatOut
	err error
	req model.Request
}

func (f *fakeCompletionsClient) createChatCompletion(ctx context.Context, req model.Request) (model.ChatOut, error) {
	f.req = req
	return f.out, f.err
}

func TestChatDelegatesToClient(t *testing.T) {
	fake := &fakeCompletionsClient{out: model.ChatOut{
		Text: "pong", Model: "gpt-test", FinishReason: "stop",
		Usage: model.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
	}}
	m := &ChatModel{modelName: "gpt-test", client: fake}

	out, err := m.Chat(context.Background(), model.Request{
		Messages:    []model.Message{{Role: model.RoleUser, Content: "ping"}},
		Temperature: 0.7,
		MaxTokens:   32,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "pong" || out.Usage.TotalTokens != 3 {
		t.Errorf("out %+v", out)
	}
	if fake.req.Temperature != 0.7 || fake.req.MaxTokens != 32 {
		t.Errorf("knobs not forwarded: %+v", fake.req)
	}
}

func TestChatPropagatesClientError(t *testing.T) {
	fake := &fakeCompletionsClient{err: errors.New("insufficient quota")}
	m := &ChatModel{modelName: "gpt-test", client: fake}
	if _, err := m.Chat(context.Background(), model.Request{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestChatHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewChatModel("key", "")
	if _, err := m.Chat(ctx, model.Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
}

func TestNewChatModelDefaultsModelName(t *testing.T) {
	if m := NewChatModel("key", ""); m.modelName != defaultChatModel {
		t.Errorf("modelName %q", m.modelName)
	}
}

type fakeEmbeddingsClient struct {
	vectors   [][]float64
	err       error
	texts     []string
	modelName string
}

func (f *fakeEmbeddingsClient) createEmbeddings(ctx context.Context, texts []string, modelName string) ([][]float64, error) {
	f.texts = texts
	f.modelName = modelName
	return f.vectors, f.err
}

func TestEmbedFillsDefaultModel(t *testing.T) {
	fake := &fakeEmbeddingsClient{vectors: [][]float64{{1, 2}}}
	m := &EmbeddingModel{modelName: defaultEmbeddingModel, client: fake}

	vectors, err := m.Embed(context.Background(), []string{"hello"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 1 || vectors[0][1] != 2 {
		t.Errorf("vectors %v", vectors)
	}
	if fake.modelName != defaultEmbeddingModel {
		t.Errorf("model %q", fake.modelName)
	}
}

func TestEmbedUsesExplicitModel(t *testing.T) {
	fake := &fakeEmbeddingsClient{vectors: [][]float64{{1}}}
	m := &EmbeddingModel{modelName: defaultEmbeddingModel, client: fake}
	if _, err := m.Embed(context.Background(), []string{"x"}, "text-embedding-3-large"); err != nil {
		t.Fatal(err)
	}
	if fake.modelName != "text-embedding-3-large" {
		t.Errorf("model %q", fake.modelName)
	}
}

func TestSDKEmbeddingsClientRequiresAPIKey(t *testing.T) {
	c := &sdkEmbeddingsClient{}
	if _, err := c.createEmbeddings(context.Background(), []string{"x"}, defaultEmbeddingModel); err == nil {
		t.Fatal("expected missing-key error")
	}
}
