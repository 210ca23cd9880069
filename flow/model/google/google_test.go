package google

import (
	"context"
	"errors"
	"testing"

	"github.com/ragforge/flowengine/flow/model"
)

type fakeGenerateClient struct {
	out model.ChatOut
	err error
	req model.Request
}

func (f *fakeGenerateClient) generateContent(ctx context.Context, req model.Request) (model.ChatOut, error) {
	f.req = req
	return f.out, f.err
}

func TestChatDelegatesToClient(t *testing.T) {
	fake := &fakeGenerateClient{out: model.ChatOut{Text: "pong", FinishReason: "FinishReasonStop"}}
	m := &ChatModel{modelName: "gemini-test", client: fake}

	out, err := m.Chat(context.Background(), model.Request{
		Messages:    []model.Message{{Role: model.RoleUser, Content: "ping"}},
		Temperature: 0.3,
		MaxTokens:   16,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "pong" {
		t.Errorf("out %+v", out)
	}
	if fake.req.Temperature != 0.3 || fake.req.MaxTokens != 16 {
		t.Errorf("knobs not forwarded: %+v", fake.req)
	}
}

func TestChatPropagatesClientError(t *testing.T) {
	fake := &fakeGenerateClient{err: errors.New("resource exhausted")}
	m := &ChatModel{modelName: "gemini-test", client: fake}
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

type fakeEmbedClient struct {
	vectors   [][]float64
	err       error
	texts     []string
	modelName string
}

func (f *fakeEmbedClient) embedContent(ctx context.Context, texts []string, modelName string) ([][]float64, error) {
	f.texts = append([]string(nil), texts...)
	f.modelName = modelName
	return f.vectors, f.err
}

func TestEmbedBatchesAllTexts(t *testing.T) {
	fake := &fakeEmbedClient{vectors: [][]float64{{1}, {2}}}
	m := &EmbeddingModel{modelName: defaultEmbeddingModel, client: fake}

	vectors, err := m.Embed(context.Background(), []string{"a", "b"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 2 {
		t.Errorf("vectors %v", vectors)
	}
	if len(fake.texts) != 2 || fake.modelName != defaultEmbeddingModel {
		t.Errorf("call %v %q", fake.texts, fake.modelName)
	}
}

func TestSDKEmbedClientRequiresAPIKey(t *testing.T) {
	c := &sdkEmbedClient{}
	if _, err := c.embedContent(context.Background(), []string{"x"}, defaultEmbeddingModel); err == nil {
		t.Fatal("expected missing-key error")
	}
}
