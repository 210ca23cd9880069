package anthropic

import (
	"context"
	"errors"
	"testing"

	"github.com/ragforge/flowengine/flow/model"
)

// fakeMessagesClient records what Chat hands the SDK layer.
type fakeMessagesClient struct {
	out          model.ChatOut
	err          error
	systemPrompt string
	req          model.Request
}

func (f *fakeMessagesClient) createMessage(ctx context.Context, systemPrompt string, req model.Request) (model.ChatOut, error) {
	f.systemPrompt = systemPrompt
	f.req = req
	return f.out, f.err
}

func TestChatExtractsSystemPrompt(t *testing.T) {
	fake := &fakeMessagesClient{out: model.ChatOut{Text: "pong"}}
	m := &ChatModel{modelName: "claude-test", client: fake}

	out, err := m.Chat(context.Background(), model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "be terse"},
			{Role: model.RoleSystem, Content: "answer in english"},
			{Role: model.RoleUser, Content: "ping"},
		},
		Temperature: 0.5,
		MaxTokens:   64,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "pong" {
		t.Errorf("text %q", out.Text)
	}
	if fake.systemPrompt != "be terse\n\nanswer in english" {
		t.Errorf("system prompt %q", fake.systemPrompt)
	}
	if len(fake.req.Messages) != 1 || fake.req.Messages[0].Role != model.RoleUser {
		t.Errorf("conversation %+v", fake.req.Messages)
	}
	if fake.req.Temperature != 0.5 || fake.req.MaxTokens != 64 {
		t.Errorf("knobs not forwarded: %+v", fake.req)
	}
}

func TestChatPropagatesClientError(t *testing.T) {
	fake := &fakeMessagesClient{err: errors.New("overloaded")}
	m := &ChatModel{modelName: "claude-test", client: fake}
	if _, err := m.Chat(context.Background(), model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "x"}}}); err == nil {
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
	m := NewChatModel("key", "")
	if m.modelName != defaultModel {
		t.Errorf("modelName %q", m.modelName)
	}
}

func TestSDKClientRequiresAPIKey(t *testing.T) {
	c := &sdkClient{modelName: "claude-test"}
	if _, err := c.createMessage(context.Background(), "", model.Request{}); err == nil {
		t.Fatal("expected missing-key error")
	}
}
