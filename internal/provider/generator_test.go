package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// fakeChat is a model.BaseChatModel returning a canned reply.
type fakeChat struct {
	reply string
	err   error
	got   []*schema.Message
}

func (f *fakeChat) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestGenerator_Generate(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{reply: "  Entropy increases (Physics, p.12).\n"}
	g, err := NewGenerator(chat, "")
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	got, err := g.Generate(context.Background(), "Passage 1 [Physics, p.12]: ...")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Entropy increases (Physics, p.12)." {
		t.Errorf("unexpected answer %q", got)
	}
	if len(chat.got) != 2 || chat.got[0].Role != schema.System || chat.got[1].Role != schema.User {
		t.Errorf("want system+user messages, got %v", chat.got)
	}
	if chat.got[0].Content != systemPrompt || g.SystemPrompt() != systemPrompt {
		t.Error("default system prompt not used")
	}

	custom, _ := NewGenerator(chat, "Answer in French.")
	if custom.SystemPrompt() != "Answer in French." {
		t.Errorf("custom system prompt: got %q", custom.SystemPrompt())
	}
}

func TestGenerator_WrapsFailures(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	cases := map[string]*fakeChat{
		"model error":  {err: cause},
		"empty answer": {reply: "   "},
	}
	for name, chat := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			g, _ := NewGenerator(chat, "custom")
			_, err := g.Generate(context.Background(), "q")
			if !errors.Is(err, rag.ErrGenerationFailure) {
				t.Fatalf("want ErrGenerationFailure, got %v", err)
			}
			if !rag.IsRetryable(err) {
				t.Error("generation failures should be retryable")
			}
		})
	}
}

func TestNewGenerator_NilModel(t *testing.T) {
	t.Parallel()

	if _, err := NewGenerator(nil, ""); err == nil {
		t.Fatal("want error for nil chat model")
	}
}
