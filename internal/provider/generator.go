package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
)

// systemPrompt frames every question. Page markers must be echoed so the
// citation resolver can match them.
const systemPrompt = `You are a careful research assistant. Answer the question using only the numbered passages supplied by the user.
When you use a passage, cite it inline with its source name and page marker exactly as shown, e.g. (Report, p.12).
If the passages do not contain the answer, say so plainly instead of guessing.`

// Generator adapts an eino chat model to rag.Generator.
type Generator struct {
	// chat is the underlying model.
	chat model.BaseChatModel
	// system is the system message sent before every prompt.
	system string
}

// NewGenerator wraps chat. An empty system prompt selects the default.
func NewGenerator(chat model.BaseChatModel, system string) (*Generator, error) {
	if chat == nil {
		return nil, errors.New("provider: chat model is required")
	}
	if system == "" {
		system = systemPrompt
	}
	return &Generator{chat: chat, system: system}, nil
}

// SystemPrompt returns the system message sent before every prompt.
func (g *Generator) SystemPrompt() string { return g.system }

// Generate sends prompt as a single user turn and returns the reply text.
// Any failure, including an empty reply, is tagged rag.ErrGenerationFailure.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(g.system),
		schema.UserMessage(prompt),
	}
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "ragpdf-answer",
		Type:      "Generator",
		Component: components.ComponentOfChatModel,
	})
	resp, err := g.chat.Generate(ctx, msgs)
	if err != nil {
		return "", rag.GenerationError(err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", rag.GenerationError(errors.New("provider: model returned an empty answer"))
	}
	return strings.TrimSpace(resp.Content), nil
}
