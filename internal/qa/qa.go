// Package qa answers questions against a namespace's index: it retrieves
// passages, fits them to the prompt budget, asks the generator, and keeps
// only the citations the answer actually references.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/aramishf/RAG-PDF-Expert/internal/budget"
	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
	"github.com/aramishf/RAG-PDF-Expert/internal/store"
)

// DefaultTopK is the retrieval breadth used when Config.TopK is zero.
const DefaultTopK = 40

// systemPrompter is implemented by generators that prepend a system message,
// such as *provider.Generator. Its size counts against the prompt budget.
type systemPrompter interface {
	SystemPrompt() string
}

// IndexProvider hands out the index for a namespace for reading.
// *index.Registry satisfies it.
type IndexProvider interface {
	Lookup(ctx context.Context, namespace string) (rag.VectorIndex, error)
}

// Config holds the query settings.
type Config struct {
	// TopK is the number of passages retrieved. Defaults to DefaultTopK.
	TopK int
	// MaxContextTokens bounds the prompt. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
	// PageOffsets maps source names to printed-page corrections.
	PageOffsets rag.PageOffsets
	// History records answered questions. Optional.
	History store.History
}

// Answer is the result of one question.
type Answer struct {
	// Question echoes the question asked.
	Question string `json:"question"`
	// Answer is the generated text.
	Answer string `json:"answer"`
	// Citations are the referenced passages in ascending distance order.
	Citations []rag.Citation `json:"citations"`
	// Retrieved is the number of passages retrieved.
	Retrieved int `json:"retrieved"`
	// Used is the number of passages that fit in the prompt.
	Used int `json:"used"`
}

// Service is the query entry point.
type Service struct {
	indexes   IndexProvider
	embedder  rag.Embedder
	generator rag.Generator
	resolver  *rag.Resolver
	topK      int
	maxTokens int
	history   store.History
}

// New constructs a Service.
func New(indexes IndexProvider, embedder rag.Embedder, generator rag.Generator, cfg Config) (*Service, error) {
	if indexes == nil || embedder == nil {
		return nil, fmt.Errorf("qa: index provider and embedder are required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	maxTokens := cfg.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	return &Service{
		indexes:   indexes,
		embedder:  embedder,
		generator: generator,
		resolver:  rag.NewResolver(cfg.PageOffsets),
		topK:      topK,
		maxTokens: maxTokens,
		history:   cfg.History,
	}, nil
}

// TopK returns the configured retrieval breadth.
func (s *Service) TopK() int { return s.topK }

// Search retrieves the k passages nearest to query in namespace, without
// generating an answer.
func (s *Service) Search(ctx context.Context, namespace, query string, k int) ([]rag.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("qa: query must not be empty: %w", rag.ErrInvalidArgument)
	}
	idx, err := s.indexes.Lookup(ctx, namespace)
	if err != nil {
		return nil, err
	}
	retriever, err := rag.NewRetriever(s.embedder, idx)
	if err != nil {
		return nil, err
	}
	return retriever.Retrieve(ctx, query, k)
}

// Ask answers question from the passages indexed in namespace. An empty
// index yields rag.ErrEmptyIndex rather than an unsupported answer.
func (s *Service) Ask(ctx context.Context, namespace, question string) (Answer, error) {
	if s.generator == nil {
		return Answer{}, fmt.Errorf("qa: no generator configured")
	}
	question = strings.TrimSpace(question)
	log := logging.FromContext(ctx).With(slog.String("namespace", namespace))
	start := time.Now()

	results, err := s.Search(ctx, namespace, question, s.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("qa: retrieve: %w", err)
	}

	formatted := rag.FormatPassages(results, s.resolver)
	fixed := s.promptOverhead(question)
	kept := budget.TrimPassages(fixed, budget.Estimate(rag.PassageSeparator), formatted, s.maxTokens)
	used := results[:len(kept)]
	if len(kept) < len(results) {
		log.Debug("qa: trimmed passages to fit budget",
			slog.Int("retrieved", len(results)),
			slog.Int("kept", len(kept)),
			slog.Int("max_tokens", s.maxTokens),
		)
	}

	text, err := s.generator.Generate(ctx, rag.AssemblePrompt(question, kept))
	if err != nil {
		return Answer{}, fmt.Errorf("qa: generate: %w", rag.GenerationError(err))
	}

	citations := s.resolver.Resolve(used, text)
	if citations == nil {
		citations = []rag.Citation{}
	}
	ans := Answer{
		Question:  question,
		Answer:    text,
		Citations: citations,
		Retrieved: len(results),
		Used:      len(used),
	}

	if s.history != nil {
		ex := store.Exchange{Question: question, Answer: text, Citations: citations}
		if err := s.history.AppendExchange(context.WithoutCancel(ctx), namespace, ex); err != nil {
			log.Warn("qa: could not record history", slog.String("error", err.Error()))
		}
	}

	log.Info("qa: answered",
		slog.Int("retrieved", ans.Retrieved),
		slog.Int("used", ans.Used),
		slog.Int("citations", len(citations)),
		slog.Duration("duration", time.Since(start)),
	)
	return ans, nil
}

// promptOverhead estimates every prompt token that is not a passage: the
// generator's system message, when it exposes one, and the question turn.
func (s *Service) promptOverhead(question string) int {
	msgs := []*schema.Message{schema.UserMessage(rag.AssemblePrompt(question, nil))}
	if sp, ok := s.generator.(systemPrompter); ok {
		msgs = append([]*schema.Message{schema.SystemMessage(sp.SystemPrompt())}, msgs...)
	}
	return budget.EstimateMessages(msgs)
}
