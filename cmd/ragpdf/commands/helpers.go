package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/qdrant/go-client/qdrant"

	"github.com/aramishf/RAG-PDF-Expert/internal/config"
	"github.com/aramishf/RAG-PDF-Expert/internal/embedder"
	"github.com/aramishf/RAG-PDF-Expert/internal/index"
	"github.com/aramishf/RAG-PDF-Expert/internal/provider"
	"github.com/aramishf/RAG-PDF-Expert/internal/qa"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
	"github.com/aramishf/RAG-PDF-Expert/internal/store"
)

// app bundles the services every command builds from the environment.
type app struct {
	settings config.Settings
	log      *slog.Logger
	indexes  *index.Registry
	// qdrant is set only for the qdrant backend.
	qdrant *qdrant.Client
	// store is nil when RAGPDF_DB=disabled or the database could not be opened.
	store *store.SQLiteStore
}

// newApp reads Settings and opens the index registry and the SQLite store.
// reg receives the index metrics; nil skips registration.
func newApp(log *slog.Logger, reg prometheus.Registerer) (*app, error) {
	settings, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	a := &app{settings: settings, log: log}

	var backend index.Backend
	switch settings.IndexBackend {
	case config.BackendQdrant:
		client, err := index.NewQdrantClient(index.QdrantConfig{
			Host:   settings.Qdrant.Host,
			Port:   settings.Qdrant.Port,
			APIKey: settings.Qdrant.APIKey,
			UseTLS: settings.Qdrant.TLS,
		})
		if err != nil {
			return nil, err
		}
		a.qdrant = client
		backend = &index.QdrantBackend{Client: client, CollectionPrefix: settings.Qdrant.CollectionPrefix}
		log.Info("index: qdrant backend",
			slog.String("host", settings.Qdrant.Host),
			slog.Int("port", settings.Qdrant.Port),
			slog.String("collection_prefix", settings.Qdrant.CollectionPrefix),
		)
	default:
		backend = &index.MemoryBackend{Dir: settings.IndexDir}
		log.Info("index: memory backend", slog.String("dir", settings.IndexDir))
	}

	var metrics *index.Metrics
	if reg != nil {
		metrics = index.NewMetrics(reg)
	}
	a.indexes = index.NewRegistry(backend, metrics)
	a.store = openStore(settings, log)
	return a, nil
}

// openStore opens the SQLite store. Failures are logged and disable the
// catalog and history rather than aborting the command.
func openStore(settings config.Settings, log *slog.Logger) *store.SQLiteStore {
	if !settings.StoreEnabled() {
		log.Info("store: disabled via RAGPDF_DB=disabled")
		return nil
	}
	path := settings.DBPath
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("store: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	s, err := store.Open(path)
	if err != nil {
		log.Warn("store: failed to open, disabling", slog.String("path", path), slog.Any("error", err))
		return nil
	}
	log.Info("store: opened", slog.String("path", path))
	return s
}

// close releases the store and the Qdrant connection.
func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store: close failed", slog.Any("error", err))
		}
	}
	if a.qdrant != nil {
		if err := a.qdrant.Close(); err != nil {
			a.log.Warn("qdrant: close failed", slog.Any("error", err))
		}
	}
}

// namespace resolves the --namespace flag against the configured default.
func (a *app) namespace(flag string) (string, error) {
	ns := flag
	if ns == "" {
		ns = a.settings.Namespace
	}
	if err := index.ValidateNamespace(ns); err != nil {
		return "", err
	}
	return ns, nil
}

// catalog returns the store as a Catalog, or nil when the store is off.
func (a *app) catalog() store.Catalog {
	if a.store == nil {
		return nil
	}
	return a.store
}

// history returns the store as a History, or nil when the store is off.
func (a *app) history() store.History {
	if a.store == nil {
		return nil
	}
	return a.store
}

// newEmbedder validates the embedding configuration and builds the client.
func (a *app) newEmbedder(ctx context.Context) (rag.Embedder, error) {
	if err := embedder.Preflight(a.log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	s := embedder.SettingsFromEnv()
	a.log.Info("embedder initialised", slog.String("backend", s.Backend), slog.String("model", s.Model))
	return emb, nil
}

// newQA builds the chat model and the query service over emb.
func (a *app) newQA(ctx context.Context, emb rag.Embedder) (*qa.Service, error) {
	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	a.log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

	gen, err := provider.NewGenerator(chatModel, "")
	if err != nil {
		return nil, err
	}
	return qa.New(a.indexes, emb, gen, qa.Config{
		TopK:             a.settings.TopK,
		MaxContextTokens: a.settings.MaxContextTokens,
		PageOffsets:      rag.PageOffsets(a.settings.PageOffsets),
		History:          a.history(),
	})
}
