package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aramishf/RAG-PDF-Expert/internal/chunker"
	"github.com/aramishf/RAG-PDF-Expert/internal/embedder"
	"github.com/aramishf/RAG-PDF-Expert/internal/ingestion"
	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
	"github.com/aramishf/RAG-PDF-Expert/internal/server"
	"github.com/aramishf/RAG-PDF-Expert/internal/tracing"
)

// persistTimeout bounds the final index flush after the server stops.
const persistTimeout = 30 * time.Second

// NewServeCmd constructs the `ragpdf serve` command, which starts the HTTP
// API and the background ingestion worker.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragpdf HTTP server",
		Long: `Start the ragpdf HTTP server.

Uploads are queued as ingestion jobs and processed one at a time in the
background; poll GET /api/jobs/{id} for progress. Questions are answered
synchronously by POST /api/chat.

Examples:
  ragpdf serve
  ragpdf serve --port 9090
  RAGPDF_INDEX_BACKEND=qdrant ragpdf serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in and a no-op when the keys are absent.
			flush, ok := tracing.Setup(tracing.ConfigFromEnv(), "ragpdf-serve")
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			a, err := newApp(log, reg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.close()

			emb, err := a.newEmbedder(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			qaSvc, err := a.newQA(ctx, emb)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			splitter, err := chunker.New(chunker.Config{
				ChunkSize:    a.settings.ChunkSize,
				ChunkOverlap: a.settings.ChunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			ingestMetrics := ingestion.NewMetrics(reg)
			pipeline, err := ingestion.NewPipeline(splitter, emb, &ingestion.Config{
				BatchSize: a.settings.BatchSize,
				Metrics:   ingestMetrics,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			log.Info("serve: query and ingestion settings",
				slog.String("index_backend", a.indexes.Backend()),
				slog.Int("top_k", qaSvc.TopK()),
				slog.Int("chunk_size", splitter.Size()),
				slog.Int("batch_size", pipeline.BatchSize()),
			)

			jobsCfg := ingestion.JobsConfig{Metrics: ingestMetrics, Catalog: a.catalog()}
			if a.store != nil {
				jobsCfg.Log = a.store
			}
			jobs, err := ingestion.NewJobs(pipeline, a.indexes, jobsCfg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{
				server.NewEmbedderPinger(emb, embedder.SettingsFromEnv().Dimensions),
			}
			if a.qdrant != nil {
				pingers = append(pingers, server.NewQdrantPinger(a.qdrant))
			}
			if a.store != nil {
				pingers = append(pingers, server.NewStorePinger(a.store))
			}

			if !cmd.Flags().Changed("host") {
				host = a.settings.Host
			}
			if !cmd.Flags().Changed("port") {
				port = a.settings.Port
			}

			srv, err := server.New(server.Deps{
				QA:      qaSvc,
				Jobs:    jobs,
				Indexes: a.indexes,
				Catalog: a.catalog(),
				History: a.history(),
			}, &server.Config{
				Host:             host,
				Port:             port,
				DefaultNamespace: a.settings.Namespace,
				Logger:           log,
				Pingers:          pingers,
				APIKey:           a.settings.APIKey,
				MetricsRegistry:  reg,
				MetricsGatherer:  reg,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return jobs.Run(gctx) })
			g.Go(func() error { return srv.Start(gctx) })
			runErr := g.Wait()

			persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
			defer cancel()
			if err := a.indexes.PersistAll(persistCtx); err != nil {
				log.Error("serve: final index persist failed", slog.Any("error", err))
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (default from RAGPDF_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (default from RAGPDF_PORT)")

	return cmd
}
