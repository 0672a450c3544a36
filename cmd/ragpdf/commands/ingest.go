package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aramishf/RAG-PDF-Expert/internal/chunker"
	"github.com/aramishf/RAG-PDF-Expert/internal/ingestion"
	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
)

// NewIngestCmd constructs the `ragpdf ingest` command, which indexes local
// files synchronously and prints the ingestion report.
func NewIngestCmd() *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Index PDF, text, or markdown files into a namespace",
		Long: `Extract, chunk, embed, and index local files into the namespace's vector index.

Each PDF page becomes a separate document so answers can cite page numbers.
Files that yield no text are reported and skipped. The JSON ingestion report
is printed to stdout; the command fails unless every chunk was indexed.

Examples:
  ragpdf ingest ./biology.pdf
  ragpdf ingest --namespace textbooks ./books/*.pdf
  RAGPDF_CHUNK_SIZE=1200 ragpdf ingest notes.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(log, nil)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer a.close()

			ns, err := a.namespace(namespace)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			files := make([]ingestion.File, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: failed to read %q: %w", path, err)
				}
				files = append(files, ingestion.File{Name: path, Data: data})
			}

			emb, err := a.newEmbedder(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			splitter, err := chunker.New(chunker.Config{
				ChunkSize:    a.settings.ChunkSize,
				ChunkOverlap: a.settings.ChunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			pipeline, err := ingestion.NewPipeline(splitter, emb, &ingestion.Config{BatchSize: a.settings.BatchSize})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			idx, err := a.indexes.Get(ctx, ns)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("starting ingestion",
				slog.String("namespace", ns),
				slog.Int("files", len(files)),
				slog.Int("chunk_size", splitter.Size()),
				slog.Int("batch_size", pipeline.BatchSize()),
			)
			report := pipeline.IngestFiles(ctx, idx, files, func(done, total int) {
				log.Info("ingestion progress", slog.Int("batches_done", done), slog.Int("batches_total", total))
			})

			if report.Indexed() && a.store != nil {
				if err := ingestion.CatalogSources(ctx, a.store, ns, "", report); err != nil {
					log.Warn("ingest: could not catalog documents", slog.Any("error", err))
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("ingest: failed to write report: %w", err)
			}

			if report.Status != ingestion.StatusSucceeded {
				return fmt.Errorf("ingest: %s: %s", report.Status, report.Error)
			}
			log.Info("ingestion complete", slog.Int("chunks", report.Chunks), slog.Int("batches", report.Batches))
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to index into (default from RAGPDF_NAMESPACE)")

	return cmd
}
