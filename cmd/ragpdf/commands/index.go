package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
	"github.com/aramishf/RAG-PDF-Expert/internal/rag"
	"github.com/aramishf/RAG-PDF-Expert/internal/store"
)

// NewIndexCmd constructs the `ragpdf index` command group for inspecting and
// maintaining a namespace's vector index.
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect, search, or reset a namespace's vector index",
	}
	cmd.AddCommand(newIndexStatsCmd(), newIndexSearchCmd(), newIndexResetCmd())
	return cmd
}

// indexStats is the JSON body printed by `ragpdf index stats`.
type indexStats struct {
	Backend   string                 `json:"backend"`
	Namespace string                 `json:"namespace"`
	Entries   int                    `json:"entries"`
	Dimension int                    `json:"dimension"`
	Documents []store.DocumentRecord `json:"documents"`
}

func newIndexStatsCmd() *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print entry count, dimension, and ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(log, nil)
			if err != nil {
				return fmt.Errorf("index stats: %w", err)
			}
			defer a.close()

			ns, err := a.namespace(namespace)
			if err != nil {
				return fmt.Errorf("index stats: %w", err)
			}
			idx, err := a.indexes.Lookup(ctx, ns)
			if err != nil {
				return fmt.Errorf("index stats: %w", err)
			}
			count, err := idx.Count(ctx)
			if err != nil {
				return fmt.Errorf("index stats: %w", err)
			}

			stats := indexStats{
				Backend:   a.indexes.Backend(),
				Namespace: ns,
				Entries:   count,
				Dimension: idx.Dimension(),
				Documents: []store.DocumentRecord{},
			}
			if a.store != nil {
				docs, err := a.store.Documents(ctx, ns)
				if err != nil {
					return fmt.Errorf("index stats: %w", err)
				}
				stats.Documents = docs
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats) //nolint:wrapcheck // CLI entry point, error goes directly to cobra
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to inspect (default from RAGPDF_NAMESPACE)")
	return cmd
}

func newIndexSearchCmd() *cobra.Command {
	var namespace string
	var k int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Print the passages nearest to a query without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(log, nil)
			if err != nil {
				return fmt.Errorf("index search: %w", err)
			}
			defer a.close()

			ns, err := a.namespace(namespace)
			if err != nil {
				return fmt.Errorf("index search: %w", err)
			}
			if k <= 0 {
				k = a.settings.TopK
			}
			emb, err := a.newEmbedder(ctx)
			if err != nil {
				return fmt.Errorf("index search: %w", err)
			}
			idx, err := a.indexes.Lookup(ctx, ns)
			if err != nil {
				return fmt.Errorf("index search: %w", err)
			}
			retriever, err := rag.NewRetriever(emb, idx)
			if err != nil {
				return fmt.Errorf("index search: %w", err)
			}

			results, err := retriever.Retrieve(ctx, strings.Join(args, " "), k)
			if err != nil {
				return fmt.Errorf("index search: %w", err)
			}
			printResults(cmd.OutOrStdout(), results, rag.NewResolver(rag.PageOffsets(a.settings.PageOffsets)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to search (default from RAGPDF_NAMESPACE)")
	cmd.Flags().IntVarP(&k, "top-k", "k", 5, "Number of passages to print (0 uses RAGPDF_TOP_K)")
	return cmd
}

// printResults writes one line per result with its printed page and
// distance, followed by an excerpt.
func printResults(w io.Writer, results []rag.RetrievalResult, resolver *rag.Resolver) {
	for i, r := range results {
		fmt.Fprintf(w, "[%d] %s, p.%d (distance %.4f)\n", i+1, r.Chunk.Source, resolver.PrintedPage(r.Chunk.Source, r.Chunk.Page), r.Score)
		fmt.Fprintf(w, "    %s\n", rag.Excerpt(r.Chunk.Text))
	}
}

func newIndexResetCmd() *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every entry in a namespace's index",
		Long: `Delete the namespace's persisted index so the next ingest starts empty.

This is the way to switch embedding models: vectors of a different dimension
are rejected by an existing index. The document catalog is left untouched.

Example:
  ragpdf index reset --namespace textbooks`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := newApp(log, nil)
			if err != nil {
				return fmt.Errorf("index reset: %w", err)
			}
			defer a.close()

			ns, err := a.namespace(namespace)
			if err != nil {
				return fmt.Errorf("index reset: %w", err)
			}
			if err := a.indexes.Reset(ctx, ns); err != nil {
				return fmt.Errorf("index reset: %w", err)
			}
			log.Info("index reset", slog.String("namespace", ns), slog.String("backend", a.indexes.Backend()))
			fmt.Fprintf(cmd.OutOrStdout(), "namespace %q reset\n", ns)
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to reset")
	_ = cmd.MarkFlagRequired("namespace")
	return cmd
}
