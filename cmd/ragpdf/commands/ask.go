package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
	"github.com/aramishf/RAG-PDF-Expert/internal/qa"
	"github.com/aramishf/RAG-PDF-Expert/internal/tracing"
)

// NewAskCmd constructs the `ragpdf ask` command, which answers one question
// from a namespace and prints the answer followed by its citations.
func NewAskCmd() *cobra.Command {
	var namespace string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed documents",
		Long: `Retrieve the passages nearest to the question, generate an answer from
them, and list the pages the answer cites.

Examples:
  ragpdf ask "what does the mitochondrion do?"
  ragpdf ask --namespace textbooks "summarise chapter 3"
  ragpdf ask --json "who wrote the report?" | jq .citations`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			flush, _ := tracing.Setup(tracing.ConfigFromEnv(), "ragpdf-ask")
			defer flush()

			a, err := newApp(log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.close()

			ns, err := a.namespace(namespace)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			emb, err := a.newEmbedder(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			svc, err := a.newQA(ctx, emb)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			answer, err := svc.Ask(ctx, ns, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(answer) //nolint:wrapcheck // CLI entry point, error goes directly to cobra
			}
			printAnswer(cmd.OutOrStdout(), answer)
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to query (default from RAGPDF_NAMESPACE)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the answer and citations as JSON")

	return cmd
}

// printAnswer writes the answer text followed by a numbered source list.
func printAnswer(w io.Writer, answer qa.Answer) {
	fmt.Fprintln(w, answer.Answer)
	if len(answer.Citations) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for i, c := range answer.Citations {
		fmt.Fprintf(w, "  [%d] %s, p.%d (distance %.4f)\n", i+1, c.Source, c.PrintedPage, c.Score)
		if c.Excerpt != "" {
			fmt.Fprintf(w, "      %s\n", c.Excerpt)
		}
	}
}
