// Package commands defines all Cobra CLI commands for the ragpdf binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/aramishf/RAG-PDF-Expert/internal/audit"
	"github.com/aramishf/RAG-PDF-Expert/internal/config"
	"github.com/aramishf/RAG-PDF-Expert/internal/logging"
)

var (
	configPath       string // --config
	loadedConfigPath string // what config.Load actually read, for the audit record
)

// NewRootCmd returns the ragpdf command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ragpdf",
		Short: "ragpdf answers questions about your PDFs with page-level citations",
		Long: `ragpdf indexes PDF and text documents into a vector index and answers
natural language questions about them, citing the pages each answer used.

Documents are grouped into namespaces; every namespace has its own index.
Model and embedding providers are selected via environment variables or a
YAML config file (~/.ragpdf/config.yaml).
See 'ragpdf --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path
			audit.LogCommandStart(cmd.Context(), log, cmd.CommandPath(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (searched: $RAGPDF_CONFIG, ~/.ragpdf/config.yaml, ./ragpdf.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewIndexCmd(),
		NewVersionCmd(),
	)

	return root
}
