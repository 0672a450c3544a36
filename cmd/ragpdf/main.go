// Command ragpdf is the entry point for the PDF question answering service.
// It provides a CLI (via Cobra) for ingesting documents and asking questions,
// and an HTTP server for the same operations.
package main

import (
	"fmt"
	"os"

	"github.com/aramishf/RAG-PDF-Expert/cmd/ragpdf/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
