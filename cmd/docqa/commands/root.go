// Package commands defines all Cobra CLI commands for the docqa binary.
package commands

import (
	"context"

	"github.com/spf13/cobra"
)

// annotationNoLibrary marks commands that run without opening the library.
const annotationNoLibrary = "docqa/no-library"

// Execute builds the command tree, runs it with ctx and releases every
// resource the command opened, whether or not it succeeded.
func Execute(ctx context.Context) error {
	a := &app{}
	defer a.close()
	return newRootCmd(a).ExecuteContext(ctx)
}

// newRootCmd constructs the root Cobra command that all subcommands attach to.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "docqa",
		Short: "docqa: a local document library with lexical and vector retrieval",
		Long: `docqa keeps a local library of PDF and text documents, splits them into
overlapping fragments and retrieves the fragments most relevant to a query.

Two retrieval modes are available:
  lexical   TF-IDF over whitespace tokens, no external services (default)
  vector    cosine similarity of embeddings from Ollama, OpenAI or Azure OpenAI

Settings come from environment variables, a .env file, or a config file
(~/.docqa/config.yaml, ./docqa.yaml or ./docqa.toml). Environment variables
always win. See 'docqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML or TOML config file (default: ~/.docqa/config.yaml)")

	root.AddCommand(
		newIngestCmd(a),
		newQueryCmd(a),
		newDocsCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newDoctorCmd(a),
		newVersionCmd(),
	)

	return root
}
