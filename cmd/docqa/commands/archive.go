package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/document"
)

// newExportCmd constructs the `docqa export` command, which writes the whole
// library as one JSON archive.
func newExportCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the library, fragments and embeddings as JSON",
		Long: `Write every document with its extracted text, the chunking settings and
mode it was processed with, its fragments and their embeddings to one JSON
archive. Use 'docqa import' to load it into another library.

Examples:
  docqa export > library.json
  docqa export -o backup/library-$(date +%F).json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, ferr := os.Create(output)
				if ferr != nil {
					return fmt.Errorf("export: %w", ferr)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = fmt.Errorf("export: %w", cerr)
					}
				}()
				w = f
			}

			docs := a.lib.List()
			if err := document.WriteArchive(w, docs, time.Now()); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			a.log.Info("library exported",
				slog.Int("documents", len(docs)),
				slog.String("output", output),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write (default: stdout)")
	return cmd
}

// newImportCmd constructs the `docqa import` command, which restores
// documents from an archive written by `docqa export`.
func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive.json>",
		Short: "Import documents from an exported archive",
		Long: `Load the documents of an archive written by 'docqa export' into the library.
Fragments and embeddings are restored as they were exported; nothing is
re-chunked or re-embedded. Documents whose content or id is already in the
library are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("import: %w", err)
				}
				defer f.Close()
				r = f
			}

			archive, err := document.ReadArchive(r)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			pipeline, err := a.libraryPipeline(ctx)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			imported, skipped, err := pipeline.Import(ctx, archive.Documents)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d documents, skipped %d already present\n", imported, skipped)
			return nil
		},
	}
}
