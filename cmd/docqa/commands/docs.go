package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/document"
	"github.com/54b3r/docqa-go/internal/ingestion"
)

// newDocsCmd constructs the `docqa docs` command group for managing the
// library.
func newDocsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "List, inspect, rename, delete and reprocess library documents",
		Long: `Manage the documents in the local library. Documents can be referenced by
id or by name.`,
	}

	cmd.AddCommand(
		newDocsListCmd(a),
		newDocsShowCmd(a),
		newDocsRenameCmd(a),
		newDocsDeleteCmd(a),
		newDocsReprocessCmd(a),
	)
	return cmd
}

func newDocsListCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List library documents in upload order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs := a.lib.List()
			out := cmd.OutOrStdout()
			if asJSON {
				summaries := make([]docSummary, 0, len(docs))
				for _, d := range docs {
					summaries = append(summaries, summarize(d))
				}
				return writeJSON(out, summaries)
			}
			if len(docs) == 0 {
				fmt.Fprintln(out, "the library is empty; add files with 'docqa ingest'")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tFRAGMENTS\tMODE\tUPLOADED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					d.ID, d.Name, d.Kind, d.Status, len(d.Fragments), d.Mode, d.UploadedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print documents as JSON")
	return cmd
}

// docSummary is a document without its content and fragments.
type docSummary struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Kind        document.Kind   `json:"type"`
	Status      document.Status `json:"status"`
	Error       string          `json:"errorMessage,omitempty"`
	Fragments   int             `json:"chunks"`
	Embedded    bool            `json:"embedded"`
	Mode        string          `json:"mode,omitempty"`
	ChunkSize   int             `json:"chunkSize"`
	Overlap     int             `json:"chunkOverlap"`
	Fingerprint string          `json:"fingerprint"`
	UploadedAt  time.Time       `json:"uploadDate"`
}

func summarize(d document.Document) docSummary {
	return docSummary{
		ID:          d.ID,
		Name:        d.Name,
		Kind:        d.Kind,
		Status:      d.Status,
		Error:       d.Error,
		Fragments:   len(d.Fragments),
		Embedded:    d.Embedded(),
		Mode:        d.Mode.String(),
		ChunkSize:   d.Chunking.Length,
		Overlap:     d.Chunking.Overlap,
		Fingerprint: d.Fingerprint,
		UploadedAt:  d.UploadedAt,
	}
}

func newDocsShowCmd(a *app) *cobra.Command {
	var fragments bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id|name>",
		Short: "Show one document and optionally its fragments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.resolveDocument(args[0])
			if err != nil {
				return fmt.Errorf("docs show: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				if fragments {
					return writeJSON(out, doc)
				}
				return writeJSON(out, summarize(doc))
			}

			s := summarize(doc)
			fmt.Fprintf(out, "id:          %s\n", s.ID)
			fmt.Fprintf(out, "name:        %s\n", s.Name)
			fmt.Fprintf(out, "type:        %s\n", s.Kind)
			fmt.Fprintf(out, "status:      %s\n", s.Status)
			if s.Error != "" {
				fmt.Fprintf(out, "error:       %s\n", s.Error)
			}
			fmt.Fprintf(out, "uploaded:    %s\n", s.UploadedAt.Local().Format(time.DateTime))
			fmt.Fprintf(out, "fingerprint: %s\n", s.Fingerprint)
			fmt.Fprintf(out, "characters:  %d\n", len([]rune(doc.Content)))
			fmt.Fprintf(out, "fragments:   %d (size %d, overlap %d, mode %s, embedded %t)\n",
				s.Fragments, s.ChunkSize, s.Overlap, s.Mode, s.Embedded)

			if fragments {
				for _, f := range doc.Fragments {
					fmt.Fprintf(out, "\n#%d %s (%d-%d)\n%s\n", f.Index, f.ID, f.Start, f.End, f.Text)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&fragments, "fragments", "f", false, "Print every fragment")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the document as JSON")
	return cmd
}

func newDocsRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id|name> <new-name>",
		Short: "Change a document's display name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			doc, err := a.resolveDocument(args[0])
			if err != nil {
				return fmt.Errorf("docs rename: %w", err)
			}
			pipeline, err := a.libraryPipeline(ctx)
			if err != nil {
				return fmt.Errorf("docs rename: %w", err)
			}
			renamed, err := pipeline.Rename(ctx, doc.ID, args[1])
			if err != nil {
				return fmt.Errorf("docs rename: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", doc.Name, renamed.Name)
			return nil
		},
	}
}

func newDocsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id|name>...",
		Aliases: []string{"rm"},
		Short:   "Remove documents and their fragments from the library",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pipeline, err := a.libraryPipeline(ctx)
			if err != nil {
				return fmt.Errorf("docs delete: %w", err)
			}
			for _, ref := range args {
				doc, err := a.resolveDocument(ref)
				if err != nil {
					return fmt.Errorf("docs delete: %w", err)
				}
				if _, err := pipeline.Delete(ctx, doc.ID); err != nil {
					return fmt.Errorf("docs delete: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (%s)\n", doc.Name, doc.ID)
			}
			return nil
		},
	}
}

func newDocsReprocessCmd(a *app) *cobra.Command {
	var flags processFlags
	var all bool

	cmd := &cobra.Command{
		Use:   "reprocess [id|name...]",
		Short: "Rebuild fragment sets with the current settings",
		Long: `Rebuild the fragment sets of the given documents (or every document with
--all) from their stored text, using the current chunking settings and mode.

Until the new set is committed, the previous one stays searchable with the
keep policy (default) or is withdrawn from retrieval with --policy hide.
A failed rebuild keeps the previous set and marks the document as errored.

Examples:
  docqa docs reprocess --all --mode vector
  docqa docs reprocess handbook.pdf --chunk-size 400 --chunk-overlap 40`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if all == (len(args) > 0) {
				return fmt.Errorf("docs reprocess: pass either document references or --all")
			}

			s, err := flags.apply(cmd, a.settings)
			if err != nil {
				return fmt.Errorf("docs reprocess: %w", err)
			}
			pipeline, err := a.pipeline(ctx, s)
			if err != nil {
				return fmt.Errorf("docs reprocess: %w", err)
			}

			if all {
				return printResults(cmd.OutOrStdout(), "processed", pipeline.ReprocessAll(ctx))
			}

			results := make([]ingestion.Result, 0, len(args))
			for _, ref := range args {
				doc, err := a.resolveDocument(ref)
				if err != nil {
					results = append(results, ingestion.Result{Name: ref, Err: err})
					continue
				}
				updated, err := pipeline.Reprocess(ctx, doc.ID)
				results = append(results, ingestion.Result{Name: doc.Name, Document: updated, Err: err})
			}
			return printResults(cmd.OutOrStdout(), "processed", results)
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Reprocess every document")
	return cmd
}
