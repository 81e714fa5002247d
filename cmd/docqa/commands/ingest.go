package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/watch"
)

// newIngestCmd constructs the `docqa ingest` command, which adds files to the
// library and builds their fragment sets.
func newIngestCmd(a *app) *cobra.Command {
	var flags processFlags
	var watchDir bool

	cmd := &cobra.Command{
		Use:   "ingest [path...]",
		Short: "Add PDF and text files to the library",
		Long: `Extract text from PDF, .txt and .md files, split it into overlapping
fragments and store the result in the local library. Directories are walked
recursively. A file whose content is already in the library is skipped.

In vector mode every fragment is embedded with the configured provider
(EMBEDDING_PROVIDER) and, when QDRANT_HOST is set, mirrored into Qdrant.

With --watch, the single directory argument is kept in sync: changed files
are reprocessed in place and deleted files are removed from the library
until the command is interrupted.

Examples:
  docqa ingest handbook.pdf notes.md
  docqa ingest --mode vector --chunk-size 500 --chunk-overlap 50 ./docs
  docqa ingest --watch ./docs`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := flags.apply(cmd, a.settings)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			pipeline, err := a.pipeline(ctx, s)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			if watchDir {
				if len(args) != 1 {
					return fmt.Errorf("ingest: --watch takes exactly one directory")
				}
				return runWatch(ctx, cmd.OutOrStdout(), pipeline, args[0])
			}

			files, err := collectFiles(args)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if len(files) == 0 {
				return fmt.Errorf("ingest: no supported files found (pdf, txt, md)")
			}

			sources := make([]ingestion.Source, 0, len(files))
			for _, f := range files {
				src, err := readSource(f)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				sources = append(sources, src)
			}

			a.log.Info("starting ingestion",
				slog.Int("documents", len(sources)),
				slog.String("mode", s.Mode.String()),
				slog.Int("chunk_size", s.Chunking.Length),
				slog.Int("chunk_overlap", s.Chunking.Overlap),
			)
			return printResults(cmd.OutOrStdout(), "added", pipeline.AddAll(ctx, sources))
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVarP(&watchDir, "watch", "w", false, "Keep the library in sync with a directory until interrupted")

	return cmd
}

// runWatch syncs every supported file in dir once, then applies changes as
// they happen until ctx is cancelled.
func runWatch(ctx context.Context, out io.Writer, pipeline *ingestion.Pipeline, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	h := &syncHandler{pipeline: pipeline, out: out}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !ingestion.Supported(e.Name()) {
			continue
		}
		if err := h.Upsert(ctx, filepath.Join(dir, e.Name())); err != nil {
			fmt.Fprintf(out, "%-10s %s: %v\n", "failed", e.Name(), err)
		}
	}

	fmt.Fprintf(out, "watching %s (Ctrl-C to stop)\n", dir)
	w := watch.New(dir, ingestion.Supported, h, watch.DefaultDebounce)
	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	return nil
}

// syncHandler applies file changes to the library through a pipeline.
type syncHandler struct {
	pipeline *ingestion.Pipeline
	out      io.Writer
}

// Upsert adds or reprocesses the file at path.
func (h *syncHandler) Upsert(ctx context.Context, path string) error {
	src, err := readSource(path)
	if err != nil {
		return err
	}
	doc, changed, err := h.pipeline.Sync(ctx, src)
	if err != nil {
		return err
	}
	if changed {
		fmt.Fprintf(h.out, "%-10s %s (%d fragments, %s)\n", "synced", doc.Name, len(doc.Fragments), doc.ID)
	}
	return nil
}

// Remove deletes the document named after path, if present.
func (h *syncHandler) Remove(ctx context.Context, path string) error {
	name := filepath.Base(path)
	doc, ok := h.pipeline.Library().FindByName(name)
	if !ok {
		logging.FromContext(ctx).Debug("watch: removed file was not in the library", slog.String("name", name))
		return nil
	}
	if _, err := h.pipeline.Delete(ctx, doc.ID); err != nil {
		return err
	}
	fmt.Fprintf(h.out, "%-10s %s (%s)\n", "removed", doc.Name, doc.ID)
	return nil
}
