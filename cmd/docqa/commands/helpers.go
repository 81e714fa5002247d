package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/document"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/rag"
)

// processFlags holds per-invocation overrides of the processing settings.
type processFlags struct {
	mode        string
	chunkSize   int
	overlap     int
	policy      string
	concurrency int
}

// bind registers the processing flags on cmd.
func (f *processFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.mode, "mode", "m", "", "Retrieval mode to process for: lexical or vector (default: RETRIEVAL_MODE)")
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", 0, "Fragment length in characters (default: CHUNK_SIZE or 800)")
	cmd.Flags().IntVar(&f.overlap, "chunk-overlap", 0, "Characters shared by consecutive fragments (default: CHUNK_OVERLAP or 100)")
	cmd.Flags().StringVar(&f.policy, "policy", "", "Reprocess visibility: keep or hide (default: REPROCESS_POLICY or keep)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Documents processed in parallel (default: 4)")
}

// apply returns base with every flag the user set applied on top.
func (f *processFlags) apply(cmd *cobra.Command, base config.Settings) (config.Settings, error) {
	s := base
	flags := cmd.Flags()
	if flags.Changed("mode") {
		m, err := rag.ParseMode(f.mode)
		if err != nil {
			return s, err
		}
		s.Mode = m
	}
	if flags.Changed("chunk-size") {
		s.Chunking.Length = f.chunkSize
	}
	if flags.Changed("chunk-overlap") {
		s.Chunking.Overlap = f.overlap
	}
	if flags.Changed("policy") {
		p, err := document.ParsePolicy(f.policy)
		if err != nil {
			return s, err
		}
		s.Policy = p
	}
	if flags.Changed("concurrency") {
		s.Concurrency = f.concurrency
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// collectFiles expands paths into the supported files they name. Directories
// are walked recursively; hidden entries are skipped.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != p && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && ingestion.Supported(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

// readSource loads path as an ingestion source named after its base name.
func readSource(path string) (ingestion.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingestion.Source{}, err
	}
	return ingestion.Source{Name: filepath.Base(path), Data: data}, nil
}

// printResults writes one line per batch result and returns an error when
// any item failed. Duplicates are reported as skipped.
func printResults(w io.Writer, verb string, results []ingestion.Result) error {
	failed := 0
	for _, r := range results {
		switch {
		case r.Err == nil:
			fmt.Fprintf(w, "%-10s %s (%d fragments, %s)\n", verb, r.Name, len(r.Document.Fragments), r.Document.ID)
		case errors.Is(r.Err, document.ErrDuplicate):
			fmt.Fprintf(w, "%-10s %s: %v\n", "skipped", r.Name, r.Err)
		default:
			failed++
			fmt.Fprintf(w, "%-10s %s: %v\n", "failed", r.Name, r.Err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// excerpt shortens text to at most n runes on one line.
func excerpt(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}
