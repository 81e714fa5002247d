package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/rag"
)

// queryHit is the JSON shape of one retrieval result.
type queryHit struct {
	Rank         int     `json:"rank"`
	Score        float64 `json:"score"`
	DocumentID   string  `json:"documentId"`
	DocumentName string  `json:"documentName"`
	FragmentID   string  `json:"fragmentId"`
	Index        int     `json:"index"`
	Start        int     `json:"start"`
	End          int     `json:"end"`
	Text         string  `json:"text"`
}

// newQueryCmd constructs the `docqa query` command, which prints the
// fragments most relevant to a question.
func newQueryCmd(a *app) *cobra.Command {
	var mode string
	var k int
	var maxTokens int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Retrieve the fragments most relevant to a question",
		Long: `Rank every visible fragment in the library against a question and print
the best matches.

Lexical mode scores with TF-IDF. When no fragment shares a term with the
question, the first fragments of the library are returned with score 0.

Vector mode embeds the question with the configured provider and ranks
fragments by cosine similarity. Only fragments processed in vector mode
take part; reprocess documents with 'docqa docs reprocess --all --mode vector'
if none do.

Examples:
  docqa query "how do I rotate the signing key?"
  docqa query --mode vector -k 8 "escalation policy for outages"
  docqa query --json "retention period" | jq '.[0].text'
  docqa query -k 20 --max-tokens 1500 "incident response steps"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m := a.settings.Mode
			if cmd.Flags().Changed("mode") {
				parsed, err := rag.ParseMode(mode)
				if err != nil {
					return fmt.Errorf("query: %w", err)
				}
				m = parsed
			}

			d, err := a.dispatcher(m)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			question := strings.Join(args, " ")
			results, err := d.Retrieve(ctx, m, question, a.lib.Pool(), k)
			if err != nil {
				if rag.IsEmbeddingUnavailable(err) {
					return fmt.Errorf("query: the embedding provider could not embed the question; check EMBEDDING_PROVIDER or run 'docqa doctor': %w", err)
				}
				return fmt.Errorf("query: %w", err)
			}

			if fitted := budget.Fit(results, maxTokens); len(fitted) < len(results) {
				a.log.Info("query: results trimmed to token budget",
					slog.Int("max_tokens", maxTokens),
					slog.Int("kept", len(fitted)),
					slog.Int("dropped", len(results)-len(fitted)),
				)
				results = fitted
			}

			a.log.Debug("query: results ready",
				slog.Int("results", len(results)),
				slog.Int("estimated_tokens", budget.EstimateFragments(results)),
			)

			hits := a.hits(results)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, hits)
			}
			if len(hits) == 0 {
				if maxTokens > 0 && a.lib.Len() > 0 {
					fmt.Fprintf(out, "no fragment fits within --max-tokens %d\n", maxTokens)
					return nil
				}
				printNoResults(out, m)
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(out, "%d. [%.4f] %s #%d (%d-%d)\n   %s\n",
					h.Rank, h.Score, h.DocumentName, h.Index, h.Start, h.End, excerpt(h.Text, 240))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Retrieval mode: lexical or vector (default: RETRIEVAL_MODE)")
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "Number of fragments to return (default: RETRIEVAL_TOP_K or 4)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Drop lower-ranked fragments beyond this estimated token budget (0: no limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

// hits resolves document names for results.
func (a *app) hits(results []rag.ScoredFragment) []queryHit {
	hits := make([]queryHit, 0, len(results))
	for i, r := range results {
		name := r.Fragment.DocumentID
		if doc, err := a.lib.Get(r.Fragment.DocumentID); err == nil {
			name = doc.Name
		}
		hits = append(hits, queryHit{
			Rank:         i + 1,
			Score:        r.Score,
			DocumentID:   r.Fragment.DocumentID,
			DocumentName: name,
			FragmentID:   r.Fragment.ID,
			Index:        r.Fragment.Index,
			Start:        r.Fragment.Start,
			End:          r.Fragment.End,
			Text:         r.Fragment.Text,
		})
	}
	return hits
}

// printNoResults explains an empty result for mode.
func printNoResults(w io.Writer, mode rag.Mode) {
	if mode == rag.ModeVector {
		fmt.Fprintln(w, "no embedded fragments in the library; reprocess with 'docqa docs reprocess --all --mode vector'")
		return
	}
	fmt.Fprintln(w, "the library is empty; add files with 'docqa ingest'")
}
