package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
)

// DefaultTopK is the result count used when a caller asks for k <= 0.
const DefaultTopK = 4

// Dispatcher routes a retrieval call to the Scorer registered for the
// requested Mode and returns its result unchanged. It never retries, never
// blends modes and never mutates the pool.
type Dispatcher struct {
	// scorers maps each supported mode to its strategy.
	scorers map[Mode]Scorer

	// defaultTopK replaces a non-positive k.
	defaultTopK int

	// observer receives one event per call. May be nil.
	observer Observer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithScorer registers s for mode, replacing any existing registration.
func WithScorer(mode Mode, s Scorer) DispatcherOption {
	return func(d *Dispatcher) {
		if s != nil {
			d.scorers[mode] = s
		}
	}
}

// WithDefaultTopK sets the result count used when Retrieve is called with
// k <= 0.
func WithDefaultTopK(k int) DispatcherOption {
	return func(d *Dispatcher) {
		if k > 0 {
			d.defaultTopK = k
		}
	}
}

// WithObserver attaches an Observer notified after every call.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// NewDispatcher builds a Dispatcher with the lexical scorer always
// registered. The vector scorer is registered only when embedder is
// non-nil, so a vector call without a provider fails with ErrConfiguration
// instead of silently degrading.
func NewDispatcher(embedder Embedder, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		scorers:     map[Mode]Scorer{ModeLexical: NewLexicalScorer()},
		defaultTopK: DefaultTopK,
	}
	if embedder != nil {
		d.scorers[ModeVector] = &VectorScorer{embedder: embedder}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Retrieve scores pool against query with the scorer registered for mode
// and returns at most k results.
func (d *Dispatcher) Retrieve(ctx context.Context, mode Mode, query string, pool []Fragment, k int) ([]ScoredFragment, error) {
	log := logging.FromContext(ctx)
	if k <= 0 {
		k = d.defaultTopK
	}

	scorer, ok := d.scorers[mode]
	if !ok {
		d.observe(mode, "error", 0, 0)
		return nil, fmt.Errorf("rag: no scorer registered for mode %q: %w", mode, ErrConfiguration)
	}

	start := time.Now()
	results, err := scorer.Score(ctx, query, pool, k)
	elapsed := time.Since(start)
	if err != nil {
		d.observe(mode, "error", 0, elapsed)
		log.Warn("retrieval failed",
			slog.String("mode", mode.String()),
			slog.Int("pool", len(pool)),
			slog.Any("error", err),
		)
		return nil, err
	}

	outcome := classify(mode, results)
	d.observe(mode, outcome, len(results), elapsed)
	log.Debug("retrieval complete",
		slog.String("mode", mode.String()),
		slog.String("outcome", outcome),
		slog.Int("pool", len(pool)),
		slog.Int("results", len(results)),
		slog.Duration("duration", elapsed),
	)
	return results, nil
}

// classify labels a successful result for metrics. Only lexical retrieval
// falls back; its fallback results all carry a zero score.
func classify(mode Mode, results []ScoredFragment) string {
	if len(results) == 0 {
		return "empty"
	}
	if mode != ModeLexical {
		return "ok"
	}
	for _, r := range results {
		if r.Score != 0 {
			return "ok"
		}
	}
	return "fallback"
}

func (d *Dispatcher) observe(mode Mode, outcome string, n int, elapsed time.Duration) {
	if d.observer == nil {
		return
	}
	d.observer.ObserveRetrieval(mode.String(), outcome, n, elapsed.Seconds())
}

// IsEmbeddingUnavailable reports whether err was caused by the embedding
// provider rather than by the pool or the configuration.
func IsEmbeddingUnavailable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable)
}
