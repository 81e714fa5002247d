// Package ingestion implements the document processing pipeline. It turns an
// uploaded file into a document in the library: extract text, chunk it,
// embed the fragments when the library runs in vector mode, commit the new
// fragment set atomically, persist it, and mirror it to the optional vector
// store. The pipeline backs the `docqa ingest`, `docqa docs` and
// `docqa import` commands.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/document"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// DefaultConcurrency is the number of documents processed in parallel by
// AddAll and ReprocessAll.
const DefaultConcurrency = 4

// Source is a file to ingest.
type Source struct {
	// Name is the display name, usually the file's base name.
	Name string
	// ContentType is the MIME type if known.
	ContentType string
	// Data is the raw file content.
	Data []byte
}

// Config holds the settings new fragment sets are built with.
type Config struct {
	// Chunking is the fragment length and overlap.
	Chunking chunker.Config
	// Mode selects whether fragments are embedded.
	Mode rag.Mode
	// Policy decides whether a document stays queryable while reprocessed.
	Policy document.Policy
	// Concurrency bounds parallel processing. Defaults to DefaultConcurrency.
	Concurrency int
}

// Persister stores documents durably.
type Persister interface {
	SaveDocument(ctx context.Context, doc document.Document) error
	DeleteDocument(ctx context.Context, id string) error
}

// Observer receives one event per processing attempt.
type Observer interface {
	// ObserveIngestion records the outcome ("processed" or "error"), the
	// number of fragments committed and the duration of one attempt.
	ObserveIngestion(outcome string, fragments int, seconds float64)
	// SetFragments records the size of the retrieval pool.
	SetFragments(n int)
}

// Pipeline orchestrates extract → chunk → embed → commit → persist for the
// documents of one library. It is safe for concurrent use.
type Pipeline struct {
	// lib owns every document and its fragment set.
	lib *document.Library
	// embedder produces fragment embeddings in vector mode. May be nil.
	embedder rag.Embedder
	// cfg holds the resolved pipeline configuration.
	cfg Config
	// persist stores documents durably. May be nil.
	persist Persister
	// mirror receives embedded fragments. May be nil.
	mirror rag.VectorStore
	// observer receives processing events. May be nil.
	observer Observer
	// now and newID are replaceable in tests.
	now   func() time.Time
	newID func() string
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithPersister stores every document change in p.
func WithPersister(p Persister) Option {
	return func(pl *Pipeline) { pl.persist = p }
}

// WithMirror copies embedded fragment sets into a vector store.
func WithMirror(m rag.VectorStore) Option {
	return func(pl *Pipeline) { pl.mirror = m }
}

// WithObserver reports processing events to o.
func WithObserver(o Observer) Option {
	return func(pl *Pipeline) { pl.observer = o }
}

// withClock replaces the clock and id generator.
func withClock(now func() time.Time, newID func() string) Option {
	return func(pl *Pipeline) {
		pl.now = now
		pl.newID = newID
	}
}

// NewPipeline constructs a Pipeline. The configuration is validated up
// front: invalid chunking, an unknown mode, or vector mode without an
// embedder yield rag.ErrConfiguration.
func NewPipeline(lib *document.Library, embedder rag.Embedder, cfg Config, opts ...Option) (*Pipeline, error) {
	if lib == nil {
		return nil, fmt.Errorf("ingestion: library must not be nil")
	}
	if err := cfg.Chunking.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode != rag.ModeLexical && cfg.Mode != rag.ModeVector {
		return nil, fmt.Errorf("ingestion: unknown mode %q: %w", cfg.Mode, rag.ErrConfiguration)
	}
	if cfg.Mode == rag.ModeVector && embedder == nil {
		return nil, fmt.Errorf("ingestion: vector mode requires an embedder: %w", rag.ErrConfiguration)
	}
	if cfg.Policy == "" {
		cfg.Policy = document.PolicyKeepVisible
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	p := &Pipeline{
		lib:      lib,
		embedder: embedder,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Library returns the library the pipeline writes to.
func (p *Pipeline) Library() *document.Library { return p.lib }

// Add uploads a new document and processes it. A file whose content
// matches an existing document is rejected with document.ErrDuplicate and
// nothing is added. Extraction and processing failures leave the document
// in the library with StatusError; the error is also returned.
func (p *Pipeline) Add(ctx context.Context, src Source) (document.Document, error) {
	fp, err := document.Fingerprint(src.Data)
	if err != nil {
		return document.Document{}, err
	}

	kind := InferKind(src.Name, src.ContentType, src.Data)
	doc, err := p.lib.Add(document.Document{
		ID:          p.newID(),
		Name:        src.Name,
		Kind:        kind,
		Status:      document.StatusProcessing,
		Fingerprint: fp,
		UploadedAt:  p.now().UTC(),
		Chunking:    p.cfg.Chunking,
		Mode:        p.cfg.Mode,
	})
	if err != nil {
		return document.Document{}, fmt.Errorf("ingestion: add %s: %w", src.Name, err)
	}

	logging.FromContext(ctx).Info("ingestion: document added",
		slog.String("id", doc.ID),
		slog.String("name", doc.Name),
		slog.String("kind", string(kind)),
	)

	content, err := Extract(kind, src.Data)
	if err != nil {
		return p.fail(ctx, doc.ID, time.Now(), err)
	}
	return p.process(ctx, doc.ID, content, "")
}

// Result is the outcome of one document in a batch operation.
type Result struct {
	// Name identifies the source or document.
	Name string
	// Document is the document after the operation, if it exists.
	Document document.Document
	// Err is the per-document failure, if any.
	Err error
}

// AddAll adds every source with bounded concurrency. Each source succeeds
// or fails independently; results are returned in input order.
func (p *Pipeline) AddAll(ctx context.Context, srcs []Source) []Result {
	results := make([]Result, len(srcs))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, src := range srcs {
		g.Go(func() error {
			doc, err := p.Add(ctx, src)
			results[i] = Result{Name: src.Name, Document: doc, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Sync brings the library in line with a file on disk: a new name is added,
// changed content is reprocessed in place, and unchanged content is left
// alone. The second return value reports whether anything was processed.
func (p *Pipeline) Sync(ctx context.Context, src Source) (document.Document, bool, error) {
	existing, ok := p.lib.FindByName(src.Name)
	if !ok {
		doc, err := p.Add(ctx, src)
		return doc, doc.ID != "", err
	}

	fp, err := document.Fingerprint(src.Data)
	if err != nil {
		return existing, false, err
	}
	if fp == existing.Fingerprint {
		return existing, false, nil
	}
	if other, dup := p.lib.FindByFingerprint(fp); dup && other.ID != existing.ID {
		return existing, false, fmt.Errorf("ingestion: %s has the same content as %s: %w", src.Name, other.Name, document.ErrDuplicate)
	}

	start := time.Now()
	if _, err := p.lib.BeginProcessing(existing.ID, p.cfg.Policy); err != nil {
		return existing, false, err
	}
	content, err := Extract(existing.Kind, src.Data)
	if err != nil {
		doc, ferr := p.fail(ctx, existing.ID, start, err)
		return doc, true, ferr
	}
	doc, err := p.process(ctx, existing.ID, content, fp)
	return doc, true, err
}

// Reprocess rebuilds a document's fragment set from its stored content with
// the pipeline's current settings.
func (p *Pipeline) Reprocess(ctx context.Context, id string) (document.Document, error) {
	doc, err := p.lib.Get(id)
	if err != nil {
		return document.Document{}, err
	}
	if doc.Content == "" {
		return doc, fmt.Errorf("ingestion: reprocess %s: no stored content; add the file again", doc.Name)
	}

	if _, err := p.lib.BeginProcessing(id, p.cfg.Policy); err != nil {
		return document.Document{}, err
	}
	p.save(ctx, id)
	return p.process(ctx, id, doc.Content, "")
}

// ReprocessAll reprocesses every document with stored content.
func (p *Pipeline) ReprocessAll(ctx context.Context) []Result {
	docs := p.lib.List()
	results := make([]Result, len(docs))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, d := range docs {
		g.Go(func() error {
			doc, err := p.Reprocess(ctx, d.ID)
			results[i] = Result{Name: d.Name, Document: doc, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Rename changes a document's display name.
func (p *Pipeline) Rename(ctx context.Context, id, name string) (document.Document, error) {
	doc, err := p.lib.Rename(id, name)
	if err != nil {
		return document.Document{}, err
	}
	if err := p.persistDoc(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Delete removes a document from the library, the store and the mirror.
func (p *Pipeline) Delete(ctx context.Context, id string) (document.Document, error) {
	doc, err := p.lib.Remove(id)
	if err != nil {
		return document.Document{}, err
	}
	p.report()

	if p.persist != nil {
		if err := p.persist.DeleteDocument(ctx, id); err != nil {
			return doc, fmt.Errorf("ingestion: delete %s: %w", id, err)
		}
	}
	if p.mirror != nil {
		if err := p.mirror.DeleteDocument(ctx, id); err != nil {
			logging.FromContext(ctx).Warn("ingestion: mirror delete failed",
				slog.String("id", id),
				slog.Any("error", err),
			)
		}
	}
	return doc, nil
}

// Import restores archived documents. A document whose fingerprint or id is
// already present is skipped.
func (p *Pipeline) Import(ctx context.Context, docs []document.Document) (imported, skipped int, err error) {
	log := logging.FromContext(ctx)
	for _, d := range docs {
		if _, dup := p.lib.FindByFingerprint(d.Fingerprint); dup {
			skipped++
			log.Info("ingestion: import skipped duplicate", slog.String("name", d.Name))
			continue
		}
		if err := p.lib.Restore(d); err != nil {
			if errors.Is(err, document.ErrExists) || errors.Is(err, document.ErrDuplicate) {
				skipped++
				continue
			}
			return imported, skipped, err
		}
		if err := p.persistDoc(ctx, d); err != nil {
			return imported, skipped, err
		}
		p.mirrorDoc(ctx, d)
		imported++
	}
	p.report()
	return imported, skipped, nil
}

// process chunks content, embeds it in vector mode and commits the result.
// A non-empty fp replaces the stored fingerprint.
func (p *Pipeline) process(ctx context.Context, id, content, fp string) (document.Document, error) {
	start := time.Now()

	fragments, err := chunker.Chunk(id, content, p.cfg.Chunking)
	if err != nil {
		return p.fail(ctx, id, start, err)
	}

	if p.cfg.Mode == rag.ModeVector && len(fragments) > 0 {
		texts := make([]string, len(fragments))
		for i, f := range fragments {
			texts[i] = f.Text
		}
		vecs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return p.fail(ctx, id, start, fmt.Errorf("ingestion: embed: %w", err))
		}
		if len(vecs) != len(fragments) {
			return p.fail(ctx, id, start, fmt.Errorf("ingestion: embed: expected %d embeddings, got %d: %w",
				len(fragments), len(vecs), rag.ErrEmbeddingUnavailable))
		}
		for i := range fragments {
			fragments[i].Embedding = vecs[i]
		}
	}

	doc, err := p.lib.Commit(id, document.Commit{
		Content:     content,
		Fingerprint: fp,
		Chunking:    p.cfg.Chunking,
		Mode:        p.cfg.Mode,
		Fragments:   fragments,
	})
	if err != nil {
		return document.Document{}, err
	}

	elapsed := time.Since(start)
	logging.FromContext(ctx).Info("ingestion: document processed",
		slog.String("id", id),
		slog.String("name", doc.Name),
		slog.String("mode", string(p.cfg.Mode)),
		slog.Int("fragments", len(fragments)),
		slog.Duration("elapsed", elapsed),
	)
	p.observe("processed", len(fragments), elapsed)

	p.mirrorDoc(ctx, doc)
	if err := p.persistDoc(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// fail records cause on the document and returns it.
func (p *Pipeline) fail(ctx context.Context, id string, start time.Time, cause error) (document.Document, error) {
	doc, err := p.lib.Fail(id, cause)
	if err != nil {
		return document.Document{}, errors.Join(cause, err)
	}

	logging.FromContext(ctx).Error("ingestion: processing failed",
		slog.String("id", id),
		slog.String("name", doc.Name),
		slog.Any("error", cause),
	)
	p.observe("error", 0, time.Since(start))

	if err := p.persistDoc(ctx, doc); err != nil {
		return doc, errors.Join(cause, err)
	}
	return doc, cause
}

// save persists the current state of id, logging failures.
func (p *Pipeline) save(ctx context.Context, id string) {
	doc, err := p.lib.Get(id)
	if err != nil {
		return
	}
	if err := p.persistDoc(ctx, doc); err != nil {
		logging.FromContext(ctx).Warn("ingestion: persist failed", slog.String("id", id), slog.Any("error", err))
	}
}

func (p *Pipeline) persistDoc(ctx context.Context, doc document.Document) error {
	if p.persist == nil {
		return nil
	}
	if err := p.persist.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("ingestion: persist %s: %w", doc.ID, err)
	}
	return nil
}

// mirrorDoc replaces the document's points in the vector store. Mirror
// failures are logged and never fail processing: the library is the source
// of truth.
func (p *Pipeline) mirrorDoc(ctx context.Context, doc document.Document) {
	if p.mirror == nil || !doc.Embedded() {
		return
	}
	log := logging.FromContext(ctx)
	if err := p.mirror.DeleteDocument(ctx, doc.ID); err != nil {
		log.Warn("ingestion: mirror delete failed", slog.String("id", doc.ID), slog.Any("error", err))
		return
	}
	if err := p.mirror.Upsert(ctx, doc.Fragments); err != nil {
		log.Warn("ingestion: mirror upsert failed", slog.String("id", doc.ID), slog.Any("error", err))
	}
}

func (p *Pipeline) observe(outcome string, fragments int, elapsed time.Duration) {
	if p.observer == nil {
		return
	}
	p.observer.ObserveIngestion(outcome, fragments, elapsed.Seconds())
	p.report()
}

func (p *Pipeline) report() {
	if p.observer != nil {
		p.observer.SetFragments(len(p.lib.Pool()))
	}
}
