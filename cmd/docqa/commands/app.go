package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/audit"
	"github.com/54b3r/docqa-go/internal/config"
	"github.com/54b3r/docqa-go/internal/document"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
	"github.com/54b3r/docqa-go/internal/telemetry"
)

// app holds everything a command needs once setup has run. Resources are
// opened lazily where they require a network connection.
type app struct {
	// configPath is the --config flag value.
	configPath string

	log      *slog.Logger
	settings config.Settings
	embCfg   embedder.Config
	metrics  *telemetry.Metrics

	store *store.SQLiteStore
	lib   *document.Library

	// provider and mirror are created on first use.
	provider *embedder.Provider
	mirror   *rag.QdrantStore
}

// setup configures logging and settings, emits the audit record and loads
// the library from SQLite.
func (a *app) setup(cmd *cobra.Command) error {
	ctx := logging.WithLogger(cmd.Context(), logging.New())
	ctx = logging.With(ctx, slog.String("command", cmd.Name()))
	a.log = logging.FromContext(ctx)
	cmd.SetContext(ctx)

	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	path, err := config.Load(a.configPath, a.log)
	if err != nil {
		return err
	}

	audit.LogCommandStart(ctx, a.log, cmd.CommandPath(), path)

	if cmd.Annotations[annotationNoLibrary] == "true" {
		return nil
	}

	if a.settings, err = config.Resolve(); err != nil {
		return err
	}
	if a.embCfg, err = embedder.ConfigFromEnv(); err != nil {
		return err
	}
	a.metrics = telemetry.New(prometheus.NewRegistry())

	return a.openLibrary(ctx)
}

// openLibrary opens the SQLite store and restores every saved document.
func (a *app) openLibrary(ctx context.Context) error {
	dbPath := a.settings.DBPath
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return err
		}
		dbPath = p
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	a.store = st

	docs, err := st.LoadAll(ctx)
	if err != nil {
		return err
	}

	a.lib = document.NewLibrary()
	for _, d := range docs {
		if err := a.lib.Restore(d); err != nil {
			a.log.Warn("library: skipping unreadable document",
				slog.String("id", d.ID),
				slog.String("name", d.Name),
				slog.Any("error", err),
			)
		}
	}
	a.metrics.SetFragments(len(a.lib.Pool()))

	a.log.Debug("library loaded",
		slog.String("path", dbPath),
		slog.Int("documents", a.lib.Len()),
	)
	return nil
}

// embeddingProvider returns the configured provider, creating it on first use.
func (a *app) embeddingProvider(mode rag.Mode) (*embedder.Provider, error) {
	if a.provider != nil {
		return a.provider, nil
	}
	if err := embedder.Validate(a.embCfg, mode, a.log); err != nil {
		return nil, err
	}
	p, err := embedder.New(a.embCfg)
	if err != nil {
		return nil, err
	}
	a.provider = p
	a.log.Info("embedder initialised",
		slog.String("provider", p.Backend()),
		slog.String("model", p.Model()),
	)
	return p, nil
}

// embedderFor returns the embedder mode needs. Lexical mode needs none, so
// the result is a nil interface.
func (a *app) embedderFor(mode rag.Mode) (rag.Embedder, error) {
	if mode != rag.ModeVector {
		return nil, nil
	}
	p, err := a.embeddingProvider(mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// vectorMirror connects to Qdrant when a host is configured. Connection
// failures are logged and the mirror is skipped.
func (a *app) vectorMirror(ctx context.Context) *rag.QdrantStore {
	if a.mirror != nil || !a.settings.MirrorEnabled() {
		return a.mirror
	}

	dims := a.embCfg.Dimensions
	if dims <= 0 {
		dims = embedder.DefaultDimensions(a.embCfg.Backend)
	}
	q := a.settings.Qdrant
	m, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       q.Host,
		Port:       q.Port,
		Collection: q.Collection,
		VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
		APIKey:     q.APIKey,
		UseTLS:     q.TLS,
	})
	if err != nil {
		a.log.Warn("qdrant mirror unavailable",
			slog.String("host", q.Host),
			slog.Int("port", q.Port),
			slog.Any("error", err),
		)
		return nil
	}
	a.mirror = m
	a.log.Info("qdrant mirror ready",
		slog.String("host", q.Host),
		slog.String("collection", q.Collection),
	)
	return m
}

// pipeline builds an ingestion pipeline with settings s. The Qdrant mirror
// is attached in vector mode.
func (a *app) pipeline(ctx context.Context, s config.Settings) (*ingestion.Pipeline, error) {
	emb, err := a.embedderFor(s.Mode)
	if err != nil {
		return nil, err
	}
	return a.newPipeline(ctx, emb, s, s.Mode == rag.ModeVector)
}

// libraryPipeline builds a pipeline for operations that never chunk or
// embed (rename, delete, import), so no embedding provider is created. The
// mirror is attached whenever it is configured so deletions and imported
// embeddings reach Qdrant.
func (a *app) libraryPipeline(ctx context.Context) (*ingestion.Pipeline, error) {
	s := a.settings
	s.Mode = rag.ModeLexical
	return a.newPipeline(ctx, nil, s, true)
}

func (a *app) newPipeline(ctx context.Context, emb rag.Embedder, s config.Settings, mirror bool) (*ingestion.Pipeline, error) {
	opts := []ingestion.Option{
		ingestion.WithPersister(a.store),
		ingestion.WithObserver(a.metrics),
	}
	if mirror {
		if m := a.vectorMirror(ctx); m != nil {
			opts = append(opts, ingestion.WithMirror(m))
		}
	}

	return ingestion.NewPipeline(a.lib, emb, ingestion.Config{
		Chunking:    s.Chunking,
		Mode:        s.Mode,
		Policy:      s.Policy,
		Concurrency: s.Concurrency,
	}, opts...)
}

// dispatcher builds a retrieval dispatcher able to serve mode.
func (a *app) dispatcher(mode rag.Mode) (*rag.Dispatcher, error) {
	emb, err := a.embedderFor(mode)
	if err != nil {
		return nil, err
	}
	return rag.NewDispatcher(emb,
		rag.WithDefaultTopK(a.settings.TopK),
		rag.WithObserver(a.metrics),
	), nil
}

// resolveDocument finds a document by id, falling back to its name.
func (a *app) resolveDocument(ref string) (document.Document, error) {
	if doc, err := a.lib.Get(ref); err == nil {
		return doc, nil
	}
	if doc, ok := a.lib.FindByName(ref); ok {
		return doc, nil
	}
	return document.Document{}, fmt.Errorf("%q: %w", ref, document.ErrNotFound)
}

// close writes the metrics textfile and releases every opened resource.
func (a *app) close() {
	if a.log == nil {
		return
	}
	if a.metrics != nil && a.settings.MetricsFile != "" {
		if err := a.metrics.WriteTextfile(a.settings.MetricsFile); err != nil {
			a.log.Warn("metrics textfile not written", slog.Any("error", err))
		}
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.log.Warn("qdrant close failed", slog.Any("error", err))
		}
	}
	if a.provider != nil {
		_ = a.provider.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close failed", slog.Any("error", err))
		}
	}
}
