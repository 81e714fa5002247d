package rag

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
)

// fakeEmbedder is a test double for Embedder returning fixed vectors.
type fakeEmbedder struct {
	mu sync.Mutex
	// vectors maps input text to the vector returned for it.
	vectors map[string][]float32
	// err is returned by every call when non-nil.
	err error
	// calls counts Embed and EmbedBatch invocations.
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"opposite", []float32{1, 0}, []float32{-3, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 5}, 0},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCosine_SymmetricAndBounded(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	for i := range 500 {
		dim := 1 + rng.IntN(64)
		a := make([]float32, dim)
		b := make([]float32, dim)
		for j := range dim {
			a[j] = float32(rng.NormFloat64() * 10)
			b[j] = float32(rng.NormFloat64() * 10)
		}
		ab, ba := Cosine(a, b), Cosine(b, a)
		if ab != ba {
			t.Fatalf("case %d: Cosine not symmetric: %v vs %v", i, ab, ba)
		}
		if ab < -1 || ab > 1 {
			t.Fatalf("case %d: Cosine out of bounds: %v", i, ab)
		}
	}
}

func TestVectorScorer_RanksBySimilarity(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 0, 0}}}
	s, err := NewVectorScorer(emb)
	if err != nil {
		t.Fatalf("NewVectorScorer: %v", err)
	}

	p := pool("far", "close", "unembedded", "middle")
	p[0].Embedding = []float32{0, 1, 0}
	p[1].Embedding = []float32{10, 1, 0} // not unit length
	p[3].Embedding = []float32{1, 1, 0}

	got, err := s.Score(context.Background(), "query", p, 2)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 results, got %d", len(got))
	}
	if got[0].Fragment.Text != "close" || got[1].Fragment.Text != "middle" {
		t.Errorf("order = [%s %s], want [close middle]", got[0].Fragment.Text, got[1].Fragment.Text)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %v then %v", got[0].Score, got[1].Score)
	}
}

func TestVectorScorer_NoEmbeddingsYieldsEmpty(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{vectors: map[string][]float32{"cats": {1, 0}}}
	s, _ := NewVectorScorer(emb)

	got, err := s.Score(context.Background(), "cats", pool("cats are great", "dogs are great"), 3)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("want empty non-nil result, got %v", got)
	}
}

func TestVectorScorer_ZeroEmbeddingIsPresent(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{vectors: map[string][]float32{"q": {1, 1}}}
	s, _ := NewVectorScorer(emb)

	p := pool("zero")
	p[0].Embedding = []float32{0, 0}
	got, err := s.Score(context.Background(), "q", p, 1)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(got) != 1 || got[0].Score != 0 {
		t.Errorf("want the zero-vector fragment with score 0, got %+v", got)
	}
}

func TestVectorScorer_EmbedderFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	emb := &fakeEmbedder{err: cause}
	s, _ := NewVectorScorer(emb)

	p := pool("a")
	p[0].Embedding = []float32{1}
	got, err := s.Score(context.Background(), "q", p, 1)
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("want ErrEmbeddingUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause not wrapped: %v", err)
	}
	if got != nil {
		t.Errorf("want no partial result, got %v", got)
	}
	if emb.calls != 1 {
		t.Errorf("want exactly one embed call (no retry), got %d", emb.calls)
	}
}

func TestVectorScorer_EmptyQueryVector(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	s, _ := NewVectorScorer(emb)

	p := pool("a")
	p[0].Embedding = []float32{1}
	if _, err := s.Score(context.Background(), "unknown", p, 1); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("want ErrEmbeddingUnavailable for empty query vector, got %v", err)
	}
}

func TestNewVectorScorer_NilEmbedder(t *testing.T) {
	t.Parallel()

	if _, err := NewVectorScorer(nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("want ErrConfiguration, got %v", err)
	}
}
