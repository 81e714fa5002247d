package chunker

import (
	"errors"
	"math/rand/v2"
	"reflect"
	"strings"
	"testing"
	"unicode"

	"github.com/54b3r/docqa-go/internal/rag"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"no overlap", Config{Length: 10, Overlap: 0}, false},
		{"overlap one below length", Config{Length: 10, Overlap: 9}, false},
		{"overlap equals length", Config{Length: 10, Overlap: 10}, true},
		{"overlap above length", Config{Length: 10, Overlap: 50}, true},
		{"zero length", Config{Length: 0, Overlap: 0}, true},
		{"negative overlap", Config{Length: 10, Overlap: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, rag.ErrConfiguration) {
				t.Errorf("error %v is not rag.ErrConfiguration", err)
			}
		})
	}
}

func TestChunk_RejectsInvalidConfigBeforeWork(t *testing.T) {
	t.Parallel()

	for _, cfg := range []Config{{Length: 5, Overlap: 5}, {Length: 5, Overlap: 8}, {Length: 1, Overlap: 1}} {
		frags, err := Chunk("doc", strings.Repeat("abc ", 100), cfg)
		if !errors.Is(err, rag.ErrConfiguration) {
			t.Errorf("Chunk(%+v) error = %v, want ErrConfiguration", cfg, err)
		}
		if len(frags) != 0 {
			t.Errorf("Chunk(%+v) produced %d fragments, want 0", cfg, len(frags))
		}
	}
}

func TestChunk_Offsets(t *testing.T) {
	t.Parallel()

	text := "abcdefghijklmnopqrstuvwxy" // 25 characters
	frags, err := Chunk("doc", text, Config{Length: 10, Overlap: 3})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}

	want := []struct {
		start, end int
		text       string
	}{
		{0, 10, "abcdefghij"},
		{7, 17, "hijklmnopq"},
		{14, 24, "opqrstuvwx"},
		{21, 25, "vwxy"},
	}
	if len(frags) != len(want) {
		t.Fatalf("got %d fragments, want %d", len(frags), len(want))
	}
	for i, w := range want {
		f := frags[i]
		if f.Start != w.start || f.End != w.end || f.Text != w.text {
			t.Errorf("fragment %d = [%d,%d) %q, want [%d,%d) %q", i, f.Start, f.End, f.Text, w.start, w.end, w.text)
		}
		if f.ID != FragmentID("doc", i) || f.Index != i || f.DocumentID != "doc" {
			t.Errorf("fragment %d identity = %s/%d/%s", i, f.ID, f.Index, f.DocumentID)
		}
		if f.HasEmbedding() {
			t.Errorf("fragment %d has an embedding straight out of the chunker", i)
		}
	}
}

func TestChunk_NoRedundantTail(t *testing.T) {
	t.Parallel()

	// The first fragment already reaches the end: no second fragment made
	// of the overlap alone.
	frags, err := Chunk("doc", strings.Repeat("x", 10), Config{Length: 10, Overlap: 4})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want 1", len(frags))
	}

	// The closing fragment is longer than the overlap.
	frags, _ = Chunk("doc", strings.Repeat("y", 23), Config{Length: 10, Overlap: 4})
	last := frags[len(frags)-1]
	if last.End != 23 {
		t.Errorf("last fragment ends at %d, want 23", last.End)
	}
	if n := last.End - last.Start; n <= 4 {
		t.Errorf("closing fragment length %d not above overlap", n)
	}
}

func TestChunk_ShortAndEmptyText(t *testing.T) {
	t.Parallel()

	frags, err := Chunk("doc", "", DefaultConfig())
	if err != nil || len(frags) != 0 {
		t.Errorf("empty text: got %d fragments, err %v", len(frags), err)
	}

	frags, err = Chunk("doc", "   \n\t  ", DefaultConfig())
	if err != nil || len(frags) != 0 {
		t.Errorf("whitespace text: got %d fragments, err %v", len(frags), err)
	}

	frags, err = Chunk("doc", "short", DefaultConfig())
	if err != nil || len(frags) != 1 || frags[0].Text != "short" {
		t.Errorf("short text: got %+v, err %v", frags, err)
	}
}

func TestChunk_DropsWhitespaceFragmentsAndRenumbers(t *testing.T) {
	t.Parallel()

	text := "aaaa" + strings.Repeat(" ", 12) + "bbbb"
	frags, err := Chunk("doc", text, Config{Length: 4, Overlap: 0})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(frags) != 2 {
		t.Fatalf("got %d fragments, want 2", len(frags))
	}
	if frags[0].Text != "aaaa" || frags[1].Text != "bbbb" {
		t.Errorf("texts = %q, %q", frags[0].Text, frags[1].Text)
	}
	if frags[1].Index != 1 || frags[1].ID != "doc_chunk_1" {
		t.Errorf("second fragment identity = %d %s, want 1 doc_chunk_1", frags[1].Index, frags[1].ID)
	}
	if frags[1].Start != 16 {
		t.Errorf("second fragment start = %d, want 16", frags[1].Start)
	}
}

func TestChunk_RuneOffsets(t *testing.T) {
	t.Parallel()

	text := "héllo wörld ñandú"
	frags, err := Chunk("doc", text, Config{Length: 5, Overlap: 1})
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	runes := []rune(text)
	for _, f := range frags {
		if got := string(runes[f.Start:f.End]); got != f.Text {
			t.Errorf("fragment [%d,%d) text %q does not match source %q", f.Start, f.End, f.Text, got)
		}
	}
	if frags[len(frags)-1].End != len(runes) {
		t.Errorf("last fragment ends at %d, want %d", frags[len(frags)-1].End, len(runes))
	}
}

func TestChunk_Coverage(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	alphabet := []rune("abcdefghij klmnop\nqrstuvwxyzé")

	for i := range 300 {
		n := rng.IntN(400)
		runes := make([]rune, n)
		for j := range runes {
			runes[j] = alphabet[rng.IntN(len(alphabet))]
		}
		text := string(runes)

		length := 1 + rng.IntN(60)
		cfg := Config{Length: length, Overlap: rng.IntN(length)}

		frags, err := Chunk("doc", text, cfg)
		if err != nil {
			t.Fatalf("case %d: Chunk(%+v): %v", i, cfg, err)
		}

		covered := make([]bool, n)
		prevEnd := 0
		for k, f := range frags {
			if f.Start > prevEnd && k > 0 {
				// A gap is only allowed where a whitespace-only fragment was dropped.
				if strings.TrimSpace(string(runes[prevEnd:f.Start])) != "" {
					t.Fatalf("case %d: gap [%d,%d) holds text", i, prevEnd, f.Start)
				}
			}
			if string(runes[f.Start:f.End]) != f.Text {
				t.Fatalf("case %d: fragment %d text mismatch", i, k)
			}
			for j := f.Start; j < f.End; j++ {
				covered[j] = true
			}
			prevEnd = f.End
		}
		for j, ok := range covered {
			if !ok && !unicode.IsSpace(runes[j]) {
				t.Fatalf("case %d (%+v): character %d (%q) not covered", i, cfg, j, runes[j])
			}
		}
		if len(frags) > 0 && strings.TrimSpace(string(runes[frags[len(frags)-1].End:])) != "" {
			t.Fatalf("case %d: text after last fragment is lost", i)
		}
	}
}

func TestChunk_FullCoverageWithoutBlankRuns(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	cfg := Config{Length: 50, Overlap: 10}
	frags, err := Chunk("doc", text, cfg)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}

	var rebuilt strings.Builder
	pos := 0
	for _, f := range frags {
		if f.Start > pos {
			t.Fatalf("gap at %d..%d", pos, f.Start)
		}
		rebuilt.WriteString(string([]rune(f.Text)[pos-f.Start:]))
		pos = f.End
	}
	if rebuilt.String() != text {
		t.Error("concatenating fragment ranges does not reconstruct the text")
	}
}

func TestChunk_Deterministic(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	cfg := Config{Length: 120, Overlap: 30}

	first, err := Chunk("doc-1", text, cfg)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	second, err := Chunk("doc-1", text, cfg)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("chunking the same text twice produced different fragments")
	}
}

func TestSpans_Stride(t *testing.T) {
	t.Parallel()

	cfg := Config{Length: 8, Overlap: 2}
	spans, err := Spans(30, cfg)
	if err != nil {
		t.Fatalf("Spans: %v", err)
	}
	for k, sp := range spans {
		if sp.Start != k*cfg.Stride() {
			t.Errorf("span %d starts at %d, want %d", k, sp.Start, k*cfg.Stride())
		}
		if sp.End != min(sp.Start+cfg.Length, 30) {
			t.Errorf("span %d ends at %d", k, sp.End)
		}
	}
	if spans[len(spans)-1].End != 30 {
		t.Errorf("last span does not reach the end")
	}
}
