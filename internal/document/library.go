package document

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/54b3r/docqa-go/internal/chunker"
	"github.com/54b3r/docqa-go/internal/rag"
)

var (
	// ErrNotFound is returned when no document has the requested id.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicate is returned when a document with the same content
	// fingerprint is already in the library.
	ErrDuplicate = errors.New("duplicate document")

	// ErrExists is returned when a document id is already taken.
	ErrExists = errors.New("document id already exists")
)

// Policy controls what retrieval sees while a document is reprocessed.
type Policy string

const (
	// PolicyKeepVisible keeps the previous fragment set queryable while the
	// new set is computed, and after a failed attempt.
	PolicyKeepVisible Policy = "keep"

	// PolicyHideWhileProcessing removes the document from the pool when
	// reprocessing starts. The previous set is retained but stays hidden
	// until a new set is committed.
	PolicyHideWhileProcessing Policy = "hide"
)

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep", "keep-visible":
		return PolicyKeepVisible, nil
	case "hide", "hide-while-processing":
		return PolicyHideWhileProcessing, nil
	default:
		return "", fmt.Errorf("document: unknown reprocess policy %q (valid: keep, hide): %w", s, rag.ErrConfiguration)
	}
}

// Commit is a complete processing result for one document.
type Commit struct {
	// Content replaces the document text when non-empty.
	Content string
	// Fingerprint replaces the content fingerprint when non-empty.
	Fingerprint string
	// Chunking is the configuration Fragments were built with.
	Chunking chunker.Config
	// Mode is the retrieval mode Fragments were processed for.
	Mode rag.Mode
	// Fragments is the new fragment set, in reading order.
	Fragments []rag.Fragment
}

// entry is the library's record for one document.
type entry struct {
	doc Document
	// hidden excludes the document from Pool.
	hidden bool
}

// Library is the in-memory document collection and the source of the
// retrieval pool. It is safe for concurrent use.
type Library struct {
	mu      sync.RWMutex
	entries map[string]*entry
	// order holds document ids in upload order.
	order []string
}

// NewLibrary returns an empty Library.
func NewLibrary() *Library {
	return &Library{entries: make(map[string]*entry)}
}

// Add inserts a new document. Its fragment set is ignored; fragments only
// enter the library through Commit. A document whose fingerprint matches an
// existing one is rejected with ErrDuplicate.
func (l *Library) Add(doc Document) (Document, error) {
	if doc.ID == "" {
		return Document{}, fmt.Errorf("document: id must not be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkNewLocked(doc); err != nil {
		return Document{}, err
	}
	if doc.Status == "" {
		doc.Status = StatusProcessing
	}
	doc.Fragments = nil
	l.insertLocked(doc)
	return doc, nil
}

// Restore inserts a document together with its stored fragment set, as
// loaded from persistence or an archive. The fragments must belong to the
// document.
func (l *Library) Restore(doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document: id must not be empty")
	}
	if err := checkOwnership(doc.ID, doc.Fragments); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkNewLocked(doc); err != nil {
		return err
	}
	l.insertLocked(doc)
	return nil
}

func (l *Library) checkNewLocked(doc Document) error {
	if _, ok := l.entries[doc.ID]; ok {
		return fmt.Errorf("document: %s: %w", doc.ID, ErrExists)
	}
	if doc.Fingerprint != "" {
		for _, e := range l.entries {
			if e.doc.Fingerprint == doc.Fingerprint {
				return fmt.Errorf("document: %q has the same content as %q: %w", doc.Name, e.doc.Name, ErrDuplicate)
			}
		}
	}
	return nil
}

func (l *Library) insertLocked(doc Document) {
	l.entries[doc.ID] = &entry{doc: doc}
	l.order = append(l.order, doc.ID)
}

// Get returns the document with the given id.
func (l *Library) Get(id string) (Document, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[id]
	if !ok {
		return Document{}, fmt.Errorf("document: %s: %w", id, ErrNotFound)
	}
	return e.doc, nil
}

// FindByFingerprint returns the document whose content fingerprint is fp.
func (l *Library) FindByFingerprint(fp string) (Document, bool) {
	return l.find(func(d Document) bool { return fp != "" && d.Fingerprint == fp })
}

// FindByName returns the first document, in upload order, named name.
func (l *Library) FindByName(name string) (Document, bool) {
	return l.find(func(d Document) bool { return d.Name == name })
}

func (l *Library) find(match func(Document) bool) (Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, id := range l.order {
		if d := l.entries[id].doc; match(d) {
			return d, true
		}
	}
	return Document{}, false
}

// List returns every document in upload order.
func (l *Library) List() []Document {
	l.mu.RLock()
	defer l.mu.RUnlock()

	docs := make([]Document, 0, len(l.order))
	for _, id := range l.order {
		docs = append(docs, l.entries[id].doc)
	}
	return docs
}

// Len returns the number of documents.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Rename changes a document's display name.
func (l *Library) Rename(id, name string) (Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Document{}, fmt.Errorf("document: name must not be empty")
	}
	return l.update(id, func(e *entry) error {
		e.doc.Name = name
		return nil
	})
}

// Remove deletes a document and its fragment set.
func (l *Library) Remove(id string) (Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return Document{}, fmt.Errorf("document: %s: %w", id, ErrNotFound)
	}
	delete(l.entries, id)
	l.order = slices.DeleteFunc(l.order, func(v string) bool { return v == id })
	return e.doc, nil
}

// BeginProcessing marks a document as processing. Under
// PolicyHideWhileProcessing its current fragment set leaves the pool until
// the next Commit.
func (l *Library) BeginProcessing(id string, policy Policy) (Document, error) {
	return l.update(id, func(e *entry) error {
		e.doc.Status = StatusProcessing
		e.doc.Error = ""
		e.hidden = policy == PolicyHideWhileProcessing
		return nil
	})
}

// Commit atomically replaces a document's fragment set and marks it
// processed.
func (l *Library) Commit(id string, c Commit) (Document, error) {
	if err := checkOwnership(id, c.Fragments); err != nil {
		return Document{}, err
	}
	return l.update(id, func(e *entry) error {
		if c.Content != "" {
			e.doc.Content = c.Content
		}
		if c.Fingerprint != "" {
			e.doc.Fingerprint = c.Fingerprint
		}
		e.doc.Chunking = c.Chunking
		e.doc.Mode = c.Mode
		e.doc.Fragments = c.Fragments
		e.doc.Status = StatusProcessed
		e.doc.Error = ""
		e.hidden = false
		return nil
	})
}

// Fail marks a document as failed. The committed fragment set is left
// untouched; whether it stays in the pool was decided by BeginProcessing.
func (l *Library) Fail(id string, cause error) (Document, error) {
	msg := "unknown processing error"
	if cause != nil {
		msg = cause.Error()
	}
	return l.update(id, func(e *entry) error {
		e.doc.Status = StatusError
		e.doc.Error = msg
		return nil
	})
}

func (l *Library) update(id string, fn func(*entry) error) (Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return Document{}, fmt.Errorf("document: %s: %w", id, ErrNotFound)
	}
	if err := fn(e); err != nil {
		return Document{}, err
	}
	return e.doc, nil
}

// Pool returns the fragments of every visible document, documents in upload
// order and fragments in reading order. The returned slice is a fresh copy.
func (l *Library) Pool() []rag.Fragment {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, id := range l.order {
		if e := l.entries[id]; !e.hidden {
			n += len(e.doc.Fragments)
		}
	}

	pool := make([]rag.Fragment, 0, n)
	for _, id := range l.order {
		e := l.entries[id]
		if e.hidden {
			continue
		}
		pool = append(pool, e.doc.Fragments...)
	}
	return pool
}

// checkOwnership verifies that every fragment names id as its document.
func checkOwnership(id string, fragments []rag.Fragment) error {
	for _, f := range fragments {
		if f.DocumentID != id {
			return fmt.Errorf("document: fragment %s belongs to %s, not %s", f.ID, f.DocumentID, id)
		}
	}
	return nil
}
