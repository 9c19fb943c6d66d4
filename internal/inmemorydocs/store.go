// Package inmemorydocs provides an ephemeral, thread-safe, in-memory
// implementation of the docstore.Store interface.
//
// # Characteristics
//
//   - **Ephemeral:** documents live as long as the process
//   - **Isolated:** documents are kept in encoded form, so callers can never
//     alias a stored payload map
//
// This is the default driver and the one used by tests. For documents that
// must survive a restart use badgerdocs or sqlitedocs.
package inmemorydocs

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vk/nodegrid/internal/docstore"
	"github.com/vk/nodegrid/internal/document"
)

type entry struct {
	data    []byte
	summary docstore.Summary
}

// Store keeps encoded documents in a map guarded by an RWMutex.
type Store struct {
	mu   sync.RWMutex
	docs map[string]entry
	now  func() time.Time
}

// New creates a new, empty in-memory document store.
func New() docstore.Store {
	return &Store{docs: make(map[string]entry), now: time.Now}
}

func (s *Store) Save(ctx context.Context, name string, doc document.Document) error {
	if err := docstore.ValidateName(name); err != nil {
		return err
	}
	data, err := document.Marshal(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[name] = entry{data: data, summary: docstore.Summarize(name, doc, s.now())}
	return nil
}

func (s *Store) Load(ctx context.Context, name string) (document.Document, error) {
	if err := docstore.ValidateName(name); err != nil {
		return document.Document{}, err
	}

	s.mu.RLock()
	e, ok := s.docs[name]
	s.mu.RUnlock()
	if !ok {
		return document.Document{}, fmt.Errorf("%w: %s", docstore.ErrNotFound, name)
	}
	return document.Unmarshal(e.data)
}

func (s *Store) List(ctx context.Context) ([]docstore.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]docstore.Summary, 0, len(s.docs))
	for _, e := range s.docs {
		out = append(out, e.summary)
	}
	slices.SortFunc(out, func(a, b docstore.Summary) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if err := docstore.ValidateName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[name]; !ok {
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, name)
	}
	delete(s.docs, name)
	return nil
}

func (s *Store) Close() error { return nil }
