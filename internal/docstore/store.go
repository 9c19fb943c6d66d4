// Package docstore defines the interface for persisting named graph
// documents between editor sessions.
//
// # Why Doc Store Exists
//
// A graph store lives exactly as long as its editor session. The doc store is
// the only thing that outlives it: a session saves its graph under a name and
// any later session can restore it. Keeping the interface separate from the
// drivers lets the server pick a backend from configuration:
//
//   - inmemorydocs: process lifetime only, used by tests and the default config
//   - badgerdocs: embedded key/value store on local disk
//   - sqlitedocs: a single SQLite file, convenient to inspect by hand
//
// # Naming
//
// Names are 1 to 128 characters from [A-Za-z0-9._-] and must not start with a
// dot. Every driver validates names with ValidateName before touching storage.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use. Saves to the same name are
// last-writer-wins.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/vk/nodegrid/internal/document"
)

var (
	// ErrNotFound is returned by Load and Delete for unknown names.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidName is returned for names that fail ValidateName.
	ErrInvalidName = errors.New("invalid document name")
)

// Summary describes a stored document without loading it.
type Summary struct {
	Name      string    `json:"name"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists documents by name.
type Store interface {
	// Save creates or replaces the document stored under name.
	Save(ctx context.Context, name string, doc document.Document) error

	// Load returns the document stored under name, or ErrNotFound.
	Load(ctx context.Context, name string) (document.Document, error)

	// List returns a summary of every stored document, sorted by name.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes the document stored under name, or returns ErrNotFound.
	Delete(ctx context.Context, name string) error

	// Close releases the backend. The store must not be used afterwards.
	Close() error
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]{0,127}$`)

// ValidateName checks a document name against the naming rules.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Summarize builds the summary of doc stored under name.
func Summarize(name string, doc document.Document, updated time.Time) Summary {
	return Summary{Name: name, Nodes: len(doc.Nodes), Edges: len(doc.Edges), UpdatedAt: updated.UTC()}
}
