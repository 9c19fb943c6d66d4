// Package badgerdocs implements docstore.Store on an embedded badger
// key/value database.
//
// Each document is one key, "doc/<name>", whose value is a JSON envelope
// holding the summary next to the encoded document. List only decodes the
// envelope headers it needs and never rebuilds graphs.
package badgerdocs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vk/nodegrid/internal/docstore"
	"github.com/vk/nodegrid/internal/document"
)

const keyPrefix = "doc/"

// Config selects where the database lives.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string
	// InMemory keeps everything in RAM; used by tests.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	// Logger receives badger's internal logging. Nil silences it.
	Logger *slog.Logger
}

type envelope struct {
	UpdatedAt time.Time       `json:"updatedAt"`
	Nodes     int             `json:"nodes"`
	Edges     int             `json:"edges"`
	Document  json.RawMessage `json:"document"`
}

// Store is a badger-backed document store.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerdocs: path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&slogAdapter{logger: cfg.Logger.With("component", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) Save(ctx context.Context, name string, doc document.Document) error {
	if err := docstore.ValidateName(name); err != nil {
		return err
	}
	raw, err := document.Marshal(doc)
	if err != nil {
		return err
	}
	value, err := json.Marshal(envelope{
		UpdatedAt: s.now().UTC(),
		Nodes:     len(doc.Nodes),
		Edges:     len(doc.Edges),
		Document:  raw,
	})
	if err != nil {
		return fmt.Errorf("encode envelope for %s: %w", name, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(name), value)
	})
}

func (s *Store) Load(ctx context.Context, name string) (document.Document, error) {
	if err := docstore.ValidateName(name); err != nil {
		return document.Document{}, err
	}

	var env envelope
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &env)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return document.Document{}, fmt.Errorf("%w: %s", docstore.ErrNotFound, name)
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("load %s: %w", name, err)
	}
	return document.Unmarshal(env.Document)
}

// List walks the key prefix in order; badger keys sort bytewise, which is
// the same order as strings.Compare on names.
func (s *Store) List(ctx context.Context) ([]docstore.Summary, error) {
	out := []docstore.Summary{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(keyPrefix), PrefetchValues: true, PrefetchSize: 16})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			name := string(item.Key()[len(keyPrefix):])
			var env envelope
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &env) }); err != nil {
				return fmt.Errorf("decode %s: %w", name, err)
			}
			out = append(out, docstore.Summary{Name: name, Nodes: env.Nodes, Edges: env.Edges, UpdatedAt: env.UpdatedAt})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if err := docstore.ValidateName(name); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", docstore.ErrNotFound, name)
			}
			return err
		}
		return txn.Delete(key(name))
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}

// slogAdapter routes badger's printf-style logging into slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
