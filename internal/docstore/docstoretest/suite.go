// Package docstoretest holds the behaviour every docstore.Store driver must
// share, run by each driver's own tests.
package docstoretest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/nodegrid/internal/docstore"
	"github.com/vk/nodegrid/internal/document"
	"github.com/vk/nodegrid/internal/node"
)

// Factory opens a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) docstore.Store

// Sample returns a small document with n print nodes and no edges.
func Sample(n int) document.Document {
	doc := document.Document{Version: document.FormatVersion}
	for i := range n {
		doc.Nodes = append(doc.Nodes, document.NodeRecord{
			ID:       fmt.Sprintf("print-%d", i+1),
			Type:     "print",
			Position: node.Position{X: float64(i * 100), Y: 50},
			Payload:  map[string]any{},
		})
	}
	if n > 1 {
		doc.Edges = append(doc.Edges, document.EdgeRecord{
			Source: "print-1", SourcePort: "next", Target: "print-2", TargetPort: "value",
		})
	}
	return doc
}

// Run exercises a driver against the docstore.Store contract.
func Run(t *testing.T, open Factory) {
	t.Helper()

	t.Run("SaveLoad", func(t *testing.T) {
		s := openStore(t, open)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, "flow", Sample(2)))
		got, err := s.Load(ctx, "flow")
		require.NoError(t, err)
		assert.Equal(t, Sample(2).Nodes[1].ID, got.Nodes[1].ID)
		assert.Equal(t, Sample(2).Edges, got.Edges)
		assert.Equal(t, 100.0, got.Nodes[1].Position.X)
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		s := openStore(t, open)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, "flow", Sample(1)))
		require.NoError(t, s.Save(ctx, "flow", Sample(3)))
		got, err := s.Load(ctx, "flow")
		require.NoError(t, err)
		assert.Len(t, got.Nodes, 3)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		s := openStore(t, open)
		_, err := s.Load(context.Background(), "nothing")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("ListSortedWithCounts", func(t *testing.T) {
		s := openStore(t, open)
		ctx := context.Background()

		empty, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		require.NoError(t, s.Save(ctx, "zeta", Sample(1)))
		require.NoError(t, s.Save(ctx, "alpha", Sample(2)))

		list, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "alpha", list[0].Name)
		assert.Equal(t, 2, list[0].Nodes)
		assert.Equal(t, 1, list[0].Edges)
		assert.Equal(t, "zeta", list[1].Name)
		assert.False(t, list[1].UpdatedAt.IsZero())
	})

	t.Run("Delete", func(t *testing.T) {
		s := openStore(t, open)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, "flow", Sample(1)))
		require.NoError(t, s.Delete(ctx, "flow"))
		_, err := s.Load(ctx, "flow")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "flow"), docstore.ErrNotFound)
	})

	t.Run("InvalidNames", func(t *testing.T) {
		s := openStore(t, open)
		ctx := context.Background()

		for _, name := range []string{"", ".hidden", "a/b", "with space"} {
			assert.ErrorIs(t, s.Save(ctx, name, Sample(1)), docstore.ErrInvalidName, name)
			_, err := s.Load(ctx, name)
			assert.ErrorIs(t, err, docstore.ErrInvalidName, name)
		}
	})

	t.Run("ConcurrentSaves", func(t *testing.T) {
		s := openStore(t, open)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Save(ctx, fmt.Sprintf("doc-%d", i), Sample(i%3+1)))
			}()
		}
		wg.Wait()

		list, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 8)
	})
}

func openStore(t *testing.T, open Factory) docstore.Store {
	t.Helper()
	s := open(t)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}
