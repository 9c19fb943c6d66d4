package docstore

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vk/nodegrid/internal/document"
)

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"a", "flow-1", "my_graph.v2", strings.Repeat("x", 128)} {
		assert.NoError(t, ValidateName(ok), ok)
	}
	for _, bad := range []string{"", ".env", "../up", "a/b", "tab\there", strings.Repeat("x", 129)} {
		assert.ErrorIs(t, ValidateName(bad), ErrInvalidName, bad)
	}
}

func TestSummarize(t *testing.T) {
	doc := document.Document{
		Nodes: make([]document.NodeRecord, 3),
		Edges: make([]document.EdgeRecord, 2),
	}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	s := Summarize("flow", doc, at)
	assert.Equal(t, Summary{Name: "flow", Nodes: 3, Edges: 2, UpdatedAt: at.UTC()}, s)
}
