package document_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/nodegrid/internal/builtin"
	"github.com/vk/nodegrid/internal/document"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/node"
	"github.com/vk/nodegrid/internal/registry"
)

// buildGraph places a Loop driving a Print fed by a Number.
func buildGraph(t *testing.T, reg *registry.Registry) *graph.Manager {
	t.Helper()
	ctx := context.Background()
	store := graph.New(graph.WithSchema(reg))

	add := func(typ string, override map[string]any, x, y float64) node.Instance {
		n, err := reg.Create(typ, override, node.Position{X: x, Y: y})
		require.NoError(t, err)
		require.NoError(t, store.AddNode(ctx, n))
		return n
	}
	loop := add("loop", map[string]any{"count": 3}, 0, 0)
	printer := add("print", nil, 200, 0)
	number := add("number", map[string]any{"value": 2.5}, 0, 120)
	add("variable", nil, 400, 40)

	_, err := store.AddEdge(ctx, graph.Edge{Source: loop.ID, SourcePort: "body", Target: printer.ID, TargetPort: "value"})
	require.NoError(t, err)
	_, err = store.AddEdge(ctx, graph.Edge{Source: number.ID, SourcePort: "value", Target: loop.ID, TargetPort: "count"})
	require.NoError(t, err)
	return store
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []document.Format{document.JSON, document.YAML} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			reg := builtin.NewRegistry(nil)
			original := buildGraph(t, reg).Snapshot()

			var buf bytes.Buffer
			require.NoError(t, document.Encode(&buf, document.Serialize(original), format))
			doc, err := document.Decode(&buf, format)
			require.NoError(t, err)

			fresh := builtin.NewRegistry(nil)
			g, err := document.Deserialize(doc, fresh)
			require.NoError(t, err)

			restored := graph.New(graph.WithSchema(fresh))
			require.NoError(t, restored.Load(ctx, g))

			got := restored.Snapshot()
			assert.Equal(t, original.Nodes, got.Nodes)
			assert.Equal(t, original.Edges, got.Edges)
		})
	}
}

func TestSerialize_RecordsOnlyEndpoints(t *testing.T) {
	reg := builtin.NewRegistry(nil)
	doc := document.Serialize(buildGraph(t, reg).Snapshot())

	assert.Equal(t, document.FormatVersion, doc.Version)
	require.Len(t, doc.Nodes, 4)
	require.Len(t, doc.Edges, 2)
	assert.Equal(t, "loop", doc.Nodes[0].Type)
	assert.Equal(t, map[string]any{"count": 3}, doc.Nodes[0].Payload)
	assert.Equal(t, "body", doc.Edges[0].SourcePort)

	var buf bytes.Buffer
	require.NoError(t, document.Encode(&buf, doc, document.JSON))
	assert.NotContains(t, buf.String(), `"inputs"`)
	assert.NotContains(t, buf.String(), `"e-1"`)
}

func TestSerialize_PayloadIsCopied(t *testing.T) {
	reg := builtin.NewRegistry(nil)
	g := buildGraph(t, reg).Snapshot()
	doc := document.Serialize(g)

	doc.Nodes[0].Payload["count"] = 99
	assert.Equal(t, 3, g.Nodes[0].Payload["count"])
}

func TestDeserialize_ObservesIDs(t *testing.T) {
	now := time.UnixMilli(1_000)
	reg := builtin.NewRegistry(nil, registry.WithClock(func() time.Time { return now }))
	doc := document.Document{
		Version: 1,
		Nodes: []document.NodeRecord{
			{ID: "print-5000", Type: "print"},
		},
	}
	_, err := document.Deserialize(doc, reg)
	require.NoError(t, err)

	n, err := reg.Create("print", nil, node.Position{})
	require.NoError(t, err)
	assert.Equal(t, "print-5001", n.ID)
}

func TestDeserialize_FillsDefaultsAndCoerces(t *testing.T) {
	reg := builtin.NewRegistry(nil)
	doc := document.Document{
		Version: 1,
		Nodes: []document.NodeRecord{
			{ID: "loop-1", Type: "loop", Payload: map[string]any{"count": "7"}},
			{ID: "variable-1", Type: "variable"},
		},
	}
	g, err := document.Deserialize(doc, reg)
	require.NoError(t, err)
	assert.Equal(t, 7, g.Nodes[0].Payload["count"])
	assert.Equal(t, "x", g.Nodes[1].Payload["value"])
	assert.Len(t, g.Nodes[0].Outputs, 2)
}

func TestDeserialize_Errors(t *testing.T) {
	reg := builtin.NewRegistry(nil)
	tests := []struct {
		name string
		doc  document.Document
		want string
	}{
		{"empty id", document.Document{Nodes: []document.NodeRecord{{Type: "print"}}}, "node id is empty"},
		{"unknown type", document.Document{Nodes: []document.NodeRecord{{ID: "a", Type: "teleport"}}}, "unknown node type 'teleport'"},
		{"bad payload", document.Document{Nodes: []document.NodeRecord{{ID: "l", Type: "loop", Payload: map[string]any{"count": "many"}}}}, "node record 0 ('l')"},
		{"unknown field", document.Document{Nodes: []document.NodeRecord{{ID: "p", Type: "print", Payload: map[string]any{"colour": "red"}}}}, "colour"},
		{"newer format", document.Document{Version: 2}, "newer than supported"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := document.Deserialize(tc.doc, reg)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestDeserialize_BadEdgeRejectedByStoreLoad(t *testing.T) {
	reg := builtin.NewRegistry(nil)
	doc := document.Document{
		Version: 1,
		Nodes:   []document.NodeRecord{{ID: "p", Type: "print"}},
		Edges:   []document.EdgeRecord{{Source: "p", SourcePort: "next", Target: "ghost", TargetPort: "value"}},
	}
	g, err := document.Deserialize(doc, reg)
	require.NoError(t, err)

	err = graph.New(graph.WithSchema(reg)).Load(context.Background(), g)
	assert.ErrorIs(t, err, graph.ErrInvalidEndpoint)
}

func TestDecode_RejectsUnknownKeys(t *testing.T) {
	_, err := document.Decode(strings.NewReader(`{"version":1,"nodez":[]}`), document.JSON)
	assert.Error(t, err)

	_, err = document.Decode(strings.NewReader("version: 1\nnodez: []\n"), document.YAML)
	assert.Error(t, err)
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, document.YAML, document.FormatForPath("graph.yaml"))
	assert.Equal(t, document.YAML, document.FormatForPath("graph.YML"))
	assert.Equal(t, document.JSON, document.FormatForPath("graph.json"))
	assert.Equal(t, document.JSON, document.FormatForPath("graph"))
}
