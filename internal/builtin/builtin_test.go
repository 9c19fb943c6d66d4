package builtin

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/node"
	"github.com/vk/nodegrid/internal/registry"
)

func TestNewRegistry_SeedsCoreKindsInPaletteOrder(t *testing.T) {
	reg := NewRegistry(nil)

	var tags []string
	for _, def := range reg.Kinds() {
		tags = append(tags, def.Type)
	}
	assert.Equal(t, []string{"variable", "number", "print", "loop"}, tags)
	require.NoError(t, reg.Validate(context.Background()))
}

func TestCoreKinds_Schemas(t *testing.T) {
	reg := NewRegistry(nil)

	cases := map[string]struct {
		inputs, outputs []string
		payload         map[string]any
	}{
		"variable": {[]string{"value"}, []string{"value"}, map[string]any{"value": "x"}},
		"number":   {[]string{"value"}, []string{"value"}, map[string]any{"value": 0.0}},
		"print":    {[]string{"value"}, []string{"next"}, map[string]any{}},
		"loop":     {[]string{"count"}, []string{"body", "next"}, map[string]any{"count": 5}},
	}
	for typ, want := range cases {
		n, err := reg.Create(typ, nil, node.Position{})
		require.NoError(t, err, typ)
		assert.ElementsMatch(t, want.inputs, portNames(n.Inputs), typ)
		assert.ElementsMatch(t, want.outputs, portNames(n.Outputs), typ)
		assert.Equal(t, want.payload, n.Payload, typ)
	}
}

func TestCoreHandlers(t *testing.T) {
	reg := NewRegistry(nil)
	ctx := context.Background()

	run := func(typ string, payload map[string]any, inputs map[string]any, out *bytes.Buffer) []emission {
		t.Helper()
		n, err := reg.Create(typ, payload, node.Position{})
		require.NoError(t, err)
		h, err := reg.HandlerFor(typ)
		require.NoError(t, err)
		var em []emission
		err = h(ctx, &registry.Call{Node: n, Inputs: inputs, Out: out}, func(port string, v any) error {
			em = append(em, emission{port, v})
			return nil
		})
		require.NoError(t, err)
		return em
	}

	assert.Equal(t, []emission{{"value", "x"}}, run("variable", nil, nil, nil))
	assert.Equal(t, []emission{{"value", "y"}}, run("variable", nil, map[string]any{"value": "y"}, nil))
	assert.Equal(t, []emission{{"value", 4.5}}, run("number", map[string]any{"value": "4.5"}, nil, nil))

	var out bytes.Buffer
	em := run("print", nil, map[string]any{"value": 3.0}, &out)
	assert.Equal(t, "3\n", out.String())
	assert.Equal(t, []emission{{"next", 3.0}}, em)

	em = run("loop", map[string]any{"count": 2}, nil, nil)
	assert.Equal(t, []emission{
		{"body", 0},
		{"body", 1},
		{"next", 2},
	}, em)

	em = run("loop", nil, map[string]any{"count": -3.0}, nil)
	assert.Equal(t, []emission{{"next", 0}}, em)
}

type emission struct {
	port  string
	value any
}

func TestLoopHandler_StopsOnEmitError(t *testing.T) {
	reg := NewRegistry(nil)
	n, err := reg.Create("loop", map[string]any{"count": 1_000_000}, node.Position{})
	require.NoError(t, err)
	h, err := reg.HandlerFor("loop")
	require.NoError(t, err)

	stop := errors.New("stop")
	seen := 0
	err = h(context.Background(), &registry.Call{Node: n}, func(string, any) error {
		seen++
		if seen == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, seen)
}

func portNames(ports []kind.Port) []string {
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.Name)
	}
	return names
}
