package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loopDoc = `{
  "version": 1,
  "nodes": [
    {"id": "loop-1", "type": "loop", "position": {"x": 0, "y": 0}, "payload": {"count": 2}},
    {"id": "print-2", "type": "print", "position": {"x": 200, "y": 0}}
  ],
  "edges": [
    {"source": "loop-1", "sourcePort": "body", "target": "print-2", "targetPort": "value"}
  ]
}`

const variableYAML = `version: 1
nodes:
  - id: variable-1
    type: variable
    position: {x: 10, y: 20}
    payload:
      value: hi
edges: []
`

const badEdgeDoc = `{
  "version": 1,
  "nodes": [{"id": "print-1", "type": "print", "position": {"x": 0, "y": 0}}],
  "edges": [{"source": "print-1", "sourcePort": "bogus", "target": "print-1", "targetPort": "value"}]
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := Execute(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), err
}

func requireExit(t *testing.T, err error, code int) *ExitError {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected an ExitError, got %v", err)
	require.Equal(t, code, exitErr.Code, exitErr.Message)
	return exitErr
}

func TestKinds_Builtins(t *testing.T) {
	out, _, err := execute(t, "kinds")
	require.NoError(t, err)

	for _, want := range []string{"variable", "number", "print", "loop"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "out: body ▷, next ▷")
	assert.Contains(t, out, "field count integer")
}

func TestKinds_WithCatalog(t *testing.T) {
	dir := filepath.Dir(writeTemp(t, "kinds/greeting.hcl", `
kind "greeting" {
  label   = "Greeting"
  handler = "variable"
  output "value" {}
}
`))
	out, _, err := execute(t, "kinds", "--catalog", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "greeting")
	assert.Contains(t, out, "(handler variable)")
}

func TestKinds_BadCatalog(t *testing.T) {
	dir := filepath.Dir(writeTemp(t, "kinds/bad.hcl", `kind "x" {`))
	_, _, err := execute(t, "kinds", "--catalog", dir)
	requireExit(t, err, ExitInvalid)
}

func TestValidate(t *testing.T) {
	out, _, err := execute(t, "validate", writeTemp(t, "loop.json", loopDoc))
	require.NoError(t, err)
	assert.Contains(t, out, "2 nodes, 1 edges")

	out, _, err = execute(t, "validate", writeTemp(t, "variable.yaml", variableYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "1 nodes, 0 edges")
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name, file, body string
	}{
		{"bad edge", "bad.json", badEdgeDoc},
		{"unknown type", "ghost.json", `{"version": 1, "nodes": [{"id": "g-1", "type": "ghost", "position": {"x": 0, "y": 0}}], "edges": []}`},
		{"newer version", "future.json", `{"version": 99, "nodes": [], "edges": []}`},
		{"unknown key", "extra.json", `{"version": 1, "nodes": [], "edges": [], "extra": true}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := execute(t, "validate", writeTemp(t, tc.file, tc.body))
			exitErr := requireExit(t, err, ExitInvalid)
			assert.Contains(t, exitErr.Message, tc.file)
		})
	}
}

func TestRender(t *testing.T) {
	out, _, err := execute(t, "render", writeTemp(t, "loop.json", loopDoc))
	require.NoError(t, err)
	assert.Contains(t, out, "┌ Loop ─ loop-1 ─ (0, 0)")
	assert.Contains(t, out, "│ Repeat: 2")
	assert.Contains(t, out, "e-1: loop-1.body -> print-2.value")
}

func TestRun(t *testing.T) {
	out, errOut, err := execute(t, "run", writeTemp(t, "loop.json", loopDoc))
	require.NoError(t, err)
	assert.Equal(t, "0\n1\n", out)
	assert.Contains(t, errOut, "2 lines of output")
}

func TestUsageErrors(t *testing.T) {
	_, _, err := execute(t, "validate")
	requireExit(t, err, ExitUsage)

	_, _, err = execute(t, "frobnicate")
	requireExit(t, err, ExitUsage)

	_, _, err = execute(t, "kinds", "--log-level", "loud")
	requireExit(t, err, ExitUsage)

	cfg := writeTemp(t, "nodegrid.yaml", "storage:\n  driver: bolt\n")
	_, _, err = execute(t, "kinds", "--config", cfg)
	requireExit(t, err, ExitUsage)
}

func TestServe_InvalidFlags(t *testing.T) {
	_, _, err := execute(t, "serve", "--storage", "badger")
	exitErr := requireExit(t, err, ExitUsage)
	assert.Contains(t, exitErr.Message, "Path")
}
