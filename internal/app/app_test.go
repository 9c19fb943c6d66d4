package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/nodegrid/internal/node"
	"github.com/vk/nodegrid/internal/relay"
)

const greetingKind = `
kind "greeting" {
  label   = "Greeting"
  handler = "variable"

  input "value" {}
  output "value" {}

  field "value" {
    type    = "string"
    default = "hello"
  }
}
`

const shoutKind = `
kind "shout" {
  label   = "Shout"
  handler = "print"

  input "value" {}
  output "next" {
    flow = true
  }
}
`

type recordingEmitter struct {
	mu   sync.Mutex
	msgs []relay.Message
}

func (e *recordingEmitter) Emit(_ string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, payload.(relay.Message))
	return nil
}

func (e *recordingEmitter) kinds() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.msgs))
	for _, m := range e.msgs {
		out = append(out, m.Kind)
	}
	return out
}

func catalogDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestNew_LoadsCatalogOnTopOfBuiltins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.Dir = catalogDir(t, map[string]string{"greeting.hcl": greetingKind})
	a, _ := SetupAppTest(t, cfg)

	def, ok := a.Registry().Lookup("greeting")
	require.True(t, ok)
	assert.Equal(t, "Greeting", def.Label)

	req := httptest.NewRequest(http.MethodGet, "/api/kinds", nil)
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var kinds []struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &kinds))
	require.Len(t, kinds, 5)
	assert.Equal(t, "greeting", kinds[4].Type)
}

func TestNew_BadCatalogIsAnError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.Dir = catalogDir(t, map[string]string{"broken.hcl": `kind "x" {
  label   = "X"
  handler = "nope"
}`})

	_, err := New(context.Background(), &SafeBuffer{}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply catalog")
}

func TestNew_MissingCatalogDirIsSkipped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.Dir = filepath.Join(t.TempDir(), "absent")
	a, _ := SetupAppTest(t, cfg)
	assert.Len(t, a.Registry().Kinds(), 4)
}

func TestReloadCatalog(t *testing.T) {
	cfg := DefaultConfig()
	dir := catalogDir(t, map[string]string{"greeting.hcl": greetingKind})
	cfg.Catalog.Dir = dir
	a, logs := SetupAppTest(t, cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "shout.hcl"), []byte(shoutKind), 0o644))
	require.NoError(t, a.ReloadCatalog(context.Background(), []string{"shout.hcl"}))
	_, ok := a.Registry().Lookup("shout")
	assert.True(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "shout.hcl"), []byte(`kind "shout" {`), 0o644))
	require.Error(t, a.ReloadCatalog(context.Background(), []string{"shout.hcl"}))
	_, ok = a.Registry().Lookup("shout")
	assert.True(t, ok, "a failed reload keeps the previous kinds")
	assert.Contains(t, logs.String(), "Catalog applied.")
}

func TestSQLiteDocumentsSurviveRestart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage = StorageConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "docs.db")}
	ctx := context.Background()

	first, err := New(ctx, &SafeBuffer{}, cfg)
	require.NoError(t, err)
	s, err := first.Sessions().Open(ctx)
	require.NoError(t, err)
	_, err = s.CreateNode(ctx, "print", nil, node.Position{X: 1, Y: 2})
	require.NoError(t, err)
	_, err = s.Save(ctx, "keep")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, _ := SetupAppTest(t, cfg)
	list, err := second.Documents().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "keep", list[0].Name)
	assert.Equal(t, 1, list[0].Nodes)
}

func TestServe_RelaysSessionChanges(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	emitter := &recordingEmitter{}
	a, _ := SetupAppTest(t, cfg, WithEmitter(emitter))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	s, err := a.Sessions().Open(ctx)
	require.NoError(t, err)
	_, err = s.CreateNode(ctx, "print", nil, node.Position{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(emitter.kinds()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{relay.KindOpened, relay.KindChange}, emitter.kinds())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Empty(t, a.Sessions().List(), "sessions are closed on shutdown")
}

func TestServe_WatchRequiresCatalogDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	cfg.Catalog.Dir = filepath.Join(t.TempDir(), "absent")
	cfg.Catalog.Watch = true
	a, _ := SetupAppTest(t, cfg)

	err := a.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot watch catalog")
}
