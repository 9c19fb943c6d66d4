package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/nodegrid/internal/builtin"
	"github.com/vk/nodegrid/internal/executor"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/inmemorydocs"
	"github.com/vk/nodegrid/internal/metrics"
	"github.com/vk/nodegrid/internal/node"
	"github.com/vk/nodegrid/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	t        *testing.T
	sessions *session.Manager
	handler  http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := builtin.NewRegistry(nil)
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)
	n := 0
	sessions := session.NewManager(reg, inmemorydocs.New(), executor.New(reg),
		session.WithObserver(m),
		session.WithIDGenerator(func() string { n++; return fmt.Sprintf("s%d", n) }),
	)
	srv := New(context.Background(), sessions, WithGatherer(promReg))
	return &harness{t: t, sessions: sessions, handler: srv.Handler()}
}

// do sends a JSON request and decodes a JSON response into out when given.
func (h *harness) do(method, path string, body any, out any) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		require.NoError(h.t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w
}

func (h *harness) open() string {
	h.t.Helper()
	var info session.Info
	w := h.do(http.MethodPost, "/api/sessions", nil, &info)
	require.Equal(h.t, http.StatusCreated, w.Code)
	return info.ID
}

func (h *harness) create(id, typ string, payload map[string]any) node.Instance {
	h.t.Helper()
	var n node.Instance
	w := h.do(http.MethodPost, "/api/sessions/"+id+"/nodes", map[string]any{"type": typ, "payload": payload}, &n)
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return n
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK\n", w.Body.String())
}

func TestKinds(t *testing.T) {
	h := newHarness(t)
	var kinds []struct {
		Type string `json:"type"`
	}
	w := h.do(http.MethodGet, "/api/kinds", nil, &kinds)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, kinds, 4)
	assert.Equal(t, "variable", kinds[0].Type)
	assert.Equal(t, "loop", kinds[3].Type)
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	id := h.open()

	var list []session.Info
	h.do(http.MethodGet, "/api/sessions", nil, &list)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/api/sessions/"+id, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/api/sessions/"+id, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/sessions/"+id, nil, nil).Code)
}

func TestConnectAndRemove(t *testing.T) {
	h := newHarness(t)
	id := h.open()
	v := h.create(id, "variable", nil)
	p := h.create(id, "print", nil)

	var e graph.Edge
	w := h.do(http.MethodPost, "/api/sessions/"+id+"/edges",
		graph.Edge{Source: v.ID, SourcePort: "value", Target: p.ID, TargetPort: "value"}, &e)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "e-1", e.ID)

	var got sessionResponse
	h.do(http.MethodGet, "/api/sessions/"+id, nil, &got)
	assert.Equal(t, 2, got.Nodes)
	assert.Len(t, got.NodeViews, 2)
	assert.Len(t, got.EdgeViews, 1)

	w = h.do(http.MethodDelete, "/api/sessions/"+id+"/nodes/"+v.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	h.do(http.MethodGet, "/api/sessions/"+id, nil, &got)
	assert.Equal(t, 1, got.Nodes)
	assert.Empty(t, got.EdgeViews)
}

func TestRejections(t *testing.T) {
	h := newHarness(t)
	id := h.open()
	p := h.create(id, "print", nil)
	base := "/api/sessions/" + id

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown type", http.MethodPost, base + "/nodes", map[string]any{"type": "teleport"}, http.StatusUnprocessableEntity},
		{"missing type", http.MethodPost, base + "/nodes", map[string]any{}, http.StatusBadRequest},
		{"bogus port", http.MethodPost, base + "/edges", graph.Edge{Source: p.ID, SourcePort: "bogus", Target: p.ID, TargetPort: "value"}, http.StatusUnprocessableEntity},
		{"missing endpoint", http.MethodPost, base + "/edges", map[string]any{"source": p.ID}, http.StatusBadRequest},
		{"missing node", http.MethodDelete, base + "/nodes/ghost", nil, http.StatusNotFound},
		{"missing edge", http.MethodDelete, base + "/edges/e-9", nil, http.StatusNotFound},
		{"bad field", http.MethodPatch, base + "/nodes/" + p.ID, map[string]any{"payload": map[string]any{"colour": 1}}, http.StatusUnprocessableEntity},
		{"bad save name", http.MethodPost, base + "/save", map[string]any{"name": "../x"}, http.StatusBadRequest},
		{"unknown document", http.MethodPost, base + "/restore", map[string]any{"name": "nothing"}, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := h.do(tc.method, tc.path, tc.body, nil)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}

	var got sessionResponse
	h.do(http.MethodGet, base, nil, &got)
	assert.Equal(t, 1, got.Nodes)
	assert.Equal(t, 0, got.Edges)
}

func TestUpdateNode(t *testing.T) {
	h := newHarness(t)
	id := h.open()
	loop := h.create(id, "loop", nil)

	var n node.Instance
	w := h.do(http.MethodPatch, "/api/sessions/"+id+"/nodes/"+loop.ID, map[string]any{
		"position": map[string]any{"x": 40, "y": 60},
		"payload":  map[string]any{"count": "3"},
	}, &n)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, node.Position{X: 40, Y: 60}, n.Position)
	assert.Equal(t, 3.0, n.Payload["count"], "count is an int in the store and a JSON number on the wire")
}

func TestSaveRestoreRunAndDocuments(t *testing.T) {
	h := newHarness(t)
	a := h.open()
	loop := h.create(a, "loop", map[string]any{"count": 3})
	p := h.create(a, "print", nil)
	h.do(http.MethodPost, "/api/sessions/"+a+"/edges",
		graph.Edge{Source: loop.ID, SourcePort: "body", Target: p.ID, TargetPort: "value"}, nil)

	w := h.do(http.MethodPost, "/api/sessions/"+a+"/save", map[string]any{"name": "counter"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var docs []struct {
		Name  string `json:"name"`
		Nodes int    `json:"nodes"`
	}
	h.do(http.MethodGet, "/api/documents", nil, &docs)
	require.Len(t, docs, 1)
	assert.Equal(t, "counter", docs[0].Name)

	b := h.open()
	w = h.do(http.MethodPost, "/api/sessions/"+b+"/restore", map[string]any{"name": "counter"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rep executor.Report
	w = h.do(http.MethodPost, "/api/sessions/"+b+"/run", nil, &rep)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"0", "1", "2"}, rep.Output)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodDelete, "/api/documents/counter", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/api/documents/counter", nil, nil).Code)
}

func TestExportImportYAML(t *testing.T) {
	h := newHarness(t)
	a := h.open()
	h.create(a, "variable", map[string]any{"value": "hello"})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+a+"/document?format=yaml", nil)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "value: hello")

	b := h.open()
	req = httptest.NewRequest(http.MethodPut, "/api/sessions/"+b+"/document", strings.NewReader(w.Body.String()))
	req.Header.Set("Content-Type", "application/yaml")
	w = httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var info session.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, 1, info.Nodes)
}

func TestRenderText(t *testing.T) {
	h := newHarness(t)
	id := h.open()
	h.create(id, "print", nil)

	w := h.do(http.MethodGet, "/api/sessions/"+id+"/render", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "┌ Print")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	id := h.open()
	h.create(id, "print", nil)
	h.do(http.MethodPost, "/api/sessions/"+id+"/nodes", map[string]any{"type": "teleport"}, nil)

	w := h.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `nodegrid_graph_mutations_total{op="add_node",result="ok"} 1`)
	assert.Contains(t, body, `nodegrid_graph_mutations_total{op="add_node",result="rejected"} 1`)
	assert.Contains(t, body, "nodegrid_sessions_active 1")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(&graph.DuplicateNodeError{ID: "x"}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(session.ErrLimit))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}

// readEvent reads events until one of the wanted type arrives.
func readEvent(t *testing.T, conn *websocket.Conn, want string) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var ev wsEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == want {
			return ev
		}
	}
}

func TestWebsocketGestures(t *testing.T) {
	h := newHarness(t)
	id := h.open()
	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	snap := readEvent(t, conn, evSnapshot)
	assert.Empty(t, snap.Nodes)
	require.NotNil(t, snap.Viewport)

	// Drag a Loop from the palette and drop it on the canvas.
	require.NoError(t, conn.WriteJSON(wsRequest{Type: msgPaletteDrag, Kind: "loop"}))
	readEvent(t, conn, evPreview)
	require.NoError(t, conn.WriteJSON(wsRequest{Type: msgDrop, Target: &wsTarget{Kind: "canvas", X: 100, Y: 100}}))

	up := readEvent(t, conn, evUpdate)
	require.NotNil(t, up.Update)
	require.Len(t, up.Update.Nodes, 1)
	assert.Equal(t, "Loop", up.Update.Nodes[0].Label)
	assert.Equal(t, node.Position{X: 100, Y: 100}, up.Update.Nodes[0].Position)

	res := readEvent(t, conn, evResult)
	assert.Equal(t, "committed", res.Result.Outcome)

	// Invalid messages are reported, not fatal.
	require.NoError(t, conn.WriteJSON(wsRequest{Type: msgPortDrag}))
	bad := readEvent(t, conn, evError)
	assert.Contains(t, bad.Error, "Node")

	// Body control edit.
	require.NoError(t, conn.WriteJSON(wsRequest{Type: msgEdit, Node: res.Result.Node, Field: "count", Value: 9}))
	up = readEvent(t, conn, evUpdate)
	require.Len(t, up.Update.Nodes, 1)
	require.NotNil(t, up.Update.Nodes[0].Control)
	assert.EqualValues(t, 9, up.Update.Nodes[0].Control.Value)

	// Dropping outside the canvas discards the gesture.
	require.NoError(t, conn.WriteJSON(wsRequest{Type: msgPaletteDrag, Kind: "print"}))
	readEvent(t, conn, evPreview)
	require.NoError(t, conn.WriteJSON(wsRequest{Type: msgDrop, Target: &wsTarget{Kind: "none"}}))
	res = readEvent(t, conn, evResult)
	assert.Equal(t, "discarded", res.Result.Outcome)

	s, err := h.sessions.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Info().Nodes)
}
