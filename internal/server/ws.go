package server

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vk/nodegrid/internal/canvas"
	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/render"
	"github.com/vk/nodegrid/internal/session"
)

// Client message types.
const (
	msgPaletteDrag = "palette_drag"
	msgPortDrag    = "port_drag"
	msgNodeDrag    = "node_drag"
	msgMove        = "move"
	msgDrop        = "drop"
	msgCancel      = "cancel"
	msgEdit        = "edit"
	msgPan         = "pan"
	msgZoom        = "zoom"
)

// Server event types.
const (
	evSnapshot = "snapshot"
	evUpdate   = "update"
	evResult   = "result"
	evPreview  = "preview"
	evViewport = "viewport"
	evError    = "error"
)

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 5 * time.Second
)

// wsRequest is one pointer, keyboard or edit event from the browser.
type wsRequest struct {
	Type   string    `json:"type" validate:"required,oneof=palette_drag port_drag node_drag move drop cancel edit pan zoom"`
	Kind   string    `json:"kind" validate:"required_if=Type palette_drag"`
	Node   string    `json:"node" validate:"required_if=Type port_drag,required_if=Type node_drag,required_if=Type edit"`
	Port   string    `json:"port" validate:"required_if=Type port_drag"`
	Field  string    `json:"field" validate:"required_if=Type edit"`
	Value  any       `json:"value"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
	Factor float64   `json:"factor" validate:"required_if=Type zoom,gte=0"`
	Target *wsTarget `json:"target" validate:"required_if=Type drop"`
}

type wsTarget struct {
	Kind string  `json:"kind" validate:"required,oneof=none canvas port"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Node string  `json:"node" validate:"required_if=Kind port"`
	Port string  `json:"port" validate:"required_if=Kind port"`
}

func (t wsTarget) target() canvas.Target {
	p := canvas.Point{X: t.X, Y: t.Y}
	switch t.Kind {
	case "canvas":
		return canvas.OnCanvas(p)
	case "port":
		return canvas.OnPort(t.Node, t.Port, p)
	default:
		return canvas.Nowhere()
	}
}

type wsResult struct {
	Gesture string      `json:"gesture"`
	Outcome string      `json:"outcome"`
	Reason  string      `json:"reason,omitempty"`
	Node    string      `json:"node,omitempty"`
	Edge    *graph.Edge `json:"edge,omitempty"`
	Cause   string      `json:"cause,omitempty"`
}

func resultOf(r canvas.Result) *wsResult {
	out := &wsResult{Gesture: r.Gesture.String(), Outcome: string(r.Outcome), Reason: r.Reason, Node: r.Node}
	if r.Edge.ID != "" {
		e := r.Edge
		out.Edge = &e
	}
	if r.Cause != nil {
		out.Cause = r.Cause.Error()
	}
	return out
}

// wsEvent is everything the server pushes.
type wsEvent struct {
	Type     string            `json:"type"`
	Version  uint64            `json:"version,omitempty"`
	Nodes    []render.NodeView `json:"nodes,omitempty"`
	Edges    []render.EdgeView `json:"edges,omitempty"`
	Update   *render.Update    `json:"update,omitempty"`
	Result   *wsResult         `json:"result,omitempty"`
	Preview  *canvas.Preview   `json:"preview,omitempty"`
	Viewport *canvas.Viewport  `json:"viewport,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// serveWS upgrades the request and runs one editor connection: it sends a
// snapshot, then pushes every render update while applying client events.
func (s *Server) serveWS(c *gin.Context) {
	sess := current(c)
	logger := ctxlog.FromContext(c.Request.Context()).With("session", sess.ID())

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Websocket upgrade failed.", "error", err)
		return
	}
	defer conn.Close()
	logger.Info("Websocket client connected.")

	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.WithoutCancel(c.Request.Context()), logger))
	defer cancel()

	send := make(chan wsEvent, wsSendBuffer)
	push := func(ev wsEvent) {
		select {
		case send <- ev:
		default:
			logger.Warn("Websocket client too slow; dropping event.", "type", ev.Type)
		}
	}

	vp := sess.Canvas().Viewport()
	stop := sess.Views().Attach(func(f render.Frame) {
		push(wsEvent{
			Type:     evSnapshot,
			Version:  f.Version,
			Nodes:    f.Nodes,
			Edges:    f.Edges,
			Viewport: &vp,
		})
	}, func(_ context.Context, u render.Update) {
		push(wsEvent{Type: evUpdate, Version: u.Version, Update: &u})
	})
	defer stop()

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-send:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(ev); err != nil {
					logger.Debug("Websocket write failed.", "error", err)
					return
				}
			}
		}
	}()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || ctx.Err() != nil {
				logger.Info("Websocket client disconnected.")
			} else {
				logger.Debug("Websocket read failed.", "error", err)
			}
			// An abandoned gesture must not leave a half-moved node behind.
			if _, err := sess.Cancel(ctx); err != nil {
				logger.Warn("Failed to cancel gesture on disconnect.", "error", err)
			}
			return
		}
		if err := s.validate.Struct(req); err != nil {
			push(wsEvent{Type: evError, Error: err.Error()})
			continue
		}
		if ev, err := s.handleWS(ctx, sess, req); err != nil {
			push(wsEvent{Type: evError, Error: err.Error()})
		} else if ev != nil {
			push(*ev)
		}
	}
}

func (s *Server) handleWS(ctx context.Context, sess *session.Session, req wsRequest) (*wsEvent, error) {
	ctl := sess.Canvas()
	at := canvas.Point{X: req.X, Y: req.Y}

	switch req.Type {
	case msgPaletteDrag:
		if err := ctl.BeginPaletteDrag(ctx, req.Kind); err != nil {
			return nil, err
		}
		return previewEvent(ctl), nil
	case msgPortDrag:
		if err := ctl.BeginPortDrag(ctx, req.Node, req.Port); err != nil {
			return nil, err
		}
		return previewEvent(ctl), nil
	case msgNodeDrag:
		if err := ctl.BeginNodeDrag(ctx, req.Node, at); err != nil {
			return nil, err
		}
		return previewEvent(ctl), nil
	case msgMove:
		if err := ctl.Move(ctx, at); err != nil {
			return nil, err
		}
		return previewEvent(ctl), nil
	case msgDrop:
		res, err := sess.Drop(ctx, req.Target.target())
		if err != nil {
			return nil, err
		}
		return &wsEvent{Type: evResult, Result: resultOf(res)}, nil
	case msgCancel:
		res, err := sess.Cancel(ctx)
		if err != nil {
			return nil, err
		}
		return &wsEvent{Type: evResult, Result: resultOf(res)}, nil
	case msgEdit:
		return nil, sess.PatchNode(ctx, req.Node, map[string]any{req.Field: req.Value})
	case msgPan:
		vp := ctl.Pan(req.X, req.Y)
		return &wsEvent{Type: evViewport, Viewport: &vp}, nil
	case msgZoom:
		vp := ctl.ZoomAt(at, req.Factor)
		return &wsEvent{Type: evViewport, Viewport: &vp}, nil
	default:
		return nil, errors.New("unsupported message type")
	}
}

// previewEvent reports the gesture in progress, or nil when idle.
func previewEvent(ctl *canvas.Controller) *wsEvent {
	p, ok := ctl.Preview()
	if !ok {
		return nil
	}
	return &wsEvent{Type: evPreview, Preview: &p}
}
