package server

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vk/nodegrid/internal/document"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/node"
	"github.com/vk/nodegrid/internal/render"
	"github.com/vk/nodegrid/internal/session"
)

const sessionKey = "session"

type createNodeRequest struct {
	Type     string         `json:"type" binding:"required"`
	Position node.Position  `json:"position"`
	Payload  map[string]any `json:"payload"`
}

type updateNodeRequest struct {
	Position *node.Position `json:"position"`
	Payload  map[string]any `json:"payload"`
}

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

type sessionResponse struct {
	session.Info
	NodeViews []render.NodeView `json:"nodeViews"`
	EdgeViews []render.EdgeView `json:"edgeViews"`
}

func (s *Server) loadSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		abort(c, err)
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func current(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

func (s *Server) listKinds(c *gin.Context) {
	c.JSON(http.StatusOK, s.sessions.Registry().Kinds())
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, s.sessions.List())
}

func (s *Server) openSession(c *gin.Context) {
	sess, err := s.sessions.Open(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess.Info())
}

func (s *Server) getSession(c *gin.Context) {
	sess := current(c)
	f := sess.Views().Frame()
	c.JSON(http.StatusOK, sessionResponse{
		Info:      sess.Info(),
		NodeViews: f.Nodes,
		EdgeViews: f.Edges,
	})
}

func (s *Server) closeSession(c *gin.Context) {
	if err := s.sessions.Close(c.Request.Context(), c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) renderSession(c *gin.Context) {
	sess := current(c)
	var b bytes.Buffer
	f := sess.Views().Frame()
	if err := render.Text(&b, f.Nodes, f.Edges); err != nil {
		abort(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", b.Bytes())
}

func (s *Server) createNode(c *gin.Context) {
	var req createNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	n, err := current(c).CreateNode(c.Request.Context(), req.Type, req.Payload, req.Position)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (s *Server) updateNode(c *gin.Context) {
	var req updateNodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	sess := current(c)
	id := c.Param("node")

	if len(req.Payload) > 0 {
		if err := sess.PatchNode(ctx, id, req.Payload); err != nil {
			abort(c, err)
			return
		}
	}
	if req.Position != nil {
		if err := sess.MoveNode(ctx, id, *req.Position); err != nil {
			abort(c, err)
			return
		}
	}
	n, ok := sess.Store().Node(id)
	if !ok {
		abort(c, &graph.NodeNotFoundError{ID: id})
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) removeNode(c *gin.Context) {
	if err := current(c).RemoveNode(c.Request.Context(), c.Param("node")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) createEdge(c *gin.Context) {
	var req graph.Edge
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.ID = ""
	e, err := current(c).Connect(c.Request.Context(), req)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *Server) removeEdge(c *gin.Context) {
	if err := current(c).Disconnect(c.Request.Context(), c.Param("edge")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) exportDocument(c *gin.Context) {
	format := document.Format(strings.ToLower(c.DefaultQuery("format", string(document.JSON))))
	var b bytes.Buffer
	if err := document.Encode(&b, current(c).Export(), format); err != nil {
		badRequest(c, err)
		return
	}
	contentType := "application/json"
	if format == document.YAML {
		contentType = "application/yaml"
	}
	c.Data(http.StatusOK, contentType, b.Bytes())
}

func (s *Server) importDocument(c *gin.Context) {
	format := document.JSON
	if strings.Contains(c.ContentType(), "yaml") {
		format = document.YAML
	}
	doc, err := document.Decode(c.Request.Body, format)
	if err != nil {
		badRequest(c, err)
		return
	}
	sess := current(c)
	if err := sess.Import(c.Request.Context(), doc); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

func (s *Server) saveSession(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sum, err := current(c).Save(c.Request.Context(), req.Name)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) restoreSession(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess := current(c)
	if err := sess.Restore(c.Request.Context(), req.Name); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

func (s *Server) runSession(c *gin.Context) {
	var out bytes.Buffer
	rep, err := current(c).Run(c.Request.Context(), &out)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) listDocuments(c *gin.Context) {
	list, err := s.sessions.Documents().List(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) deleteDocument(c *gin.Context) {
	if err := s.sessions.Documents().Delete(c.Request.Context(), c.Param("name")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
