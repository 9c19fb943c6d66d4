package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vk/nodegrid/internal/canvas"
	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/docstore"
	"github.com/vk/nodegrid/internal/document"
	"github.com/vk/nodegrid/internal/executor"
	"github.com/vk/nodegrid/internal/graph"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/registry"
	"github.com/vk/nodegrid/internal/session"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		coerceErr  *kind.CoerceError
		recordErr  *document.RecordError
		versionErr *document.VersionError
		nodeErr    *executor.NodeError
	)
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, docstore.ErrNotFound),
		graph.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, session.ErrLimit):
		return http.StatusServiceUnavailable
	case errors.Is(err, canvas.ErrBusy),
		errors.Is(err, graph.ErrDuplicateNode),
		errors.Is(err, graph.ErrDuplicateEdge):
		return http.StatusConflict
	case graph.IsRejectedEdge(err),
		errors.Is(err, graph.ErrUnknownField),
		errors.Is(err, graph.ErrInvalidPosition),
		errors.Is(err, registry.ErrUnknownType),
		errors.Is(err, registry.ErrUnknownField),
		errors.Is(err, canvas.ErrNotOutputPort),
		errors.As(err, &coerceErr),
		errors.As(err, &recordErr),
		errors.As(err, &versionErr),
		errors.Is(err, executor.ErrStepLimit),
		errors.Is(err, executor.ErrCycle),
		errors.As(err, &nodeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, docstore.ErrInvalidName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// abort writes err as {"error": "..."} with its mapped status.
func abort(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		ctxlog.FromContext(c.Request.Context()).Error("Request failed.", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
