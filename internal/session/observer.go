package session

import (
	"context"

	"github.com/vk/nodegrid/internal/canvas"
	"github.com/vk/nodegrid/internal/executor"
	"github.com/vk/nodegrid/internal/graph"
)

// Observer is told about everything that happens in every session. Calls
// are synchronous; GraphChanged runs inside the store's notification and
// must not mutate the graph.
type Observer interface {
	SessionOpened(ctx context.Context, id string)
	SessionClosed(ctx context.Context, id string)
	GraphChanged(ctx context.Context, id string, c graph.Change)
	MutationRejected(ctx context.Context, id string, op graph.Op, err error)
	GestureEnded(ctx context.Context, id string, r canvas.Result)
	RunFinished(ctx context.Context, id string, r executor.Report, err error)
}

// NopObserver implements Observer with no-ops. Embed it to pick methods.
type NopObserver struct{}

func (NopObserver) SessionOpened(context.Context, string) {}
func (NopObserver) SessionClosed(context.Context, string) {}
func (NopObserver) GraphChanged(context.Context, string, graph.Change) {}
func (NopObserver) MutationRejected(context.Context, string, graph.Op, error) {}
func (NopObserver) GestureEnded(context.Context, string, canvas.Result) {}
func (NopObserver) RunFinished(context.Context, string, executor.Report, error) {}

type observers []Observer

func (o observers) SessionOpened(ctx context.Context, id string) {
	for _, x := range o {
		x.SessionOpened(ctx, id)
	}
}

func (o observers) SessionClosed(ctx context.Context, id string) {
	for _, x := range o {
		x.SessionClosed(ctx, id)
	}
}

func (o observers) GraphChanged(ctx context.Context, id string, c graph.Change) {
	for _, x := range o {
		x.GraphChanged(ctx, id, c)
	}
}

func (o observers) MutationRejected(ctx context.Context, id string, op graph.Op, err error) {
	for _, x := range o {
		x.MutationRejected(ctx, id, op, err)
	}
}

func (o observers) GestureEnded(ctx context.Context, id string, r canvas.Result) {
	for _, x := range o {
		x.GestureEnded(ctx, id, r)
	}
}

func (o observers) RunFinished(ctx context.Context, id string, r executor.Report, err error) {
	for _, x := range o {
		x.RunFinished(ctx, id, r, err)
	}
}
