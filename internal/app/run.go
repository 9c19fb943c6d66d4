package app

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/watch"
)

// Serve runs the HTTP server, the catalog watcher and the change relay until
// ctx is cancelled or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Serve method started.")

	watching := a.cfg.Catalog.Watch && a.cfg.Catalog.Dir != ""
	if watching {
		if _, err := os.Stat(a.cfg.Catalog.Dir); err != nil {
			return fmt.Errorf("cannot watch catalog: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.Serve(ctx, a.cfg.Listen)
	})
	if watching {
		w := watch.New(a.cfg.Catalog.Dir, ".hcl", a.cfg.Catalog.Debounce, a.ReloadCatalog)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(ctx)
		})
	}

	err := g.Wait()
	a.sessions.CloseAll(context.WithoutCancel(ctx))
	a.logger.Debug("App.Serve method finished.", "error", err)
	return err
}
