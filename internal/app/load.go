package app

import (
	"context"
	"fmt"

	"github.com/vk/nodegrid/internal/builtin"
	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/hcl"
	"github.com/vk/nodegrid/internal/registry"
)

// LoadRegistry returns a registry holding the built-in kinds, any extra
// modules and the catalog found under cfg.Catalog.Dir, validated.
func LoadRegistry(ctx context.Context, cfg Config, mods ...registry.Module) (*registry.Registry, error) {
	reg := builtin.NewRegistry(mods)
	ctxlog.FromContext(ctx).Debug("Built-in node kinds registered.", "kinds", len(reg.Kinds()))

	if err := loadCatalog(ctx, hcl.NewLoader(), reg, cfg.Catalog.Dir); err != nil {
		return nil, err
	}
	if err := reg.Validate(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}

// loadCatalog reads every *.hcl file under dir and registers the kinds on
// top of what reg already holds. A missing directory is not an error.
func loadCatalog(ctx context.Context, loader *hcl.Loader, reg *registry.Registry, dir string) error {
	if dir == "" {
		ctxlog.FromContext(ctx).Debug("No catalog directory configured.")
		return nil
	}
	ctxlog.FromContext(ctx).Debug("Loading node kind catalog...", "dir", dir)

	defs, err := loader.Load(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	if err := hcl.Apply(ctx, reg, defs); err != nil {
		return fmt.Errorf("failed to apply catalog: %w", err)
	}
	return nil
}

// ReloadCatalog re-reads the catalog directory. Kinds that are added or
// changed take effect for nodes created afterwards; a kind removed from the
// catalog stays registered until restart.
func (a *App) ReloadCatalog(ctx context.Context, changed []string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	err := loadCatalog(ctx, a.loader, a.registry, a.cfg.Catalog.Dir)
	a.metrics.CatalogReloaded(err)
	if err != nil {
		return err
	}
	a.logger.Debug("Catalog kinds after reload.", "changed", changed, "kinds", len(a.registry.Kinds()))
	return nil
}
