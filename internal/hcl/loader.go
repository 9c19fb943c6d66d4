package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/nodegrid/internal/ctxlog"
	"github.com/vk/nodegrid/internal/fsutil"
	"github.com/vk/nodegrid/internal/kind"
	"github.com/vk/nodegrid/internal/registry"
)

// Extension is the file extension of catalog files.
const Extension = ".hcl"

// Loader reads node kind catalogs.
type Loader struct{}

// NewLoader creates a catalog loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every catalog file found under paths. Directories are walked
// recursively; paths that do not exist are skipped. A type tag declared
// twice across the catalog is an error.
func (l *Loader) Load(ctx context.Context, paths ...string) ([]kind.Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL catalog loader started.", "path_count", len(paths))

	files, err := findCatalogFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered catalog files.", "count", len(files))

	parser := hclparse.NewParser()
	var defs []kind.Definition
	origin := make(map[string]string)

	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		var root fileRoot
		if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		for _, b := range root.Kinds {
			if prev, dup := origin[b.Type]; dup {
				return nil, fmt.Errorf("kind '%s' is declared in both %s and %s", b.Type, prev, file)
			}
			def, err := translateKind(ctx, b)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			origin[b.Type] = file
			defs = append(defs, def)
		}
	}

	logger.Debug("HCL catalog loading complete.", "kinds", len(defs))
	return defs, nil
}

// Parse decodes a single catalog held in memory.
func (l *Loader) Parse(ctx context.Context, filename string, src []byte) ([]kind.Definition, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(f.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	defs := make([]kind.Definition, 0, len(root.Kinds))
	for _, b := range root.Kinds {
		def, err := translateKind(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Apply registers defs and then checks that every kind's handler resolves.
// Nothing is registered when a definition is rejected.
func Apply(ctx context.Context, reg *registry.Registry, defs []kind.Definition) error {
	for _, def := range defs {
		if _, ok := reg.Handler(def.HandlerName()); !ok {
			return fmt.Errorf("kind '%s': %w: '%s'", def.Type, registry.ErrNoHandler, def.HandlerName())
		}
		if err := def.Validate(); err != nil {
			return err
		}
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	ctxlog.FromContext(ctx).Info("Catalog applied.", "kinds", len(defs))
	return reg.Validate(ctx)
}

// findCatalogFiles returns the sorted, de-duplicated catalog files under paths.
func findCatalogFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, Extension)
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
		} else if filepath.Ext(path) == Extension {
			files = append(files, path)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
