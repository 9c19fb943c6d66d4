// Package registry is the catalog of node kinds available to the constructor.
//
// The Registry maps type tags carried by palette drags ("variable", "loop")
// onto immutable kind.Definition schemas, and maps handler names onto the
// compiled Go functions that execute a node. Kinds are contributed by
// modules (see the Module interface) at startup and by HCL catalog files,
// which may reuse any registered handler by name.
//
// Create is the single place where node instances are minted, so it owns
// the id scheme: "<type>-<unix millis>", strictly increasing per registry.
package registry
