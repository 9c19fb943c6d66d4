// Package kind describes node kinds: the immutable schema shared by every
// instance of a node type in the constructor.
//
// A Definition declares the ordered input and output ports of a kind, its
// editable payload fields and the style hint the renderer uses. Definitions
// are plain data. Adding a new kind is a matter of registering a new
// Definition, never of writing a new Go type.
//
// Field values are typed through go-cty so that raw values arriving from a
// form field ("5"), a JSON body (5.0) or an HCL catalog file all land in the
// same Go representation.
package kind
