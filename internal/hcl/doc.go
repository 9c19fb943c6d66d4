// Package hcl loads node kind catalogs written in HCL.
//
// A catalog file declares any number of kinds:
//
//	kind "greeting" {
//	  label   = "Greeting"
//	  handler = "variable"
//	  style   = "info"
//
//	  input "value" { label = "Value" }
//	  output "value" { label = "Value" }
//
//	  field "value" {
//	    type    = string
//	    label   = "Text"
//	    default = "hello"
//	  }
//	}
//
// The handler attribute names an already registered handler, so catalog
// kinds reuse compiled behaviour without code changes. Loaded kinds are
// registered on top of the built-ins; a catalog kind with a built-in's type
// tag replaces its schema.
package hcl
