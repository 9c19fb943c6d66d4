// Package app contains the core application wiring. It defines the main App
// struct, its configuration, and the serve lifecycle, decoupled from any
// specific entrypoint like the CLI.
package app
