// Package cli builds the nodegrid command tree and handles process-level
// concerns like exit codes. It translates flags into the application's
// configuration and runs offline document commands without a server.
package cli
