// Package app contains the process-level lifecycle of eventgrid: settings,
// logger, banner, pid file, and the start and orderly shutdown of the world
// and the management API. It is decoupled from any specific entrypoint like a
// CLI.
package app
