// Package servant supervises running artefact instances.
//
// A servant is built by the Factory registered for its artefact kind and runs
// on its own goroutine until it is stopped. The Supervisor is the sole owner
// of every servant: it keeps the table keyed by (kind, artefact, servant),
// wires output ports into input ports, and performs the synchronous
// stop-then-close sequence.
//
// Data flows between servants through Outlets (fan-out lists of downstream
// Inlets) and Inboxes (bounded channels drained by the receiving servant).
// The supervisor only ever touches these to connect or disconnect them; it
// never sees the events themselves.
//
// Like the artefact registries, the Supervisor is not safe for concurrent use.
// It is owned by the world's run loop.
package servant
