// Package registry stores published artefact definitions.
//
// There is one Registry per artefact kind. Each maps an id to its immutable
// definition and remembers insertion order so listings are deterministic.
// Publishing an id that already exists is a conflict, never an overwrite;
// republishing requires an explicit unpublish first.
//
// A Registry has no lock. It is owned by the world's run loop, which is the
// only goroutine that ever reads or mutates it.
package registry
