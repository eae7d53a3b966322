/*
Package artefact defines the vocabulary shared by every part of the runtime:
artefact kinds, immutable definitions, servant keys, endpoint URLs and the
link descriptors that make up a binding.

Endpoint URLs use the canonical form `/kind/artefact/servant/port`, e.g.
`/pipeline/main/01/in`. The servant and port segments are optional when a URL
names an artefact rather than a running instance.

The package also owns the error taxonomy. Every structured error matches one
of the sentinel values through errors.Is, so callers at the edges (API, CLI)
can map failures without knowing the concrete type.
*/
package artefact
