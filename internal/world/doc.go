// Package world implements the orchestrator. A World owns the artefact
// registries, the servant supervisor and the binding resolver, and is the
// only thing that touches them: every operation is a request sent through a
// bounded mailbox and executed, one at a time and in arrival order, by a
// single loop goroutine. Callers never observe a half-applied mutation and no
// locks guard the state.
//
// When the mailbox is full, sending blocks. Management traffic is expected to
// be light, so the caller is made to wait rather than being turned away.
//
// Stop is a two step affair: Stop unlinks everything and asks the loop to
// exit, Wait returns once it has.
package world
