// Package binding realizes binding artefacts. Linking an instance of a
// binding resolves its link descriptors against the registries, starts the
// endpoint servants that are not running yet and connects their ports. It is
// all or nothing: a failure part way through undoes everything the attempt
// did before the error is returned.
//
// Servants are shared. Two instances naming the same servant hold it
// together, and unlinking one of them only stops the servants nobody else
// holds.
//
// A Resolver is not safe for concurrent use. The world loop owns it.
package binding
