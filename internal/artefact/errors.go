package artefact

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
	ErrInUse               = errors.New("in use")
	ErrValidation          = errors.New("validation failed")
	ErrConstruction        = errors.New("construction failed")
	ErrPartialFailure      = errors.New("partial failure")
	ErrAlreadyRunning      = errors.New("already running")
	ErrStopping            = errors.New("world is stopping")
	ErrStopped             = errors.New("world is stopped")
	ErrFileLoad            = errors.New("file load failed")
	ErrUnsupportedFileType = errors.New("unsupported file type")
)

// NotFound returns an ErrNotFound-matching error naming what was missing.
func NotFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

// Conflict returns an ErrConflict-matching error naming the duplicate.
func Conflict(what string) error {
	return fmt.Errorf("%s: %w", what, ErrConflict)
}

// InUseError is returned when an artefact still has live servants.
type InUseError struct {
	Kind     Kind
	ID       string
	Servants []string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s %q is in use by servant(s) %s", e.Kind, e.ID, strings.Join(e.Servants, ", "))
}

func (e *InUseError) Is(target error) bool { return target == ErrInUse }

// ValidationError lists every problem found while resolving a binding.
type ValidationError struct {
	Binding  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("binding %q is invalid:\n- %s", e.Binding, strings.Join(e.Problems, "\n- "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConstructionError wraps a failure to build or start a servant.
type ConstructionError struct {
	Key ServantKey
	Err error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("failed to construct servant %s: %v", e.Key, e.Err)
}

func (e *ConstructionError) Is(target error) bool { return target == ErrConstruction }

func (e *ConstructionError) Unwrap() error { return e.Err }

// PartialFailureError reports a link attempt that failed after some steps had
// already been applied. RolledBack lists the servants that were stopped again.
type PartialFailureError struct {
	Binding    string
	Servant    string
	RolledBack []ServantKey
	Err        error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("linking /binding/%s/%s failed, rolled back %d servant(s): %v",
		e.Binding, e.Servant, len(e.RolledBack), e.Err)
}

func (e *PartialFailureError) Is(target error) bool { return target == ErrPartialFailure }

func (e *PartialFailureError) Unwrap() error { return e.Err }

// FileLoadError carries the path and dialect of a startup file that failed.
type FileLoadError struct {
	Path string
	Kind string
	Err  error
}

func (e *FileLoadError) Error() string {
	return fmt.Sprintf("failed to load %s file %q: %v", e.Kind, e.Path, e.Err)
}

func (e *FileLoadError) Is(target error) bool { return target == ErrFileLoad }

func (e *FileLoadError) Unwrap() error { return e.Err }

// UnsupportedFileTypeError is returned for a startup file whose dialect is
// unknown or not allowed in its load phase.
type UnsupportedFileTypeError struct {
	Path     string
	Kind     string
	Expected string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type %s for %q, expected %s", e.Kind, e.Path, e.Expected)
}

func (e *UnsupportedFileTypeError) Is(target error) bool { return target == ErrUnsupportedFileType }
