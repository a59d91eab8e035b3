// Error taxonomy for the core engine. Plain fmt.Errorf/errors.New remain
// the idiom elsewhere in this repo; ErrorKind adds just enough structure
// to let the Engine attach a typed reason to a Sequence's terminal Error
// chunk.
package engine

import "fmt"

// ErrorKind is the closed taxonomy of terminal-error reasons a Sequence or
// a whole batch can carry. Not an error itself — SequenceError wraps it.
type ErrorKind int

const (
	ErrAdmission ErrorKind = iota
	ErrResourceStarvation
	ErrConstraintDeadEnd
	ErrClientSlow
	ErrPipelineFailed
	ErrInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrAdmission:
		return "admission_error"
	case ErrResourceStarvation:
		return "resource_starvation"
	case ErrConstraintDeadEnd:
		return "constraint_dead_end"
	case ErrClientSlow:
		return "client_slow"
	case ErrPipelineFailed:
		return "pipeline_failed"
	case ErrInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// SequenceError is attached to a Sequence when it closes abnormally. It
// implements error so internal plumbing can use %w wrapping while the
// Engine still recovers the ErrorKind for the terminal Chunk.
type SequenceError struct {
	Kind ErrorKind
	Msg  string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func NewSequenceError(kind ErrorKind, format string, args ...any) *SequenceError {
	return &SequenceError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
