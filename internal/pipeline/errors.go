package pipeline

import (
	"errors"
	"fmt"
)

// Stage error kinds.
const (
	KindNoCandidates = "no_candidates"
	KindUpstream     = "upstream"
	KindLLM          = "llm"
	KindStorage      = "storage"
	KindPanic        = "panic"
	KindRejected     = "rejected"
)

// ValidationError reports a request that was rejected before any run
// started. Nothing is streamed for it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StageError is a failure inside a stage. It ends the run.
type StageError struct {
	Stage   string
	Kind    string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %s (%s): %s: %v", e.Stage, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("stage %s (%s): %s", e.Stage, e.Kind, e.Message)
}

func (e *StageError) Unwrap() error { return e.Err }

// ResumeConflictError reports a resume for a thread that is unknown, was
// already resumed, or is waiting at a different gate.
type ResumeConflictError struct {
	ThreadID string
	Gate     string
	Reason   string
}

func (e *ResumeConflictError) Error() string {
	return fmt.Sprintf("cannot resume thread %s at gate %s: %s", e.ThreadID, e.Gate, e.Reason)
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsResumeConflict reports whether err is, or wraps, a ResumeConflictError.
func IsResumeConflict(err error) bool {
	var rc *ResumeConflictError
	return errors.As(err, &rc)
}
