package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/drmonteiro/brands-ai/internal/approval"
	"github.com/drmonteiro/brands-ai/internal/model"
)

// Outcome is what a stage asks the executor to do next.
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeSuspend
	OutcomeFail
)

// StageResult is returned by every stage.
type StageResult struct {
	Outcome Outcome
	// Message replaces the stage description in the progress event sent
	// after a continue.
	Message string
	Gate    string
	Payload approval.Payload
	Err     *StageError
}

// Continue lets the run advance to the next stage.
func Continue() StageResult { return StageResult{Outcome: OutcomeContinue} }

// ContinueWith advances and reports msg instead of the stage description.
func ContinueWith(msg string) StageResult {
	return StageResult{Outcome: OutcomeContinue, Message: msg}
}

// Suspend halts the run at gate until a human decision arrives.
func Suspend(gate string, payload approval.Payload) StageResult {
	return StageResult{Outcome: OutcomeSuspend, Gate: gate, Payload: payload}
}

// Fail ends the run.
func Fail(kind, format string, args ...any) StageResult {
	return StageResult{Outcome: OutcomeFail, Err: &StageError{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// FailErr ends the run with an underlying cause.
func FailErr(kind string, err error, msg string) StageResult {
	return StageResult{Outcome: OutcomeFail, Err: &StageError{Kind: kind, Message: msg, Err: err}}
}

// Stage is one unit of pipeline work. A stage must not keep state between
// runs; everything it produces goes into the RunState.
type Stage interface {
	Name() string
	// Description is the progress line sent when the stage completes.
	Description() string
	Run(ctx context.Context, sc *StageContext, state *model.RunState) StageResult
}

// StageContext gives a stage access to its run.
type StageContext struct {
	ThreadID string
	Log      *zap.Logger
	progress func(string)
}

// Progress emits an intermediate progress line.
func (sc *StageContext) Progress(format string, args ...any) {
	if sc.progress != nil {
		sc.progress(fmt.Sprintf(format, args...))
	}
}
