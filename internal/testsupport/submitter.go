package testsupport

import (
	"context"
	"net/http"
	"sync"

	"fieldsync/internal/submit"
)

// Step is one scripted submit outcome.
type Step struct {
	Result submit.Result
	Err    error
}

// OK is an accepted delivery.
func OK() Step { return Step{Result: submit.Result{Status: http.StatusOK}} }

// Duplicate is a delivery the endpoint already had.
func Duplicate() Step {
	return Step{Result: submit.Result{Duplicate: true, Status: http.StatusConflict}}
}

// Fail is a failed delivery with the given HTTP status.
func Fail(status int) Step {
	return Step{Err: &submit.Error{Kind: submit.ClassifyStatus(status), Status: status, Message: http.StatusText(status)}}
}

// Timeout is a delivery that hit the attempt deadline.
func Timeout() Step {
	return Step{Err: &submit.Error{Kind: submit.KindTimeout, Message: "request timed out"}}
}

// ScriptedSubmitter replays steps in order and repeats the last one once the
// script is exhausted. An empty script always succeeds.
type ScriptedSubmitter struct {
	mu    sync.Mutex
	steps []Step
	calls []submit.Request
	// Hook runs before each step is returned, outside the lock.
	Hook func(ctx context.Context, req submit.Request)
}

// NewScriptedSubmitter returns a submitter that replays steps.
func NewScriptedSubmitter(steps ...Step) *ScriptedSubmitter {
	return &ScriptedSubmitter{steps: steps}
}

func (s *ScriptedSubmitter) Submit(ctx context.Context, req submit.Request) (submit.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	step := OK()
	if len(s.steps) > 0 {
		step = s.steps[0]
		if len(s.steps) > 1 {
			s.steps = s.steps[1:]
		}
	}
	hook := s.Hook
	s.mu.Unlock()

	if hook != nil {
		hook(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return submit.Result{}, err
	}
	return step.Result, step.Err
}

// Calls returns a copy of every request received.
func (s *ScriptedSubmitter) Calls() []submit.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]submit.Request, len(s.calls))
	copy(out, s.calls)
	return out
}
