package platform

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	StateDone            = "done"
	StateFailed          = "failed"
	StateTerminated      = "terminated"
	StatePartiallyFailed = "partially_failed"
	StateInProgress      = "in_progress"
)

// Terminal reports whether an execution in state will not change again.
func Terminal(state string) bool {
	switch state {
	case StateDone, StateFailed, StateTerminated, StatePartiallyFailed:
		return true
	}
	return false
}

// WaitOnDone polls the execution every interval until it is done.
func WaitOnDone(ctx context.Context, c Client, id string, interval time.Duration) (Execution, error) {
	for {
		e, err := c.DescribeExecution(ctx, id)
		if err != nil {
			return Execution{}, err
		}
		if e.State == StateDone {
			return e, nil
		}
		if Terminal(e.State) {
			return e, errors.Wrapf(ErrExecutionFailed, "%s is %s", id, e.State)
		}
		select {
		case <-ctx.Done():
			return e, ctx.Err()
		case <-time.After(interval):
		}
	}
}
