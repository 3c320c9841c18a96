package admission

import (
	"errors"
	"fmt"

	"github.com/taskforge/conductor/pkg/concurrency"
)

// ErrQueueDisabled is returned when a limit is hit and the queue
// behavior config has disabled falling back to durable queuing
// (spec §4.6: Rejected). It is never returned directly — every
// rejection is a *LimitReachedError, which matches it via errors.Is
// so callers that only care "was this a disabled-queue rejection" can
// keep checking the sentinel without unwrapping.
var ErrQueueDisabled = errors.New("admission: limit reached and queuing is disabled")

// ErrAlreadyQueued is returned when the session already has a pending
// queue entry.
var ErrAlreadyQueued = errors.New("admission: session already has a pending queue entry")

// LimitReachedError is the concrete payload behind ErrQueueDisabled:
// which ceiling was hit, the current/limit counts it was measured
// against, and (for a per-agent rejection) which executor type —
// spec §2 component 2's GlobalExceeded{current,limit} /
// AgentExceeded{agent,current,limit} tagged results, carried all the
// way to the caller instead of being collapsed into a bare string.
type LimitReachedError struct {
	Global       bool
	ExecutorType string
	Current      uint32
	Limit        uint32
}

func (e *LimitReachedError) Error() string {
	if e.Global {
		return fmt.Sprintf("admission: global limit reached (%d/%d) and queuing is disabled", e.Current, e.Limit)
	}
	return fmt.Sprintf("admission: agent limit reached for %s (%d/%d) and queuing is disabled", e.ExecutorType, e.Current, e.Limit)
}

// Is lets errors.Is(err, ErrQueueDisabled) still match, for callers
// that only need to know the rejection kind, not its detail.
func (e *LimitReachedError) Is(target error) bool {
	return target == ErrQueueDisabled
}

// newLimitReachedError converts a concurrency check's rejection into
// the error type Submit returns.
func newLimitReachedError(result concurrency.CheckResult) error {
	switch result.Kind {
	case concurrency.GlobalLimitExceeded:
		return &LimitReachedError{Global: true, Current: result.Current, Limit: result.Limit}
	case concurrency.AgentLimitExceeded:
		return &LimitReachedError{ExecutorType: result.ExecutorType, Current: result.Current, Limit: result.Limit}
	default:
		return ErrQueueDisabled
	}
}
