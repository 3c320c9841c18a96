// Package concurrency implements the Admission Checker: a pure
// decision function over ConcurrencyStats and ConcurrencyConfig, plus
// the stats source that reads ConcurrencyStats from execution_process.
package concurrency

import (
	"fmt"

	"github.com/taskforge/conductor/pkg/config"
)

// CheckResultKind is the tag of an admission check's outcome (spec §4.1).
type CheckResultKind int

const (
	// Allowed means the execution may start immediately.
	Allowed CheckResultKind = iota
	// GlobalLimitExceeded means the global concurrency ceiling is hit.
	GlobalLimitExceeded
	// AgentLimitExceeded means the executor-type-specific ceiling is hit.
	AgentLimitExceeded
)

func (k CheckResultKind) String() string {
	switch k {
	case Allowed:
		return "allowed"
	case GlobalLimitExceeded:
		return "global_limit_exceeded"
	case AgentLimitExceeded:
		return "agent_limit_exceeded"
	default:
		return fmt.Sprintf("CheckResultKind(%d)", int(k))
	}
}

// CheckResult is the tagged outcome of an admission check, carrying
// the current/limit counts (and, for an agent rejection, which
// executor type) the decision was measured against, so a caller can
// report why and by how much rather than just which kind of ceiling
// was hit (spec §2 component 2, §7 GlobalExceeded/AgentExceeded).
type CheckResult struct {
	Kind CheckResultKind
	// Current and Limit are only meaningful when Kind != Allowed.
	Current      uint32
	Limit        uint32
	ExecutorType string
}

func (r CheckResult) String() string {
	switch r.Kind {
	case Allowed:
		return "allowed"
	case GlobalLimitExceeded:
		return fmt.Sprintf("global_limit_exceeded(%d/%d)", r.Current, r.Limit)
	case AgentLimitExceeded:
		return fmt.Sprintf("agent_limit_exceeded(%s: %d/%d)", r.ExecutorType, r.Current, r.Limit)
	default:
		return r.Kind.String()
	}
}

// Stats is the minimal view of ConcurrencyStats the checker needs:
// the running count overall and per executor type, at a single
// consistent point in time.
type Stats struct {
	GlobalRunning int
	ForExecutor   int
}

// CheckCanStartExecution decides whether executorType may start a new
// execution given the current stats and configured limits.
//
// Rule order (spec §4.1 invariant): the global limit is checked first
// — a global cap always wins even if the per-agent limit would still
// allow it — then the executor-specific (or, absent an entry,
// global-as-fallback) limit.
func CheckCanStartExecution(cfg config.ConcurrencyConfig, executorType string, stats Stats) CheckResult {
	if cfg.GlobalLimit.Exceeded(uint32(stats.GlobalRunning)) {
		limit, _ := cfg.GlobalLimit.Value()
		return CheckResult{Kind: GlobalLimitExceeded, Current: uint32(stats.GlobalRunning), Limit: limit}
	}

	limit := cfg.LimitForAgent(executorType)
	if limit.Exceeded(uint32(stats.ForExecutor)) {
		n, _ := limit.Value()
		return CheckResult{Kind: AgentLimitExceeded, Current: uint32(stats.ForExecutor), Limit: n, ExecutorType: executorType}
	}

	return CheckResult{Kind: Allowed}
}
