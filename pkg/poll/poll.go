// The poll package implements the bounded-attempt polling primitive that
// drives every wait in the power-cycling loop. A single Until() call keeps
// re-checking a condition until all required entities satisfy it, or until
// the attempt budget runs out.
package poll

import (
	"fmt"
	"time"
)

// CheckFunc reports how many entities currently satisfy the condition and
// how many are required in total. Errors encountered while checking (slow
// PDU command, unreachable node) are expected to be absorbed by returning
// a lower satisfied count rather than surfaced here.
type CheckFunc func() (satisfied int, required int)

// ActionFunc is a corrective action re-run before each re-check, e.g.
// resending a power command to the managed ports.
type ActionFunc func()

// Options control a single Until() invocation. Each call site provides its
// own (delay, attempts) tuple.
type Options struct {
	// WarmUp is slept once before the first check. Zero skips it.
	WarmUp time.Duration
	// Delay is slept between a failed check and the next corrective
	// action + re-check.
	Delay time.Duration
	// MaxAttempts is the total number of checks performed before giving
	// up. Must be >= 1.
	MaxAttempts int
	// Correct, if non-nil, runs before every re-check (attempts 2..n).
	// It never runs when the first check already succeeds.
	Correct ActionFunc
}

// ThresholdError is returned when the attempt budget is exhausted without
// every required entity reaching the target condition. It carries the
// last observed satisfied count for diagnostics.
type ThresholdError struct {
	Satisfied int
	Required  int
	Attempts  int
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("threshold exceeded after %d attempts: %d/%d satisfied",
		e.Attempts, e.Satisfied, e.Required)
}

// Until repeatedly evaluates check until it reports full satisfaction.
//
// The first check runs immediately after the optional warm-up delay, so a
// condition that already holds succeeds on attempt 1 with zero corrective
// actions. Otherwise each further attempt sleeps opts.Delay, runs the
// corrective action, and re-checks. Returns the number of attempts used,
// and a *ThresholdError once opts.MaxAttempts checks have all failed.
func Until(check CheckFunc, opts Options) (int, error) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.WarmUp > 0 {
		time.Sleep(opts.WarmUp)
	}

	satisfied, required := check()
	if satisfied == required {
		return 1, nil
	}
	for attempt := 2; attempt <= opts.MaxAttempts; attempt++ {
		time.Sleep(opts.Delay)
		if opts.Correct != nil {
			opts.Correct()
		}
		satisfied, required = check()
		if satisfied == required {
			return attempt, nil
		}
	}
	return opts.MaxAttempts, &ThresholdError{
		Satisfied: satisfied,
		Required:  required,
		Attempts:  opts.MaxAttempts,
	}
}
