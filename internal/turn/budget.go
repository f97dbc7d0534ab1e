package turn

import (
	"errors"
	"fmt"
	"time"
)

// ErrCodeBudgetExceeded is the fixed error code persisted on tasks that hit
// the wall-clock budget.
const ErrCodeBudgetExceeded = "TURN_BUDGET_EXCEEDED"

// Apology is the fixed user-visible reply for turns that exceed their
// budget.
const Apology = "Sorry, I ran out of time working on that. Please try again."

// TimeoutError is the distinguished fault raised at budget checkpoints.
type TimeoutError struct {
	Elapsed time.Duration
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("turn budget exceeded: %s elapsed of %s allowed", e.Elapsed.Round(time.Millisecond), e.Limit)
}

// IsTimeout reports whether err is (or wraps) a budget timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Budget enforces a cooperative wall-clock ceiling. It is consulted at
// checkpoints and never preempts in-flight work: a tool call or provider
// request already running when the budget lapses finishes normally, and the
// overrun is only detected at the next Check. The ceiling is soft.
type Budget struct {
	start time.Time
	limit time.Duration
	now   func() time.Time
}

// NewBudget starts a budget clock with the given limit.
func NewBudget(limit time.Duration) *Budget {
	return NewBudgetWithClock(limit, time.Now)
}

// NewBudgetWithClock injects the clock, for tests.
func NewBudgetWithClock(limit time.Duration, now func() time.Time) *Budget {
	return &Budget{start: now(), limit: limit, now: now}
}

// Check returns a *TimeoutError once the elapsed time passes the limit.
func (b *Budget) Check() error {
	elapsed := b.now().Sub(b.start)
	if elapsed > b.limit {
		return &TimeoutError{Elapsed: elapsed, Limit: b.limit}
	}
	return nil
}

// Elapsed reports time spent since the budget started.
func (b *Budget) Elapsed() time.Duration {
	return b.now().Sub(b.start)
}
