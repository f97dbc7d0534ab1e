package turn

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns a now func that advances by step on every call after
// the first.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	calls := 0
	return func() time.Time {
		t := start.Add(time.Duration(calls) * step)
		calls++
		return t
	}
}

func TestBudget_CheckWithinLimit(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBudgetWithClock(time.Minute, fakeClock(start, time.Second))

	require.NoError(t, b.Check()) // 1s elapsed
	require.NoError(t, b.Check()) // 2s elapsed
}

func TestBudget_CheckAfterLapse(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBudgetWithClock(time.Second, fakeClock(start, 30*time.Second))

	err := b.Check()
	require.Error(t, err)

	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 30*time.Second, te.Elapsed)
	assert.Equal(t, time.Second, te.Limit)
	assert.Contains(t, err.Error(), "turn budget exceeded")
}

func TestIsTimeout(t *testing.T) {
	te := &TimeoutError{Elapsed: time.Minute, Limit: time.Second}
	assert.True(t, IsTimeout(te))
	assert.True(t, IsTimeout(fmt.Errorf("running turn: %w", te)))
	assert.False(t, IsTimeout(errors.New("some other failure")))
	assert.False(t, IsTimeout(nil))
}

func TestBudget_Elapsed(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBudgetWithClock(time.Minute, fakeClock(start, 5*time.Second))
	assert.Equal(t, 5*time.Second, b.Elapsed())
	assert.Equal(t, 10*time.Second, b.Elapsed())
}
