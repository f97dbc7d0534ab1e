package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/turn"
)

type mockRunner struct {
	calls    []string
	staleFor time.Duration
	err      error
	outcome  *turn.Outcome
}

func (m *mockRunner) MaybeRunBootstrapAnalysis(_ context.Context, userID string, staleFor time.Duration) (*turn.Outcome, error) {
	m.calls = append(m.calls, userID)
	m.staleFor = staleFor
	if m.err != nil {
		return nil, m.err
	}
	return m.outcome, nil
}

type mockUserSource struct {
	users []string
	err   error
	since time.Time
}

func (m *mockUserSource) ListRecentlyActiveUsers(_ context.Context, since time.Time) ([]string, error) {
	m.since = since
	return m.users, m.err
}

func TestRegister(t *testing.T) {
	s := NewScheduler(&mockRunner{}, &mockUserSource{}, time.Minute)
	require.NoError(t, s.Register("*/5 * * * *"))
	assert.Equal(t, 1, s.Entries())
}

func TestRegister_DefaultExpression(t *testing.T) {
	s := NewScheduler(&mockRunner{}, &mockUserSource{}, time.Minute)
	require.NoError(t, s.Register(""))
	assert.Equal(t, 1, s.Entries())
}

func TestRegister_InvalidExpression(t *testing.T) {
	s := NewScheduler(&mockRunner{}, &mockUserSource{}, time.Minute)
	err := s.Register("not a cron line")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registering bootstrap cron")
	assert.Equal(t, 0, s.Entries())
}

func TestScan_OffersEachActiveUser(t *testing.T) {
	runner := &mockRunner{outcome: &turn.Outcome{TaskID: "t1", Status: store.TaskCompleted}}
	users := &mockUserSource{users: []string{"u1", "u2", "u3"}}
	s := NewScheduler(runner, users, 3*time.Minute)

	s.scan()

	assert.Equal(t, []string{"u1", "u2", "u3"}, runner.calls)
	assert.Equal(t, 3*time.Minute, runner.staleFor)
	assert.WithinDuration(t, time.Now().Add(-ActiveUserLookback), users.since, time.Minute)
}

func TestScan_UserFailureDoesNotStopScan(t *testing.T) {
	runner := &mockRunner{err: errors.New("refresh failed")}
	users := &mockUserSource{users: []string{"u1", "u2"}}
	s := NewScheduler(runner, users, time.Minute)

	s.scan()

	// Both users are still attempted.
	assert.Equal(t, []string{"u1", "u2"}, runner.calls)
}

func TestScan_ListFailureAborts(t *testing.T) {
	runner := &mockRunner{}
	users := &mockUserSource{err: errors.New("db closed")}
	s := NewScheduler(runner, users, time.Minute)

	s.scan()

	assert.Empty(t, runner.calls)
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(&mockRunner{}, &mockUserSource{}, time.Minute)
	require.NoError(t, s.Register(DefaultCron))
	s.Start()
	s.Stop()
}
