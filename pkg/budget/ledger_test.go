package budget

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orpheus-ai/orpheus/pkg/models"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func setup(t *testing.T, opts ...Option) (*Ledger, string, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)}
	path := filepath.Join(t.TempDir(), "budget.json")
	l, err := Open(path, append([]Option{WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return l, path, clock
}

func writeRecord(t *testing.T, path string, rec models.PersistedBudget) {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestCanSpendSessionBoundary(t *testing.T) {
	cases := []struct {
		name     string
		limit    float64
		spent    float64
		estimate float64
		want     bool
	}{
		{"under", 1.0, 0.2, 0.5, true},
		{"exactly at limit", 1.0, 0.5, 0.5, true},
		{"over", 1.0, 0.6, 0.5, false},
		{"estimate alone over", 0.05, 0, 0.10, false},
		{"zero limit is unlimited", 0, 1000, 1000, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _, _ := setup(t, WithSessionLimit(tc.limit))
			l.state.SessionSpent = tc.spent
			// Daily spend far above the session values must not influence
			// the session decision while the daily tier is unlimited.
			l.state.DailySpent = 1e6
			assert.Equal(t, tc.want, l.CanSpend(tc.estimate))
		})
	}
}

func TestCanSpendDailyBoundary(t *testing.T) {
	cases := []struct {
		name     string
		limit    float64
		spent    float64
		estimate float64
		want     bool
	}{
		{"under", 2.0, 1.0, 0.5, true},
		{"exactly at limit", 2.0, 1.5, 0.5, true},
		{"over", 2.0, 1.9, 0.5, false},
		{"zero limit is unlimited", 0, 50, 50, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l, _, _ := setup(t)
			require.NoError(t, l.SetDailyLimit(tc.limit))
			l.state.DailySpent = tc.spent
			l.state.SessionSpent = 1e6
			assert.Equal(t, tc.want, l.CanSpend(tc.estimate))
		})
	}
}

func TestZeroLimitsNeverReject(t *testing.T) {
	l, _, _ := setup(t)
	for _, estimate := range []float64{0, 0.01, 1, 1e9} {
		assert.True(t, l.CanSpend(estimate), "estimate %v", estimate)
		assert.NoError(t, l.Check(estimate))
	}
}

func TestCheckReturnsErrBudgetExceeded(t *testing.T) {
	l, _, _ := setup(t, WithSessionLimit(0.05))
	err := l.Check(0.10)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestRecordSpendAccumulatesAndPersists(t *testing.T) {
	l, path, clock := setup(t)
	require.NoError(t, l.SetDailyLimit(3))

	require.NoError(t, l.RecordSpend(0.25))
	require.NoError(t, l.RecordSpend(0.5))

	st := l.State()
	assert.InDelta(t, 0.75, st.SessionSpent, 1e-9)
	assert.InDelta(t, 0.75, st.DailySpent, 1e-9)

	reloaded, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	rs := reloaded.State()
	assert.InDelta(t, 0.75, rs.DailySpent, 1e-9)
	assert.Equal(t, 3.0, rs.DailyLimit)
	assert.Zero(t, rs.SessionSpent, "session spend is not persisted")

	var rec models.PersistedBudget
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "2026-03-14", rec.LastDate)
}

func TestRecordSpendIgnoresLimits(t *testing.T) {
	l, _, _ := setup(t, WithSessionLimit(0.10))
	require.NoError(t, l.RecordSpend(0.30))
	assert.InDelta(t, 0.30, l.State().SessionSpent, 1e-9)
	assert.False(t, l.CanSpend(0))
}

func TestRecordSpendRejectsNegative(t *testing.T) {
	l, _, _ := setup(t)
	assert.Error(t, l.RecordSpend(-1))
	assert.Zero(t, l.State().SessionSpent)
}

func TestLoadResetsStaleDailyCost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.json")
	writeRecord(t, path, models.PersistedBudget{DailyBudget: 5, DailyCost: 4.5, LastDate: "2026-03-13"})

	clock := &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)}
	l, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)

	st := l.State()
	assert.Zero(t, st.DailySpent)
	assert.Equal(t, 5.0, st.DailyLimit, "daily budget survives the rollover")
	assert.Equal(t, "2026-03-14", st.LastResetDate)
}

func TestLoadKeepsSameDayCost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.json")
	writeRecord(t, path, models.PersistedBudget{DailyBudget: 5, DailyCost: 4.5, LastDate: "2026-03-14"})

	clock := &fakeClock{t: time.Date(2026, 3, 14, 23, 0, 0, 0, time.Local)}
	l, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	assert.InDelta(t, 4.5, l.State().DailySpent, 1e-9)
	assert.False(t, l.CanSpend(1))
}

func TestRolloverWhileRunning(t *testing.T) {
	l, _, clock := setup(t)
	require.NoError(t, l.SetDailyLimit(1))
	require.NoError(t, l.RecordSpend(0.9))
	assert.False(t, l.CanSpend(0.2))

	clock.Advance(24 * time.Hour)
	assert.True(t, l.CanSpend(0.2))
	assert.Zero(t, l.State().DailySpent)
}

func TestOpenRejectsCorruptState(t *testing.T) {
	cases := map[string]string{
		"malformed json":  `{"daily_budget": `,
		"negative cost":   `{"daily_budget": 1, "daily_cost": -2, "last_date": "2026-03-14"}`,
		"bad date":        `{"daily_budget": 1, "daily_cost": 0, "last_date": "yesterday"}`,
		"negative budget": `{"daily_budget": -1, "daily_cost": 0, "last_date": "2026-03-14"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "budget.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := Open(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCorruptState), "got %v", err)
		})
	}
}

func TestResets(t *testing.T) {
	l, path, clock := setup(t)
	require.NoError(t, l.RecordSpend(0.4))

	l.ResetSession()
	assert.Zero(t, l.State().SessionSpent)
	assert.InDelta(t, 0.4, l.State().DailySpent, 1e-9)

	require.NoError(t, l.ResetDaily())
	assert.Zero(t, l.State().DailySpent)

	reloaded, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	assert.Zero(t, reloaded.State().DailySpent)
}

func TestConcurrentLedgersDoNotLoseUpdates(t *testing.T) {
	l1, path, clock := setup(t)
	l2, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); assert.NoError(t, l1.RecordSpend(0.01)) }()
		go func() { defer wg.Done(); assert.NoError(t, l2.RecordSpend(0.01)) }()
	}
	wg.Wait()

	reloaded, err := Open(path, WithClock(clock.Now))
	require.NoError(t, err)
	assert.InDelta(t, 0.40, reloaded.State().DailySpent, 1e-9)
	assert.InDelta(t, 0.20, l1.State().SessionSpent, 1e-9)
}

func TestStatus(t *testing.T) {
	l, path, _ := setup(t, WithSessionLimit(1))
	status := l.Status()
	assert.False(t, status.FileExists)
	assert.Nil(t, status.DailyRemaining)
	require.NotNil(t, status.SessionRemaining)
	assert.Equal(t, 1.0, *status.SessionRemaining)

	require.NoError(t, l.SetDailyLimit(2))
	require.NoError(t, l.RecordSpend(0.5))
	status = l.Status()
	assert.True(t, status.FileExists)
	assert.Equal(t, path, status.File)
	require.NotNil(t, status.DailyRemaining)
	assert.InDelta(t, 1.5, *status.DailyRemaining, 1e-9)
	assert.InDelta(t, 0.5, *status.SessionRemaining, 1e-9)
}
