package budget

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/orpheus-ai/orpheus/pkg/logging"
	"github.com/orpheus-ai/orpheus/pkg/models"
)

const dateLayout = "2006-01-02"

var (
	// ErrBudgetExceeded is returned when a proposed spend does not fit a tier.
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrCorruptState is returned when the persisted record cannot be trusted.
	ErrCorruptState = errors.New("corrupt budget state")
)

// Ledger gates proposed spend against a session tier and a daily tier and
// records actual spend. The daily tier is persisted; the session tier lives
// for the life of the process.
type Ledger struct {
	mu     sync.Mutex
	path   string
	lock   *flock.Flock
	state  models.BudgetState
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used for date rollover.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logging.OrDiscard(logger) }
}

// WithSessionLimit sets the initial session limit.
func WithSessionLimit(limit float64) Option {
	return func(l *Ledger) { l.state.SessionLimit = limit }
}

// Open loads the ledger stored at path. A missing file yields a fresh
// ledger; a persisted record from an earlier day has its daily spend reset.
func Open(path string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		path:   path,
		lock:   flock.New(path + ".lock"),
		now:    time.Now,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure budget directory: %w", err)
		}
	}

	err := l.withFileLock(func() error {
		rec, exists, err := l.read()
		if err != nil {
			return err
		}
		l.state.LastResetDate = l.today()
		if !exists {
			return nil
		}
		l.state.DailyLimit = rec.DailyBudget
		if rec.LastDate == l.state.LastResetDate {
			l.state.DailySpent = rec.DailyCost
		} else {
			l.logger.Info("daily budget rolled over",
				"last_date", rec.LastDate,
				"previous_daily_cost", rec.DailyCost)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Path returns the location of the persisted record.
func (l *Ledger) Path() string {
	return l.path
}

// CanSpend reports whether estimate fits both tiers. A limit of 0 never
// rejects.
func (l *Ledger) CanSpend(estimate float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return fits(l.state.SessionLimit, l.state.SessionSpent, estimate) &&
		fits(l.state.DailyLimit, l.state.DailySpent, estimate)
}

// Check is CanSpend expressed as an error.
func (l *Ledger) Check(estimate float64) error {
	if !l.CanSpend(estimate) {
		return ErrBudgetExceeded
	}
	return nil
}

func fits(limit, spent, estimate float64) bool {
	return limit <= 0 || spent+estimate <= limit
}

// RecordSpend adds actual to both tiers and persists the daily tier. It
// never refuses a spend for being over a limit. The daily total is re-read
// from disk under the file lock so concurrent processes do not lose updates.
func (l *Ledger) RecordSpend(actual float64) error {
	if actual < 0 || math.IsNaN(actual) || math.IsInf(actual, 0) {
		return fmt.Errorf("record spend: invalid amount %v", actual)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.SessionSpent += actual
	err := l.withFileLock(func() error {
		if err := l.mergeFromDisk(); err != nil {
			return err
		}
		l.state.DailySpent += actual
		return l.write()
	})
	if err != nil {
		return fmt.Errorf("record spend: %w", err)
	}
	l.logger.Debug("spend recorded",
		"amount", actual,
		"session_spent", l.state.SessionSpent,
		"daily_spent", l.state.DailySpent)
	return nil
}

// ResetDaily zeroes the daily spend and persists it.
func (l *Ledger) ResetDaily() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.withFileLock(func() error {
		if err := l.mergeFromDisk(); err != nil {
			return err
		}
		l.state.DailySpent = 0
		return l.write()
	})
}

// ResetSession zeroes the session spend.
func (l *Ledger) ResetSession() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.SessionSpent = 0
}

// SetSessionLimit changes the session tier. 0 means unlimited.
func (l *Ledger) SetSessionLimit(limit float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.SessionLimit = limit
}

// SetDailyLimit changes the daily tier and persists it. 0 means unlimited.
func (l *Ledger) SetDailyLimit(limit float64) error {
	if limit < 0 {
		return fmt.Errorf("daily limit must be >= 0, got %v", limit)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.withFileLock(func() error {
		if err := l.mergeFromDisk(); err != nil {
			return err
		}
		l.state.DailyLimit = limit
		return l.write()
	})
}

// State returns a snapshot of both tiers.
func (l *Ledger) State() models.BudgetState {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.state
}

// Status returns the state with remaining amounts for limited tiers.
func (l *Ledger) Status() models.BudgetStatus {
	st := l.State()
	status := models.BudgetStatus{State: st, File: l.path}
	if st.DailyLimit > 0 {
		r := math.Max(0, st.DailyLimit-st.DailySpent)
		status.DailyRemaining = &r
	}
	if st.SessionLimit > 0 {
		r := math.Max(0, st.SessionLimit-st.SessionSpent)
		status.SessionRemaining = &r
	}
	if _, err := os.Stat(l.path); err == nil {
		status.FileExists = true
	}
	return status
}

func (l *Ledger) today() string {
	return l.now().Format(dateLayout)
}

// rollover resets the daily spend when the calendar date moved on while the
// process was running. Must be called with mu held.
func (l *Ledger) rollover() {
	if today := l.today(); l.state.LastResetDate != today {
		l.state.LastResetDate = today
		l.state.DailySpent = 0
	}
}

// mergeFromDisk refreshes the daily tier from the persisted record. Must be
// called with mu and the file lock held.
func (l *Ledger) mergeFromDisk() error {
	l.rollover()
	rec, exists, err := l.read()
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	l.state.DailyLimit = rec.DailyBudget
	if rec.LastDate == l.state.LastResetDate {
		l.state.DailySpent = rec.DailyCost
	} else {
		l.state.DailySpent = 0
	}
	return nil
}

func (l *Ledger) read() (models.PersistedBudget, bool, error) {
	var rec models.PersistedBudget
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("read budget file: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false, fmt.Errorf("%w: %s: %v", ErrCorruptState, l.path, err)
	}
	if err := validateRecord(rec); err != nil {
		return rec, false, fmt.Errorf("%w: %s: %v", ErrCorruptState, l.path, err)
	}
	return rec, true, nil
}

func validateRecord(rec models.PersistedBudget) error {
	if rec.DailyBudget < 0 || math.IsNaN(rec.DailyBudget) {
		return fmt.Errorf("daily_budget %v", rec.DailyBudget)
	}
	if rec.DailyCost < 0 || math.IsNaN(rec.DailyCost) {
		return fmt.Errorf("daily_cost %v", rec.DailyCost)
	}
	if rec.LastDate != "" {
		if _, err := time.Parse(dateLayout, rec.LastDate); err != nil {
			return fmt.Errorf("last_date %q", rec.LastDate)
		}
	}
	return nil
}

// write persists the daily tier. Must be called with the file lock held.
func (l *Ledger) write() error {
	rec := models.PersistedBudget{
		DailyBudget: l.state.DailyLimit,
		DailyCost:   l.state.DailySpent,
		LastDate:    l.state.LastResetDate,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode budget: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write budget file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace budget file: %w", err)
	}
	return nil
}

func (l *Ledger) withFileLock(fn func() error) error {
	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("lock budget file: %w", err)
	}
	defer func() {
		if err := l.lock.Unlock(); err != nil {
			l.logger.Warn("failed to release budget lock", "error", err)
		}
	}()
	return fn()
}
