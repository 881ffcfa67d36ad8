package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orpheus-ai/orpheus/pkg/logging"
	"github.com/orpheus-ai/orpheus/pkg/models"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultBootTimeout  = 10 * time.Minute
	pauseGracePeriod    = 30 * time.Second
)

// Lifecycle is the state machine around a Remote:
//
//	idle    --Start-->    starting --ready--> running
//	running --Shutdown--> paused   --Start--> starting
//
// At most one remote operation is in flight at a time.
type Lifecycle struct {
	remote       Remote
	pollInterval time.Duration
	bootTimeout  time.Duration
	inferTimeout time.Duration
	now          func() time.Time
	sleep        func(context.Context, time.Duration) error
	logger       *slog.Logger

	opMu sync.Mutex

	mu             sync.Mutex
	status         models.EndpointStatus
	handle         Handle
	keepAlive      time.Duration
	keepAliveUntil time.Time
	bootDuration   time.Duration
	boots          int
}

// Option customizes a Lifecycle.
type Option func(*Lifecycle)

// WithPollInterval sets the delay between status polls while booting.
func WithPollInterval(d time.Duration) Option {
	return func(l *Lifecycle) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithBootTimeout bounds how long Start waits for the endpoint. 0 disables
// the bound; the caller's context still applies.
func WithBootTimeout(d time.Duration) Option {
	return func(l *Lifecycle) { l.bootTimeout = d }
}

// WithInferTimeout bounds a single inference call. 0 disables the bound.
func WithInferTimeout(d time.Duration) Option {
	return func(l *Lifecycle) { l.inferTimeout = d }
}

// WithClock overrides the clock (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSleeper overrides how poll sleeps are performed (useful for tests).
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(l *Lifecycle) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) { l.logger = logging.OrDiscard(logger) }
}

// NewLifecycle returns an idle lifecycle over remote.
func NewLifecycle(remote Remote, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		remote:       remote,
		pollInterval: defaultPollInterval,
		bootTimeout:  defaultBootTimeout,
		now:          time.Now,
		sleep:        sleepContext,
		logger:       logging.Discard(),
		status:       models.EndpointIdle,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start boots the endpoint and blocks until it reports running, the boot
// timeout elapses, or ctx is done. It is a no-op when already running.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	prev := l.Status()
	if prev == models.EndpointRunning {
		return nil
	}
	l.setStatus(models.EndpointStarting)

	bootCtx := ctx
	if l.bootTimeout > 0 {
		var cancel context.CancelFunc
		bootCtx, cancel = context.WithTimeout(ctx, l.bootTimeout)
		defer cancel()
	}

	started := l.now()
	l.logger.Info("booting endpoint", "from", prev)
	h, err := l.remote.Boot(bootCtx)
	if err != nil {
		l.setStatus(prev)
		return fmt.Errorf("boot endpoint: %w", err)
	}

	h, err = l.awaitReady(bootCtx, h, started)
	if err != nil {
		l.abortBoot(ctx, h, prev)
		return err
	}

	elapsed := l.now().Sub(started)
	l.mu.Lock()
	l.status = models.EndpointRunning
	l.handle = h
	l.bootDuration = elapsed
	l.boots++
	l.mu.Unlock()

	l.logger.Info("endpoint running", "boot_seconds", elapsed.Seconds(), "url", h.URL)
	return nil
}

// EnsureRunning starts the endpoint unless it is already running.
func (l *Lifecycle) EnsureRunning(ctx context.Context) error {
	if l.Status() == models.EndpointRunning {
		return nil
	}
	return l.Start(ctx)
}

func (l *Lifecycle) awaitReady(ctx context.Context, h Handle, started time.Time) (Handle, error) {
	for polls := 1; ; polls++ {
		probe, err := l.remote.Status(ctx, h)
		if err != nil {
			return h, l.bootError(ctx, fmt.Errorf("poll endpoint: %w", err))
		}
		switch probe.Status {
		case RemoteRunning:
			if probe.URL != "" {
				h.URL = probe.URL
			}
			return h, nil
		case RemoteError:
			return h, fmt.Errorf("%w: %s", ErrEndpointFailed, probe.Detail)
		}

		if l.bootTimeout > 0 && l.now().Sub(started) >= l.bootTimeout {
			return h, fmt.Errorf("%w after %s (%d polls)", ErrBootTimeout, l.bootTimeout, polls)
		}
		l.logger.Debug("endpoint not ready", "status", probe.Status, "poll", polls)
		if err := l.sleep(ctx, l.pollInterval); err != nil {
			return h, l.bootError(ctx, err)
		}
	}
}

func (l *Lifecycle) bootError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", ErrBootTimeout, l.bootTimeout, err)
	}
	return err
}

// abortBoot pauses an endpoint that was resumed but never became ready so a
// failed boot does not keep a billed resource running.
func (l *Lifecycle) abortBoot(ctx context.Context, h Handle, prev models.EndpointStatus) {
	pauseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pauseGracePeriod)
	defer cancel()
	if err := l.remote.Pause(pauseCtx, h); err != nil {
		l.logger.Warn("failed to pause endpoint after failed boot", "error", err)
		l.setStatus(prev)
		return
	}
	l.setStatus(models.EndpointPaused)
}

// Infer sends prompt to the running endpoint.
func (l *Lifecycle) Infer(ctx context.Context, prompt string) (string, error) {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.Lock()
	status, h := l.status, l.handle
	l.mu.Unlock()
	if status != models.EndpointRunning {
		return "", ErrNotRunning
	}

	if l.inferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.inferTimeout)
		defer cancel()
	}
	return l.remote.Infer(ctx, h, prompt)
}

// SetKeepAlive keeps the endpoint warm for d from now, and for d after each
// later Touch. d <= 0 clears the window.
func (l *Lifecycle) SetKeepAlive(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d <= 0 {
		l.keepAlive = 0
		l.keepAliveUntil = time.Time{}
		return
	}
	l.keepAlive = d
	l.keepAliveUntil = l.now().Add(d)
	l.logger.Info("keeping endpoint alive", "seconds", d.Seconds())
}

// Touch re-arms the keep-alive window after a successful use.
func (l *Lifecycle) Touch() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.keepAlive > 0 {
		l.keepAliveUntil = l.now().Add(l.keepAlive)
	}
}

// ShouldShutdown reports whether no keep-alive window is outstanding.
func (l *Lifecycle) ShouldShutdown() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keepAliveUntil.IsZero() || l.now().After(l.keepAliveUntil)
}

// Shutdown pauses a running endpoint. It is a no-op in any other state.
func (l *Lifecycle) Shutdown(ctx context.Context) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()

	l.mu.Lock()
	status, h := l.status, l.handle
	l.mu.Unlock()
	if status != models.EndpointRunning {
		return nil
	}

	l.logger.Info("pausing endpoint")
	if err := l.remote.Pause(ctx, h); err != nil {
		return fmt.Errorf("pause endpoint: %w", err)
	}
	l.setStatus(models.EndpointPaused)
	return nil
}

// Status returns the current lifecycle status.
func (l *Lifecycle) Status() models.EndpointStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// State returns a snapshot of the lifecycle.
func (l *Lifecycle) State() models.EndpointState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := models.EndpointState{Status: l.status, Boots: l.boots}
	if !l.keepAliveUntil.IsZero() {
		until := l.keepAliveUntil
		st.KeepAliveUntil = &until
	}
	if l.boots > 0 {
		d := l.bootDuration
		st.BootDuration = &d
	}
	return st
}

func (l *Lifecycle) setStatus(s models.EndpointStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = s
}
