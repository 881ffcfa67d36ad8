// Package mock provides a scriptable endpoint.Remote and a manual clock for
// tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orpheus-ai/orpheus/pkg/endpoint"
)

// Remote is a mock endpoint.Remote.
type Remote struct {
	mu          sync.Mutex
	url         string
	notReady    int
	pending     int
	bootErr     error
	statusErr   error
	pauseErr    error
	failed      bool
	response    string
	inferErr    error
	inferFunc   func(ctx context.Context, prompt string) (string, error)
	lastPrompt  string
	bootCalls   atomic.Int64
	statusCalls atomic.Int64
	inferCalls  atomic.Int64
	pauseCalls  atomic.Int64
}

var _ endpoint.Remote = (*Remote)(nil)

// Option configures a mock Remote.
type Option func(*Remote)

// New creates a mock remote that becomes ready on the first status poll and
// answers every prompt with a fixed ABC tune.
func New(opts ...Option) *Remote {
	r := &Remote{
		url:      "https://mock.endpoint.local",
		response: "Here is the arrangement:\n\nX:1\nT:Mock\nM:4/4\nL:1/4\nK:C\nC E G c | G E C2 |]\n",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithNotReadyPolls makes each boot report "starting" for n polls before
// reporting running.
func WithNotReadyPolls(n int) Option {
	return func(r *Remote) { r.notReady = n }
}

// WithBootError makes Boot fail.
func WithBootError(err error) Option {
	return func(r *Remote) { r.bootErr = err }
}

// WithStatusError makes Status fail.
func WithStatusError(err error) Option {
	return func(r *Remote) { r.statusErr = err }
}

// WithFailedEndpoint makes Status report a provider-side failure.
func WithFailedEndpoint() Option {
	return func(r *Remote) { r.failed = true }
}

// WithPauseError makes Pause fail.
func WithPauseError(err error) Option {
	return func(r *Remote) { r.pauseErr = err }
}

// WithResponse sets the text returned by Infer.
func WithResponse(text string) Option {
	return func(r *Remote) { r.response = text }
}

// WithInferError makes Infer fail.
func WithInferError(err error) Option {
	return func(r *Remote) { r.inferErr = err }
}

// WithInferFunc sets a custom inference function.
func WithInferFunc(fn func(ctx context.Context, prompt string) (string, error)) Option {
	return func(r *Remote) { r.inferFunc = fn }
}

// Boot implements endpoint.Remote.
func (r *Remote) Boot(_ context.Context) (endpoint.Handle, error) {
	r.bootCalls.Add(1)
	if r.bootErr != nil {
		return endpoint.Handle{}, r.bootErr
	}
	r.mu.Lock()
	r.pending = r.notReady
	r.mu.Unlock()
	return endpoint.Handle{ID: "mock/endpoint"}, nil
}

// Status implements endpoint.Remote.
func (r *Remote) Status(ctx context.Context, _ endpoint.Handle) (endpoint.Probe, error) {
	r.statusCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return endpoint.Probe{}, err
	}
	if r.statusErr != nil {
		return endpoint.Probe{}, r.statusErr
	}
	if r.failed {
		return endpoint.Probe{Status: endpoint.RemoteError, Detail: "mock failure"}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending > 0 {
		r.pending--
		return endpoint.Probe{Status: endpoint.RemoteStarting}, nil
	}
	return endpoint.Probe{Status: endpoint.RemoteRunning, URL: r.url}, nil
}

// Infer implements endpoint.Remote.
func (r *Remote) Infer(ctx context.Context, _ endpoint.Handle, prompt string) (string, error) {
	r.inferCalls.Add(1)
	r.mu.Lock()
	r.lastPrompt = prompt
	r.mu.Unlock()
	if r.inferFunc != nil {
		return r.inferFunc(ctx, prompt)
	}
	if r.inferErr != nil {
		return "", r.inferErr
	}
	return r.response, nil
}

// Pause implements endpoint.Remote.
func (r *Remote) Pause(_ context.Context, _ endpoint.Handle) error {
	r.pauseCalls.Add(1)
	return r.pauseErr
}

// Boots returns the number of Boot calls.
func (r *Remote) Boots() int { return int(r.bootCalls.Load()) }

// StatusCalls returns the number of Status calls.
func (r *Remote) StatusCalls() int { return int(r.statusCalls.Load()) }

// Infers returns the number of Infer calls.
func (r *Remote) Infers() int { return int(r.inferCalls.Load()) }

// Pauses returns the number of Pause calls.
func (r *Remote) Pauses() int { return int(r.pauseCalls.Load()) }

// Calls returns the total number of remote calls of any kind.
func (r *Remote) Calls() int {
	return r.Boots() + r.StatusCalls() + r.Infers() + r.Pauses()
}

// LastPrompt returns the prompt of the most recent Infer call.
func (r *Remote) LastPrompt() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastPrompt
}

// Clock is a manually advanced clock. Sleep advances it instead of blocking.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock set to start.
func NewClock(start time.Time) *Clock {
	return &Clock{t: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Sleep advances the clock by d, honoring cancellation.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}
