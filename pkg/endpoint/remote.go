// Package endpoint manages the lifecycle of a remote, pay-per-use inference
// endpoint: boot, poll until ready, keep warm for a window, pause.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RemoteStatus is the provider-reported state of the endpoint.
type RemoteStatus string

const (
	RemoteStarting RemoteStatus = "starting"
	RemoteRunning  RemoteStatus = "running"
	RemotePaused   RemoteStatus = "paused"
	RemoteError    RemoteStatus = "error"
)

// Handle identifies a booted endpoint. URL is the inference address and is
// known once the endpoint reports running.
type Handle struct {
	ID  string
	URL string
}

// Probe is one status observation.
type Probe struct {
	Status RemoteStatus
	URL    string
	Detail string
}

// Remote is the provider capability the lifecycle drives.
type Remote interface {
	// Boot issues the request that brings the endpoint up.
	Boot(ctx context.Context) (Handle, error)
	// Status reports the endpoint's current state.
	Status(ctx context.Context, h Handle) (Probe, error)
	// Infer sends one prompt and returns the raw generated text.
	Infer(ctx context.Context, h Handle, prompt string) (string, error)
	// Pause stops billing for the endpoint.
	Pause(ctx context.Context, h Handle) error
}

var (
	// ErrNotRunning is returned when an operation needs a running endpoint.
	ErrNotRunning = errors.New("endpoint: not running")
	// ErrBootTimeout is returned when the endpoint does not become ready in time.
	ErrBootTimeout = errors.New("endpoint: boot timed out")
	// ErrEndpointFailed is returned when the provider reports a failed endpoint.
	ErrEndpointFailed = errors.New("endpoint: provider reported failure")
)

// HTTPError is returned for non-2xx provider responses.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}
