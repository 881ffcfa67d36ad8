package models

import "time"

// EndpointStatus is the lifecycle state of the remote endpoint.
type EndpointStatus string

const (
	EndpointIdle     EndpointStatus = "idle"
	EndpointStarting EndpointStatus = "starting"
	EndpointRunning  EndpointStatus = "running"
	EndpointPaused   EndpointStatus = "paused"
)

// EndpointState is a snapshot of the lifecycle manager.
type EndpointState struct {
	Status         EndpointStatus `json:"status"`
	KeepAliveUntil *time.Time     `json:"keep_alive_until,omitempty"`
	BootDuration   *time.Duration `json:"boot_duration,omitempty"`
	Boots          int            `json:"boots"`
}
