package models

import "time"

// AttemptOutcome is the recorded result of one enhancement attempt.
type AttemptOutcome string

const (
	OutcomeEnhanced AttemptOutcome = "enhanced"
	OutcomeDeclined AttemptOutcome = "declined"
	OutcomeCached   AttemptOutcome = "cached"
)

// AttemptRecord is one row of the enhancement history.
type AttemptRecord struct {
	ID            string         `json:"id"`
	CreationName  string         `json:"creation_name"`
	Endpoint      string         `json:"endpoint"`
	Outcome       AttemptOutcome `json:"outcome"`
	Reason        string         `json:"reason,omitempty"`
	EstimatedCost float64        `json:"estimated_cost"`
	ActualCost    float64        `json:"actual_cost"`
	ProcessingMs  int64          `json:"processing_ms"`
	BootMs        int64          `json:"boot_ms"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AttemptSummary aggregates attempts by outcome.
type AttemptSummary struct {
	Outcome      AttemptOutcome `json:"outcome"`
	Count        int            `json:"count"`
	TotalCost    float64        `json:"total_cost"`
	AvgProcessMs int64          `json:"avg_processing_ms"`
}
