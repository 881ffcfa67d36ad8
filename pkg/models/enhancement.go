package models

import (
	"fmt"
	"time"
)

// DeclineReason classifies why an enhancement attempt produced no content.
type DeclineReason string

const (
	DeclineBudgetExceeded   DeclineReason = "budget_exceeded"
	DeclineNoOutput         DeclineReason = "no_output_generated"
	DeclineExtractionFailed DeclineReason = "no_abc_extracted"
	DeclineRemoteError      DeclineReason = "error"
)

// EnhancementRequest is one attempt's input. It is passed by value.
type EnhancementRequest struct {
	Content       string  `json:"content"`
	CreationName  string  `json:"creation_name"`
	CustomPrompt  string  `json:"custom_prompt,omitempty"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// EnhancementResult is either Enhanced (Enhanced == true, Content set) or
// Declined (Reason set, Detail optional).
type EnhancementResult struct {
	Enhanced       bool          `json:"enhanced"`
	Content        string        `json:"enhanced_abc,omitempty"`
	ProcessingTime time.Duration `json:"processing_time_ns"`
	ActualCost     float64       `json:"cost"`
	Cached         bool          `json:"cached,omitempty"`

	Reason DeclineReason `json:"reason,omitempty"`
	Detail string        `json:"detail,omitempty"`
}

// Enhanced builds a successful result.
func Enhanced(content string, elapsed time.Duration, cost float64) EnhancementResult {
	return EnhancementResult{
		Enhanced:       true,
		Content:        content,
		ProcessingTime: elapsed,
		ActualCost:     cost,
	}
}

// Declined builds a declined result.
func Declined(reason DeclineReason, detail string) EnhancementResult {
	return EnhancementResult{Reason: reason, Detail: detail}
}

// ReasonText renders the decline reason the way it appears in reports,
// e.g. "budget_exceeded" or "error: endpoint failed".
func (r EnhancementResult) ReasonText() string {
	if r.Enhanced {
		return ""
	}
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}
