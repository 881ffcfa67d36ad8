package models

// BudgetState is the spend ledger's view of both budget tiers.
// A limit of 0 means the tier is unlimited.
type BudgetState struct {
	DailyLimit    float64 `json:"daily_limit"`
	DailySpent    float64 `json:"daily_spent"`
	SessionLimit  float64 `json:"session_limit"`
	SessionSpent  float64 `json:"session_spent"`
	LastResetDate string  `json:"last_reset_date"` // YYYY-MM-DD
}

// PersistedBudget is the on-disk budget record.
type PersistedBudget struct {
	DailyBudget float64 `json:"daily_budget"`
	DailyCost   float64 `json:"daily_cost"`
	LastDate    string  `json:"last_date"`
}

// BudgetStatus shows current spend against both tiers.
type BudgetStatus struct {
	State            BudgetState `json:"state"`
	DailyRemaining   *float64    `json:"daily_remaining,omitempty"`
	SessionRemaining *float64    `json:"session_remaining,omitempty"`
	File             string      `json:"file"`
	FileExists       bool        `json:"file_exists"`
}
