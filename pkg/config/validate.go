package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate rejects configuration values the rest of the system cannot honor.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.BudgetFile) == "" {
		errs = append(errs, errors.New("budget_file must not be empty"))
	}
	if c.Budget.SessionLimit < 0 {
		errs = append(errs, fmt.Errorf("budget.session_limit must be >= 0, got %v", c.Budget.SessionLimit))
	}
	if c.Budget.DailyLimit < 0 {
		errs = append(errs, fmt.Errorf("budget.daily_limit must be >= 0, got %v", c.Budget.DailyLimit))
	}
	if c.Enhancement.EstimatedCost < 0 {
		errs = append(errs, fmt.Errorf("enhancement.estimated_cost must be >= 0, got %v", c.Enhancement.EstimatedCost))
	}
	if c.Enhancement.KeepAlive < 0 {
		errs = append(errs, fmt.Errorf("enhancement.keep_alive must be >= 0, got %v", c.Enhancement.KeepAlive))
	}
	if c.Endpoint.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("endpoint.poll_interval must be > 0, got %v", c.Endpoint.PollInterval))
	}
	if c.Endpoint.BootTimeout < 0 {
		errs = append(errs, fmt.Errorf("endpoint.boot_timeout must be >= 0, got %v", c.Endpoint.BootTimeout))
	}
	if c.Endpoint.InferTimeout < 0 {
		errs = append(errs, fmt.Errorf("endpoint.infer_timeout must be >= 0, got %v", c.Endpoint.InferTimeout))
	}
	for _, cmd := range []struct {
		key  string
		argv []string
	}{
		{"render.score_command", c.Render.ScoreCommand},
		{"render.audio_command", c.Render.AudioCommand},
	} {
		if len(cmd.argv) > 0 && strings.TrimSpace(cmd.argv[0]) == "" {
			errs = append(errs, fmt.Errorf("%s: program must not be empty", cmd.key))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "auto", "text", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unsupported value %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// CheckEndpoint reports what is missing for the remote endpoint to be usable.
// It does not contact the endpoint.
func (c *Config) CheckEndpoint() error {
	var errs []error
	if strings.TrimSpace(c.Endpoint.Name) == "" {
		errs = append(errs, errors.New("endpoint.name is not set"))
	}
	if strings.TrimSpace(c.Endpoint.Namespace) == "" {
		errs = append(errs, errors.New("endpoint.namespace is not set"))
	}
	if strings.TrimSpace(c.Endpoint.APIURL) == "" {
		errs = append(errs, errors.New("endpoint.api_url is not set"))
	}
	if strings.TrimSpace(c.Endpoint.TokenEnvVar) == "" {
		errs = append(errs, errors.New("endpoint.token_env_var is not set"))
	} else if c.Endpoint.Token() == "" {
		errs = append(errs, fmt.Errorf("token not found in $%s", c.Endpoint.TokenEnvVar))
	}
	return errors.Join(errs...)
}

// MaskToken shows only the last four characters of a secret.
func MaskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
