// Package config provides runtime configuration for the scoring service.
package config

import (
	"os"
	"strconv"
	"time"
)

// PlaceholderWebhookURL is used when no webhook is configured. Deliveries to
// it fail and are logged; predictions are unaffected.
const PlaceholderWebhookURL = "https://hooks.invalid/churn-alerts"

// Policy holds the fixed decision thresholds. They are configuration values,
// not learned quantities.
type Policy struct {
	// ChurnWindowDays labels a customer churned once recency exceeds it.
	ChurnWindowDays int
	// AlertProbabilityMin and AlertMonetaryMin gate the high-value alert.
	// Both must be exceeded; the condition is a conjunction.
	AlertProbabilityMin float64
	AlertMonetaryMin    float64
}

// Config holds serving-side configuration knobs.
type Config struct {
	WebhookURL   string
	AlertTimeout time.Duration
	Policy       Policy
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatenv(key string, def float64) float64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		ChurnWindowDays:     90,
		AlertProbabilityMin: 0.75,
		AlertMonetaryMin:    1000,
	}
}

// Load collects configuration from environment with defaults.
func Load() Config {
	return Config{
		WebhookURL:   getenv("CHURN_ALERT_WEBHOOK_URL", PlaceholderWebhookURL),
		AlertTimeout: time.Duration(atoienv("CHURN_ALERT_TIMEOUT_MS", 5000)) * time.Millisecond,
		Policy: Policy{
			ChurnWindowDays:     atoienv("CHURN_WINDOW_DAYS", 90),
			AlertProbabilityMin: floatenv("CHURN_ALERT_PROBABILITY", 0.75),
			AlertMonetaryMin:    floatenv("CHURN_ALERT_MONETARY", 1000),
		},
	}
}
