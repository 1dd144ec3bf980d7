package resilience

import (
	"time"
)

// FromRetryConfig builds a RetryConfig from the configured attempt budget.
func FromRetryConfig(maxAttempts int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	return cfg
}

// FromCircuitConfig builds a CircuitBreakerConfig from configured values.
// Non-positive values keep the defaults.
func FromCircuitConfig(failureThreshold, recoverySecs, halfOpenMaxCalls int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if recoverySecs > 0 {
		cfg.RecoveryTimeout = time.Duration(recoverySecs) * time.Second
	}
	if halfOpenMaxCalls > 0 {
		cfg.HalfOpenMaxCalls = halfOpenMaxCalls
	}
	return cfg
}
