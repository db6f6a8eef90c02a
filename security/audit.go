package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor writes security events to a structured logger. Secrets passed in are
// only ever logged as truncated SHA-256 fingerprints.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Namespace string
	Target    string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event. A nil or disabled Auditor is a no-op.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"namespace", event.Namespace,
		"target", event.Target,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogFetchBlocked logs a URL refused by the outbound fetch policy.
func (a *Auditor) LogFetchBlocked(target, reason string) {
	a.LogEvent(Event{
		Type:   EventSSRFBlocked,
		Target: target,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogFetchRateLimited logs a fetch rejected by the per-host limiter.
func (a *Auditor) LogFetchRateLimited(host string) {
	a.LogEvent(Event{
		Type:   EventFetchRateLimited,
		Target: host,
	})
}

// LogTokenRefreshed logs a successful refresh. The previous refresh token is
// recorded as a fingerprint so rotations can be correlated.
func (a *Auditor) LogTokenRefreshed(namespace, previousRefreshToken string, rotated bool) {
	a.LogEvent(Event{
		Type:      EventTokenRefreshed,
		Namespace: namespace,
		Details: map[string]any{
			"refresh_token_fingerprint": hashForLogging(previousRefreshToken),
			"rotated":                   rotated,
		},
	})
}

// LogTokenRefreshFailed logs a failed refresh with its classification.
func (a *Auditor) LogTokenRefreshFailed(namespace, failureKind string) {
	a.LogEvent(Event{
		Type:      EventTokenRefreshFailed,
		Namespace: namespace,
		Details: map[string]any{
			"failure_kind": failureKind,
		},
	})
}

// LogMigrationRequired logs that a legacy credential must be replaced.
func (a *Auditor) LogMigrationRequired(namespace, source string) {
	a.LogEvent(Event{
		Type:      EventLegacyMigrationRequired,
		Namespace: namespace,
		Details: map[string]any{
			"source": source,
		},
	})
}

// LogCredentialsCleared logs that stored token fields were wiped.
func (a *Auditor) LogCredentialsCleared(namespace, reason string) {
	a.LogEvent(Event{
		Type:      EventCredentialsCleared,
		Namespace: namespace,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
