// Package takeover detects account-takeover attempts by comparing a login
// against the user's recent attempt history: impossible travel, unfamiliar
// devices and IPs, off-hours access, failed-attempt velocity and
// credential-stuffing IP churn.
package takeover

import (
	"context"
	"time"

	"github.com/mbd888/fraudguard/internal/geo"
	"github.com/mbd888/fraudguard/internal/signals"
)

// HistoryCap bounds the per-user attempt history.
const HistoryCap = 100

// Verdict actions, strongest first.
const (
	ActionBlock       = "block"
	ActionChallenge   = "challenge"
	ActionMFARequired = "mfa_required"
	ActionAllow       = "allow"
)

// Threat-score thresholds for the verdict tiers.
const (
	BlockThreshold     = 70
	ChallengeThreshold = 50
	MFAThreshold       = 25
)

// Attempt is one login attempt by a user.
type Attempt struct {
	UserID          string     `json:"userId"`
	IPAddress       string     `json:"ipAddress"`
	FingerprintHash string     `json:"fingerprintHash"`
	Location        *geo.Point `json:"location,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
	Success         bool       `json:"success"`
}

// Verdict is the takeover assessment for one attempt.
type Verdict struct {
	Action      string           `json:"action"`
	ThreatScore int              `json:"threatScore"`
	Signals     []signals.Signal `json:"signals,omitempty"`
}

// History stores per-user login attempts with ring-buffer semantics:
// at most HistoryCap most-recent attempts survive.
type History interface {
	// List returns the user's attempts in chronological order.
	List(ctx context.Context, userID string) ([]Attempt, error)

	// Append records an attempt, evicting the oldest past HistoryCap.
	Append(ctx context.Context, attempt Attempt) error
}
