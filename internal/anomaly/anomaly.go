// Package anomaly aggregates per-login anomaly signals into a severity
// tier and the enforcement flags derived from it.
package anomaly

import (
	"github.com/mbd888/fraudguard/internal/device"
	"github.com/mbd888/fraudguard/internal/signals"
)

const (
	weightNewDevice        = 25
	weightSharedDevice     = 35
	weightOpenIncident     = 50
	weightPlatformMismatch = 10
	weightTimezoneDrift    = 15
	weightBot              = 60
	weightEmulator         = 40
	weightBlockedDevice    = 100
	weightFailedLogins     = 30

	sharedUserLimit  = 5
	failedLoginLimit = 10
)

// Severity thresholds.
const (
	CriticalThreshold     = 80
	HighThreshold         = 50
	MediumThreshold       = 25
	BlockThreshold        = 80
	MFAThreshold          = 40
	VerificationThreshold = 25
)

// Input carries the per-login facts the aggregator scores.
type Input struct {
	// NewDeviceForUser is set when an established user logs in from a
	// device they have never used. First-ever devices of brand-new users
	// do not count.
	NewDeviceForUser bool

	SharedUserCount  int
	OpenIncidents    int
	PlatformMismatch bool
	TimezoneDrift    bool
	IsBot            bool
	IsEmulator       bool
	IsBlocked        bool
	FailedLoginCount int
}

// Report is the aggregated anomaly outcome.
type Report struct {
	Score               int              `json:"score"`
	Severity            device.RiskLevel `json:"severity"`
	Anomalies           []signals.Signal `json:"anomalies,omitempty"`
	ShouldBlock         bool             `json:"shouldBlock"`
	RequireMFA          bool             `json:"requireMfa"`
	RequireVerification bool             `json:"requireVerification"`
}

// Aggregator scores anomaly inputs. Stateless.
type Aggregator struct{}

func NewAggregator() *Aggregator { return &Aggregator{} }

// Aggregate combines the input facts into a scored report.
func (a *Aggregator) Aggregate(in Input) Report {
	var r Report

	if in.NewDeviceForUser {
		r.add("new_device", weightNewDevice, "established user on an unseen device")
	}
	if in.SharedUserCount > sharedUserLimit {
		r.add("shared_device", weightSharedDevice, "device shared by more than 5 users")
	}
	if in.OpenIncidents > 0 {
		r.add("open_incident", weightOpenIncident, "device has unresolved fraud incidents")
	}
	if in.PlatformMismatch {
		r.add("platform_mismatch", weightPlatformMismatch, "platform differs from the user's usual one")
	}
	if in.TimezoneDrift {
		r.add("timezone_drift", weightTimezoneDrift, "timezone changed since the device was last seen")
	}
	if in.IsBot {
		r.add("bot_detected", weightBot, "device flagged as a bot")
	}
	if in.IsEmulator {
		r.add("emulator_detected", weightEmulator, "device flagged as an emulator")
	}
	if in.IsBlocked {
		r.add("blocked_device", weightBlockedDevice, "device is blocked")
	}
	if in.FailedLoginCount > failedLoginLimit {
		r.add("failed_logins", weightFailedLogins, "device has more than 10 failed logins")
	}

	r.Severity = severity(r.Score)
	r.ShouldBlock = r.Score >= BlockThreshold
	r.RequireMFA = r.Score >= MFAThreshold
	r.RequireVerification = r.Score >= VerificationThreshold
	return r
}

func (r *Report) add(signalType string, weight int, desc string) {
	r.Score += weight
	r.Anomalies = append(r.Anomalies, signals.Signal{Type: signalType, Weight: weight, Description: desc})
}

func severity(score int) device.RiskLevel {
	switch {
	case score >= CriticalThreshold:
		return device.RiskCritical
	case score >= HighThreshold:
		return device.RiskHigh
	case score >= MediumThreshold:
		return device.RiskMedium
	default:
		return device.RiskLow
	}
}
