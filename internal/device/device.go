// Package device owns the persistent model of fingerprinted devices: the
// device record itself, its per-user associations, and fraud incidents
// raised against it.
package device

import (
	"time"

	"github.com/mbd888/fraudguard/internal/fingerprint"
	"github.com/mbd888/fraudguard/internal/geo"
)

// RiskLevel classifies a device or incident.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// TrustLevel is the per-user relationship with a device.
type TrustLevel string

const (
	TrustNew        TrustLevel = "new"
	TrustRecognized TrustLevel = "recognized"
	TrustTrusted    TrustLevel = "trusted"
	TrustSuspicious TrustLevel = "suspicious"
	TrustBlocked    TrustLevel = "blocked"
)

// Use-count thresholds for automatic trust escalation. Escalation never
// runs in reverse; downgrades are explicit admin or incident actions.
const (
	RecognizedUseCount = 3
	TrustedUseCount    = 10
)

// MaxRecentIPs bounds the per-device IP history.
const MaxRecentIPs = 20

// Incident types raised by the engine.
const (
	IncidentCredentialStuffing = "credential_stuffing"
	IncidentImpossibleTravel   = "impossible_travel"
	IncidentAccountTakeover    = "account_takeover"
	IncidentSuspiciousActivity = "suspicious_activity"
	IncidentBotDetected        = "bot_detected"
)

// Incident statuses.
const (
	IncidentOpen     = "open"
	IncidentResolved = "resolved"
)

// Fingerprint is the persistent record of one device. Created on first
// validation, mutated on every subsequent one, never hard-deleted.
type Fingerprint struct {
	Hash       string              `json:"hash"`
	Components fingerprint.Payload `json:"components"`

	Platform       fingerprint.Platform   `json:"platform"`
	BrowserFamily  string                 `json:"browserFamily,omitempty"`
	BrowserVersion string                 `json:"browserVersion,omitempty"`
	OSFamily       string                 `json:"osFamily,omitempty"`
	OSVersion      string                 `json:"osVersion,omitempty"`
	DeviceType     fingerprint.DeviceType `json:"deviceType"`

	TrustScore int       `json:"trustScore"`
	RiskLevel  RiskLevel `json:"riskLevel"`

	IsBot              bool    `json:"isBot"`
	BotConfidence      float64 `json:"botConfidence"`
	IsEmulator         bool    `json:"isEmulator"`
	EmulatorConfidence float64 `json:"emulatorConfidence"`

	IsBlocked     bool   `json:"isBlocked"`
	BlockedReason string `json:"blockedReason,omitempty"`

	AssociatedUserIDs []string `json:"associatedUserIds,omitempty"`
	RecentIPs         []string `json:"recentIps,omitempty"`

	LoginCount              int `json:"loginCount"`
	FailedLoginCount        int `json:"failedLoginCount"`
	SuspiciousActivityCount int `json:"suspiciousActivityCount"`

	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// Association links a user to a device they have authenticated from.
type Association struct {
	UserID          string     `json:"userId"`
	FingerprintHash string     `json:"fingerprintHash"`
	TrustLevel      TrustLevel `json:"trustLevel"`
	IsVerified      bool       `json:"isVerified"`

	UseCount         int `json:"useCount"`
	SuccessfulLogins int `json:"successfulLogins"`
	FailedLogins     int `json:"failedLogins"`

	LastIPAddress string     `json:"lastIpAddress,omitempty"`
	LastLocation  *geo.Point `json:"lastLocation,omitempty"`

	FirstSeenAt time.Time `json:"firstSeenAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// Incident is a fraud event raised against a device, optionally tied to a
// user. Incidents stay open until resolved (bulk-resolved on unblock).
type Incident struct {
	ID              string         `json:"id"`
	FingerprintHash string         `json:"fingerprintHash"`
	UserID          string         `json:"userId,omitempty"`
	Type            string         `json:"type"`
	Severity        RiskLevel      `json:"severity"`
	Status          string         `json:"status"`
	Evidence        map[string]any `json:"evidence,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	ResolvedAt      *time.Time     `json:"resolvedAt,omitempty"`
}

// HasUser reports whether the device has been associated with userID.
func (f *Fingerprint) HasUser(userID string) bool {
	for _, id := range f.AssociatedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
