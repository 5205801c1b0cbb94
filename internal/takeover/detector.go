package takeover

import (
	"context"
	"fmt"
	"time"

	"github.com/mbd888/fraudguard/internal/device"
	"github.com/mbd888/fraudguard/internal/geo"
	"github.com/mbd888/fraudguard/internal/logging"
	"github.com/mbd888/fraudguard/internal/signals"
	"github.com/mbd888/fraudguard/internal/syncutil"
)

// Signal weights.
const (
	weightImpossibleTravel   = 50
	weightNewDevice          = 25
	weightUnfamiliarIP       = 15
	weightUnusualHour        = 10
	weightFailedVelocity     = 35
	weightCredentialStuffing = 60
)

// Travel is impossible when both hold.
const (
	maxPlausibleSpeedKmh = 900.0
	minTravelDistanceKm  = 100.0
)

// Velocity windows.
const (
	failedAttemptWindow = 30 * time.Minute
	failedAttemptLimit  = 3
	stuffingWindow      = 10 * time.Minute
	stuffingIPLimit     = 5
	familiarIPDepth     = 5
)

// IncidentSink receives incidents the detector raises. *device.Registry
// satisfies it.
type IncidentSink interface {
	RaiseIncident(ctx context.Context, hash, userID, incidentType string, severity device.RiskLevel, evidence map[string]any) (*device.Incident, error)
}

// Detector evaluates login attempts against per-user history.
type Detector struct {
	history   History
	incidents IncidentSink

	// Serializes the list-score-append cycle per user so concurrent
	// attempts for the same account see each other in history.
	locks syncutil.ShardedMutex
}

// NewDetector creates a takeover detector. incidents may be nil, in which
// case stuffing detections are scored but not recorded.
func NewDetector(history History, incidents IncidentSink) *Detector {
	return &Detector{history: history, incidents: incidents}
}

// Detect scores an attempt and appends it to the user's history. History
// read/write failures propagate; scoring itself never fails.
func (d *Detector) Detect(ctx context.Context, attempt Attempt) (*Verdict, error) {
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = time.Now()
	}

	unlock := d.locks.Lock(attempt.UserID)
	defer unlock()

	history, err := d.history.List(ctx, attempt.UserID)
	if err != nil {
		return nil, fmt.Errorf("list login history: %w", err)
	}

	v := &Verdict{}
	d.scoreTravel(v, history, attempt)
	d.scoreDevice(v, history, attempt)
	d.scoreIP(v, history, attempt)
	d.scoreHour(v, history, attempt)
	d.scoreFailedVelocity(v, history, attempt)
	stuffing := d.scoreStuffing(v, history, attempt)

	v.Action = action(v.ThreatScore)

	if stuffing && d.incidents != nil {
		_, err := d.incidents.RaiseIncident(ctx, attempt.FingerprintHash, attempt.UserID,
			device.IncidentCredentialStuffing, device.RiskCritical, map[string]any{
				"ip_address":   attempt.IPAddress,
				"threat_score": v.ThreatScore,
			})
		if err != nil {
			// Scoring already happened; surface the write failure but
			// keep the verdict usable for the caller's decision.
			logging.L(ctx).Error("record stuffing incident", "error", err, "user_id", attempt.UserID)
		}
	}

	if err := d.history.Append(ctx, attempt); err != nil {
		return nil, fmt.Errorf("append login history: %w", err)
	}
	return v, nil
}

func (d *Detector) scoreTravel(v *Verdict, history []Attempt, attempt Attempt) {
	if attempt.Location == nil || attempt.Location.IsZero() {
		return
	}
	prev := lastWithLocation(history)
	if prev == nil {
		return
	}
	dist := geo.DistanceKm(*prev.Location, *attempt.Location)
	elapsed := attempt.Timestamp.Sub(prev.Timestamp)
	speed := geo.ImpliedSpeedKmh(dist, elapsed)
	if dist > minTravelDistanceKm && speed > maxPlausibleSpeedKmh {
		add(v, signals.Signal{
			Type:        "impossible_travel",
			Weight:      weightImpossibleTravel,
			Description: fmt.Sprintf("%.0f km in %s implies %.0f km/h", dist, elapsed.Round(time.Second), speed),
		})
	}
}

func (d *Detector) scoreDevice(v *Verdict, history []Attempt, attempt Attempt) {
	if attempt.FingerprintHash == "" {
		return
	}
	for _, h := range history {
		if h.FingerprintHash == attempt.FingerprintHash {
			return
		}
	}
	add(v, signals.Signal{
		Type:        "new_device",
		Weight:      weightNewDevice,
		Description: "device not seen in login history",
	})
}

func (d *Detector) scoreIP(v *Verdict, history []Attempt, attempt Attempt) {
	if attempt.IPAddress == "" {
		return
	}
	// Walk history newest-first collecting the last distinct IPs.
	seen := make(map[string]bool)
	for i := len(history) - 1; i >= 0 && len(seen) < familiarIPDepth; i-- {
		if ip := history[i].IPAddress; ip != "" {
			seen[ip] = true
		}
	}
	if seen[attempt.IPAddress] {
		return
	}
	add(v, signals.Signal{
		Type:        "unfamiliar_ip",
		Weight:      weightUnfamiliarIP,
		Description: "IP not among the recent distinct addresses",
	})
}

func (d *Detector) scoreHour(v *Verdict, history []Attempt, attempt Attempt) {
	counts := make(map[int]int)
	for _, h := range history {
		counts[h.Timestamp.UTC().Hour()]++
	}
	familiar := false
	for _, n := range counts {
		if n >= 2 {
			familiar = true
			break
		}
	}
	// Too little history to establish a pattern.
	if !familiar {
		return
	}
	if counts[attempt.Timestamp.UTC().Hour()] >= 2 {
		return
	}
	add(v, signals.Signal{
		Type:        "unusual_hour",
		Weight:      weightUnusualHour,
		Description: "login outside the user's usual hours",
	})
}

func (d *Detector) scoreFailedVelocity(v *Verdict, history []Attempt, attempt Attempt) {
	cutoff := attempt.Timestamp.Add(-failedAttemptWindow)
	failed := 0
	for _, h := range history {
		if !h.Success && h.Timestamp.After(cutoff) {
			failed++
		}
	}
	if failed >= failedAttemptLimit {
		add(v, signals.Signal{
			Type:        "failed_velocity",
			Weight:      weightFailedVelocity,
			Description: fmt.Sprintf("%d failed attempts in the last %s", failed, failedAttemptWindow),
		})
	}
}

func (d *Detector) scoreStuffing(v *Verdict, history []Attempt, attempt Attempt) bool {
	cutoff := attempt.Timestamp.Add(-stuffingWindow)
	ips := map[string]bool{}
	if attempt.IPAddress != "" {
		ips[attempt.IPAddress] = true
	}
	for _, h := range history {
		if h.IPAddress != "" && h.Timestamp.After(cutoff) {
			ips[h.IPAddress] = true
		}
	}
	if len(ips) < stuffingIPLimit {
		return false
	}
	add(v, signals.Signal{
		Type:        "credential_stuffing",
		Weight:      weightCredentialStuffing,
		Description: fmt.Sprintf("%d distinct IPs in the last %s", len(ips), stuffingWindow),
	})
	return true
}

func add(v *Verdict, s signals.Signal) {
	v.ThreatScore += s.Weight
	v.Signals = append(v.Signals, s)
}

func action(score int) string {
	switch {
	case score >= BlockThreshold:
		return ActionBlock
	case score >= ChallengeThreshold:
		return ActionChallenge
	case score >= MFAThreshold:
		return ActionMFARequired
	default:
		return ActionAllow
	}
}

func lastWithLocation(history []Attempt) *Attempt {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Location != nil && !history[i].Location.IsZero() {
			return &history[i]
		}
	}
	return nil
}
