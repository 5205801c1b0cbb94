package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mbd888/fraudguard/internal/anomaly"
	"github.com/mbd888/fraudguard/internal/device"
	"github.com/mbd888/fraudguard/internal/fingerprint"
	"github.com/mbd888/fraudguard/internal/logging"
	"github.com/mbd888/fraudguard/internal/metrics"
	"github.com/mbd888/fraudguard/internal/takeover"
	"github.com/mbd888/fraudguard/internal/traces"
	"github.com/mbd888/fraudguard/internal/txrisk"
)

// SuspicionResult is the outcome of a quick device reputation check.
type SuspicionResult struct {
	Suspicious bool     `json:"suspicious"`
	Reasons    []string `json:"reasons,omitempty"`
}

// IsSuspiciousDevice reports whether a stored device shows any standing
// suspicion markers.
func (e *Engine) IsSuspiciousDevice(ctx context.Context, hash string) (*SuspicionResult, error) {
	ctx, span := traces.StartSpan(ctx, "engine.IsSuspiciousDevice", traces.FingerprintHash(hash))
	defer span.End()

	fp, err := e.store.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	incidents, err := e.store.CountOpenIncidents(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}

	var reasons []string
	if fp.IsBlocked {
		reasons = append(reasons, "device is blocked")
	}
	if fp.IsBot {
		reasons = append(reasons, "bot characteristics detected")
	}
	if fp.IsEmulator {
		reasons = append(reasons, "emulator characteristics detected")
	}
	if fp.RiskLevel == device.RiskHigh || fp.RiskLevel == device.RiskCritical {
		reasons = append(reasons, fmt.Sprintf("risk level is %s", fp.RiskLevel))
	}
	if incidents > 0 {
		reasons = append(reasons, fmt.Sprintf("%d open fraud incidents", incidents))
	}
	if fp.SuspiciousActivityCount > 0 {
		reasons = append(reasons, "suspicious activity on record")
	}
	return &SuspicionResult{Suspicious: len(reasons) > 0, Reasons: reasons}, nil
}

// DetectAnomalies evaluates a user login against a stored device. timezone
// is the current login's IANA timezone; when set, it is compared against the
// timezone captured at the device's last validation.
func (e *Engine) DetectAnomalies(ctx context.Context, hash, userID, timezone string) (*anomaly.Report, error) {
	ctx, span := traces.StartSpan(ctx, "engine.DetectAnomalies",
		traces.FingerprintHash(hash), traces.UserID(userID))
	defer span.End()

	fp, err := e.store.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	incidents, err := e.store.CountOpenIncidents(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}

	in := anomaly.Input{
		SharedUserCount:  len(fp.AssociatedUserIDs),
		OpenIncidents:    incidents,
		IsBot:            fp.IsBot,
		IsEmulator:       fp.IsEmulator,
		IsBlocked:        fp.IsBlocked,
		FailedLoginCount: fp.FailedLoginCount,
		TimezoneDrift: timezone != "" && fp.Components.Timezone != "" &&
			timezone != fp.Components.Timezone,
	}

	if userID != "" {
		_, err := e.store.GetAssociation(ctx, userID, hash)
		newForUser := errors.Is(err, device.ErrAssociationNotFound)
		if err != nil && !newForUser {
			return nil, fmt.Errorf("get association: %w", err)
		}

		assocs, err := e.store.ListAssociationsForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list associations: %w", err)
		}
		// First-ever device of a brand-new user is not anomalous.
		in.NewDeviceForUser = newForUser && len(assocs) > 0
		in.PlatformMismatch = e.platformMismatch(ctx, fp, assocs)
	}

	report := e.anomaly.Aggregate(in)
	span.SetAttributes(traces.RiskLevel(string(report.Severity)), traces.ThreatScore(report.Score))
	if report.ShouldBlock {
		e.publish(EventDecision, report)
	}
	return &report, nil
}

// platformMismatch compares the device's platform against the most common
// platform across the user's other devices.
func (e *Engine) platformMismatch(ctx context.Context, fp *device.Fingerprint, assocs []*device.Association) bool {
	counts := make(map[fingerprint.Platform]int)
	for _, a := range assocs {
		if a.FingerprintHash == fp.Hash {
			continue
		}
		other, err := e.store.GetByHash(ctx, a.FingerprintHash)
		if err != nil {
			logging.L(ctx).Warn("load associated device", "hash", a.FingerprintHash, "error", err)
			continue
		}
		counts[other.Platform]++
	}
	if len(counts) == 0 {
		return false
	}
	var mode fingerprint.Platform
	best := 0
	for p, n := range counts {
		if n > best {
			mode, best = p, n
		}
	}
	return fp.Platform != mode
}

// DetectAccountTakeover scores a login attempt against the user's history.
func (e *Engine) DetectAccountTakeover(ctx context.Context, attempt takeover.Attempt) (*takeover.Verdict, error) {
	ctx, span := traces.StartSpan(ctx, "engine.DetectAccountTakeover",
		traces.UserID(attempt.UserID), traces.FingerprintHash(attempt.FingerprintHash))
	defer span.End()

	verdict, err := e.takeover.Detect(ctx, attempt)
	if err != nil {
		return nil, err
	}

	// The attempt outcome feeds the device and association login counters,
	// but only for devices the store has already seen: takeover checks may
	// reference hashes that never went through validation.
	if attempt.FingerprintHash != "" {
		_, err := e.store.GetByHash(ctx, attempt.FingerprintHash)
		switch {
		case err == nil:
			if _, _, err := e.registry.RecordUsage(ctx, attempt.UserID, attempt.FingerprintHash,
				attempt.IPAddress, attempt.Location, attempt.Success); err != nil {
				return nil, fmt.Errorf("record usage: %w", err)
			}
		case !errors.Is(err, device.ErrDeviceNotFound):
			return nil, fmt.Errorf("load device: %w", err)
		}
	}

	span.SetAttributes(traces.Action(verdict.Action), traces.ThreatScore(verdict.ThreatScore))
	metrics.TakeoverVerdictsTotal.WithLabelValues(verdict.Action).Inc()
	if verdict.Action == takeover.ActionBlock {
		e.publish(EventDecision, map[string]any{
			"kind":    "takeover",
			"user_id": attempt.UserID,
			"verdict": verdict,
		})
	}
	return verdict, nil
}

// AnalyzeTransaction scores a transaction; the assessment lands in the
// audit store asynchronously.
func (e *Engine) AnalyzeTransaction(ctx context.Context, tx txrisk.Transaction) *txrisk.Assessment {
	ctx, span := traces.StartSpan(ctx, "engine.AnalyzeTransaction", traces.UserID(tx.UserID))
	defer span.End()

	a := e.txScorer.Score(ctx, tx)
	span.SetAttributes(traces.RiskLevel(a.RiskLevel), traces.ThreatScore(a.Score))
	metrics.TransactionAssessmentsTotal.WithLabelValues(a.RiskLevel).Inc()
	if a.Recommendation == txrisk.RecommendDecline {
		e.publish(EventDecision, a)
	}
	return a
}
