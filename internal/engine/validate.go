package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/fraudguard/internal/anomaly"
	"github.com/mbd888/fraudguard/internal/device"
	"github.com/mbd888/fraudguard/internal/fingerprint"
	"github.com/mbd888/fraudguard/internal/geo"
	"github.com/mbd888/fraudguard/internal/idgen"
	"github.com/mbd888/fraudguard/internal/logging"
	"github.com/mbd888/fraudguard/internal/metrics"
	"github.com/mbd888/fraudguard/internal/signals"
	"github.com/mbd888/fraudguard/internal/traces"
	"github.com/mbd888/fraudguard/internal/trust"
)

// ValidationRequest is one fingerprint validation call.
type ValidationRequest struct {
	Payload   fingerprint.Payload `json:"payload"`
	UserID    string              `json:"userId,omitempty"`
	IPAddress string              `json:"ipAddress,omitempty"`
	Location  *geo.Point          `json:"location,omitempty"`
}

// ValidationResult is the scored outcome of a validation.
type ValidationResult struct {
	ID              string `json:"id"`
	FingerprintHash string `json:"fingerprintHash"`
	IsValid         bool   `json:"isValid"`
	IsNewDevice     bool   `json:"isNewDevice"`

	TrustScore int              `json:"trustScore"`
	RiskLevel  device.RiskLevel `json:"riskLevel"`
	Action     string           `json:"action"`

	IsBot              bool    `json:"isBot"`
	BotConfidence      float64 `json:"botConfidence"`
	IsEmulator         bool    `json:"isEmulator"`
	EmulatorConfidence float64 `json:"emulatorConfidence"`

	Factors  []trust.Factor   `json:"factors,omitempty"`
	Signals  []signals.Signal `json:"signals,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

// ValidateFingerprint runs the full pipeline for one validation: hash,
// parse, detect, score, persist and decide. The device record is created on
// first sight and mutated on every call.
func (e *Engine) ValidateFingerprint(ctx context.Context, req ValidationRequest) (*ValidationResult, error) {
	ctx, span := traces.StartSpan(ctx, "engine.ValidateFingerprint", traces.UserID(req.UserID))
	defer span.End()

	hash := fingerprint.Hash(req.Payload)
	profile := fingerprint.ParseUserAgent(req.Payload.UserAgent, req.Payload.DeclaredPlatform)
	botRes := e.bots.Detect(req.Payload)
	emuRes := e.emus.Detect(req.Payload)

	existing, err := e.store.GetByHash(ctx, hash)
	isNew := false
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		isNew = true
	case err != nil:
		return nil, fmt.Errorf("load device: %w", err)
	}

	result := &ValidationResult{
		ID:                 idgen.WithPrefix("val_"),
		FingerprintHash:    hash,
		IsNewDevice:        isNew,
		IsBot:              botRes.Flagged,
		BotConfidence:      botRes.Confidence,
		IsEmulator:         emuRes.Flagged,
		EmulatorConfidence: emuRes.Confidence,
		Signals:            append(botRes.Signals, emuRes.Signals...),
	}

	in := trust.Input{
		Known:              !isNew,
		BotConfidence:      botRes.Confidence,
		EmulatorConfidence: emuRes.Confidence,
		IsBot:              botRes.Flagged,
		IsEmulator:         emuRes.Flagged,
	}
	if existing != nil {
		in.FirstSeenAt = existing.FirstSeenAt
		in.LoginCount = existing.LoginCount
		in.FailedLoginCount = existing.FailedLoginCount
		in.SuspiciousCount = existing.SuspiciousActivityCount
		in.AssociatedUsers = len(existing.AssociatedUserIDs)

		incidents, err := e.store.CountOpenIncidents(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("count incidents: %w", err)
		}
		in.OpenIncidents = incidents
	}
	if req.UserID != "" && existing != nil {
		assoc, err := e.store.GetAssociation(ctx, req.UserID, hash)
		switch {
		case err == nil:
			in.AssocTrusted = assoc.TrustLevel == device.TrustTrusted
			in.AssocVerified = assoc.IsVerified
			in.UseCount = assoc.UseCount
		case !errors.Is(err, device.ErrAssociationNotFound):
			return nil, fmt.Errorf("get association: %w", err)
		}
	}

	score := e.trust.Calculate(in)
	result.TrustScore = score.Value
	result.RiskLevel = score.RiskLevel
	result.Factors = score.Factors

	if isNew {
		result.Warnings = append(result.Warnings, "New device detected")
	}
	if botRes.Flagged {
		result.Warnings = append(result.Warnings, "Bot characteristics detected")
		metrics.BotDetectionsTotal.WithLabelValues("bot").Inc()
	}
	if emuRes.Flagged {
		result.Warnings = append(result.Warnings, "Emulator characteristics detected")
		metrics.BotDetectionsTotal.WithLabelValues("emulator").Inc()
	}
	if existing != nil && existing.Components.Timezone != "" && req.Payload.Timezone != "" &&
		existing.Components.Timezone != req.Payload.Timezone {
		result.Warnings = append(result.Warnings, "Timezone changed since last seen")
	}

	// A blocked device stays pinned regardless of what the signals say.
	blocked := existing != nil && existing.IsBlocked
	result.IsValid = !blocked
	if blocked {
		result.TrustScore = 0
		result.RiskLevel = device.RiskCritical
		result.Warnings = append(result.Warnings, "Device is blocked")
	}

	fp := &device.Fingerprint{
		Hash:               hash,
		Components:         req.Payload,
		Platform:           profile.Platform,
		BrowserFamily:      profile.BrowserFamily,
		BrowserVersion:     profile.BrowserVersion,
		OSFamily:           profile.OSFamily,
		OSVersion:          profile.OSVersion,
		DeviceType:         profile.DeviceType,
		TrustScore:         result.TrustScore,
		RiskLevel:          result.RiskLevel,
		IsBot:              botRes.Flagged,
		BotConfidence:      botRes.Confidence,
		IsEmulator:         emuRes.Flagged,
		EmulatorConfidence: emuRes.Confidence,
		LastSeenAt:         time.Now(),
	}
	if existing != nil {
		fp.IsBlocked = existing.IsBlocked
		fp.BlockedReason = existing.BlockedReason
		fp.AssociatedUserIDs = existing.AssociatedUserIDs
		fp.RecentIPs = existing.RecentIPs
		fp.LoginCount = existing.LoginCount
		fp.FailedLoginCount = existing.FailedLoginCount
		fp.SuspiciousActivityCount = existing.SuspiciousActivityCount
		fp.FirstSeenAt = existing.FirstSeenAt
	} else {
		fp.FirstSeenAt = time.Now()
	}
	if err := e.store.Upsert(ctx, fp); err != nil {
		return nil, fmt.Errorf("persist device: %w", err)
	}

	if req.UserID != "" {
		if _, _, err := e.registry.RecordUsage(ctx, req.UserID, hash, req.IPAddress, req.Location, true); err != nil {
			return nil, fmt.Errorf("record usage: %w", err)
		}
	} else if req.IPAddress != "" {
		if err := e.store.AppendIP(ctx, hash, req.IPAddress); err != nil {
			return nil, fmt.Errorf("append ip: %w", err)
		}
	}

	result.Action = anomaly.Decide(result.RiskLevel)
	if blocked {
		result.Action = anomaly.ActionBlock
	}

	span.SetAttributes(traces.FingerprintHash(hash),
		traces.RiskLevel(string(result.RiskLevel)), traces.Action(result.Action))
	metrics.ValidationsTotal.WithLabelValues(string(result.RiskLevel)).Inc()
	metrics.DecisionsTotal.WithLabelValues(result.Action).Inc()

	if result.Action == anomaly.ActionBlock || result.Action == anomaly.ActionChallenge {
		e.publish(EventDecision, result)
	}

	logging.L(ctx).Info("fingerprint validated",
		"hash", hash,
		"user_id", req.UserID,
		"new_device", isNew,
		"trust_score", result.TrustScore,
		"risk_level", result.RiskLevel,
		"action", result.Action)
	return result, nil
}

// CalculateTrustScore recomputes the trust score for a stored device,
// using the detector confidences captured at its last validation.
func (e *Engine) CalculateTrustScore(ctx context.Context, hash, userID string) (*trust.Score, error) {
	ctx, span := traces.StartSpan(ctx, "engine.CalculateTrustScore",
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

	in := trust.Input{
		Known:              true,
		FirstSeenAt:        fp.FirstSeenAt,
		LoginCount:         fp.LoginCount,
		FailedLoginCount:   fp.FailedLoginCount,
		SuspiciousCount:    fp.SuspiciousActivityCount,
		AssociatedUsers:    len(fp.AssociatedUserIDs),
		OpenIncidents:      incidents,
		BotConfidence:      fp.BotConfidence,
		EmulatorConfidence: fp.EmulatorConfidence,
		IsBot:              fp.IsBot,
		IsEmulator:         fp.IsEmulator,
	}
	if userID != "" {
		assoc, err := e.store.GetAssociation(ctx, userID, hash)
		switch {
		case err == nil:
			in.AssocTrusted = assoc.TrustLevel == device.TrustTrusted
			in.AssocVerified = assoc.IsVerified
			in.UseCount = assoc.UseCount
		case !errors.Is(err, device.ErrAssociationNotFound):
			return nil, fmt.Errorf("get association: %w", err)
		}
	}

	score := e.trust.Calculate(in)
	if fp.IsBlocked {
		score.Value = 0
		score.RiskLevel = device.RiskCritical
	}
	return &score, nil
}
