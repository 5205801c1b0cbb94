package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/fraudguard/internal/geo"
	"github.com/mbd888/fraudguard/internal/idgen"
	"github.com/mbd888/fraudguard/internal/logging"
)

// Registry manages device and association lifecycle on top of a Store:
// usage recording with trust escalation, admin block/unblock/verify, and
// incident writes. All admin mutations fail closed — an error means the
// state change did not happen.
type Registry struct {
	store Store
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Store returns the underlying store.
func (r *Registry) Store() Store { return r.store }

// RecordUsage registers one authentication attempt from a device for a
// user: it creates or updates the association, escalates its trust level,
// bumps the device counters and IP/user sets. Returns the updated
// association and whether it was created by this call.
func (r *Registry) RecordUsage(ctx context.Context, userID, hash, ip string, location *geo.Point, success bool) (*Association, bool, error) {
	assoc, err := r.store.GetAssociation(ctx, userID, hash)
	created := false
	switch {
	case errors.Is(err, ErrAssociationNotFound):
		assoc = &Association{
			UserID:          userID,
			FingerprintHash: hash,
			TrustLevel:      TrustNew,
			FirstSeenAt:     time.Now(),
		}
		created = true
	case err != nil:
		return nil, false, fmt.Errorf("get association: %w", err)
	}

	assoc.UseCount++
	if success {
		assoc.SuccessfulLogins++
	} else {
		assoc.FailedLogins++
	}
	if ip != "" {
		assoc.LastIPAddress = ip
	}
	if location != nil && !location.IsZero() {
		assoc.LastLocation = location
	}
	assoc.TrustLevel = escalate(assoc.TrustLevel, assoc.UseCount, assoc.IsVerified)
	assoc.LastSeenAt = time.Now()

	if err := r.store.UpsertAssociation(ctx, assoc); err != nil {
		return nil, false, fmt.Errorf("upsert association: %w", err)
	}
	if err := r.store.AppendUser(ctx, hash, userID); err != nil {
		return nil, false, fmt.Errorf("append user: %w", err)
	}
	if err := r.store.RecordLogin(ctx, hash, success); err != nil {
		return nil, false, fmt.Errorf("record login: %w", err)
	}
	if ip != "" {
		if err := r.store.AppendIP(ctx, hash, ip); err != nil {
			return nil, false, fmt.Errorf("append ip: %w", err)
		}
	}
	return assoc, created, nil
}

// Block marks a device blocked. A blocked device carries trust score 0 and
// critical risk until unblocked.
func (r *Registry) Block(ctx context.Context, hash, reason string) error {
	fp, err := r.store.GetByHash(ctx, hash)
	if err != nil {
		return err
	}
	fp.IsBlocked = true
	fp.BlockedReason = reason
	fp.TrustScore = 0
	fp.RiskLevel = RiskCritical
	if err := r.store.Upsert(ctx, fp); err != nil {
		return fmt.Errorf("persist block: %w", err)
	}
	logging.L(ctx).Warn("device blocked", "hash", hash, "reason", reason)
	return nil
}

// Unblock clears the block flag and resolves all open incidents for the
// device. The trust score is recomputed on the next validation.
func (r *Registry) Unblock(ctx context.Context, hash string) (int, error) {
	fp, err := r.store.GetByHash(ctx, hash)
	if err != nil {
		return 0, err
	}
	fp.IsBlocked = false
	fp.BlockedReason = ""
	if err := r.store.Upsert(ctx, fp); err != nil {
		return 0, fmt.Errorf("persist unblock: %w", err)
	}
	resolved, err := r.store.ResolveIncidents(ctx, hash)
	if err != nil {
		return 0, fmt.Errorf("resolve incidents: %w", err)
	}
	logging.L(ctx).Info("device unblocked", "hash", hash, "incidents_resolved", resolved)
	return resolved, nil
}

// Verify marks a user/device association verified, which escalates it to
// trusted immediately.
func (r *Registry) Verify(ctx context.Context, userID, hash string) error {
	assoc, err := r.store.GetAssociation(ctx, userID, hash)
	if err != nil {
		return err
	}
	assoc.IsVerified = true
	assoc.TrustLevel = TrustTrusted
	assoc.LastSeenAt = time.Now()
	return r.store.UpsertAssociation(ctx, assoc)
}

// Link associates a device with a user without recording a login. Existing
// associations are left untouched.
func (r *Registry) Link(ctx context.Context, userID, hash string) error {
	if _, err := r.store.GetByHash(ctx, hash); err != nil {
		return err
	}
	_, err := r.store.GetAssociation(ctx, userID, hash)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrAssociationNotFound) {
		return fmt.Errorf("get association: %w", err)
	}
	assoc := &Association{
		UserID:          userID,
		FingerprintHash: hash,
		TrustLevel:      TrustNew,
		FirstSeenAt:     time.Now(),
		LastSeenAt:      time.Now(),
	}
	if err := r.store.UpsertAssociation(ctx, assoc); err != nil {
		return fmt.Errorf("upsert association: %w", err)
	}
	return r.store.AppendUser(ctx, hash, userID)
}

// Remove deletes a user/device association ("remove trusted device").
func (r *Registry) Remove(ctx context.Context, userID, hash string) error {
	return r.store.DeleteAssociation(ctx, userID, hash)
}

// RecordSuspicious bumps the suspicious-activity counter and raises an
// open incident against the device.
func (r *Registry) RecordSuspicious(ctx context.Context, hash, userID, reason string) (*Incident, error) {
	if err := r.store.IncrementSuspicious(ctx, hash); err != nil {
		return nil, err
	}
	inc := &Incident{
		ID:              idgen.WithPrefix("inc_"),
		FingerprintHash: hash,
		UserID:          userID,
		Type:            IncidentSuspiciousActivity,
		Severity:        RiskMedium,
		Status:          IncidentOpen,
		Evidence:        map[string]any{"reason": reason},
	}
	if err := r.store.CreateIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	logging.L(ctx).Warn("suspicious activity recorded", "hash", hash, "user_id", userID, "reason", reason)
	return inc, nil
}

// RaiseIncident records an engine-detected incident (takeover, stuffing).
func (r *Registry) RaiseIncident(ctx context.Context, hash, userID, incidentType string, severity RiskLevel, evidence map[string]any) (*Incident, error) {
	inc := &Incident{
		ID:              idgen.WithPrefix("inc_"),
		FingerprintHash: hash,
		UserID:          userID,
		Type:            incidentType,
		Severity:        severity,
		Status:          IncidentOpen,
		Evidence:        evidence,
	}
	if err := r.store.CreateIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}
	return inc, nil
}

// escalate applies the one-way trust ladder. Suspicious and blocked levels
// are sticky: only explicit action moves them.
func escalate(current TrustLevel, useCount int, verified bool) TrustLevel {
	if current == TrustSuspicious || current == TrustBlocked {
		return current
	}
	switch {
	case verified:
		return TrustTrusted
	case useCount >= TrustedUseCount:
		return TrustTrusted
	case useCount >= RecognizedUseCount:
		if current == TrustTrusted {
			return current
		}
		return TrustRecognized
	default:
		if current != TrustNew {
			return current
		}
		return TrustNew
	}
}
