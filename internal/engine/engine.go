// Package engine is the caller-facing facade over the scoring pipeline:
// fingerprint validation, trust scoring, anomaly detection, account
// takeover checks, transaction assessment and the admin device lifecycle.
package engine

import (
	"context"

	"github.com/mbd888/fraudguard/internal/anomaly"
	"github.com/mbd888/fraudguard/internal/device"
	"github.com/mbd888/fraudguard/internal/metrics"
	"github.com/mbd888/fraudguard/internal/signals"
	"github.com/mbd888/fraudguard/internal/takeover"
	"github.com/mbd888/fraudguard/internal/traces"
	"github.com/mbd888/fraudguard/internal/trust"
	"github.com/mbd888/fraudguard/internal/txrisk"
)

// Publisher receives risk events for the realtime feed. The websocket hub
// implements it; a nil publisher disables the feed.
type Publisher interface {
	Publish(eventType string, payload any)
}

// Event types published to the realtime feed.
const (
	EventDecision      = "decision"
	EventIncident      = "incident"
	EventDeviceBlocked = "device_blocked"
)

// Config wires the engine's collaborators.
type Config struct {
	Store   device.Store
	History takeover.History
	TxStore txrisk.Store
	Events  Publisher
}

// Engine coordinates the detectors, calculator and stores.
type Engine struct {
	store    device.Store
	registry *device.Registry
	bots     *signals.BotDetector
	emus     *signals.EmulatorDetector
	trust    *trust.Calculator
	takeover *takeover.Detector
	txScorer *txrisk.Scorer
	txAudit  txrisk.Store
	anomaly  *anomaly.Aggregator
	events   Publisher
}

// New creates an engine over the given stores.
func New(cfg Config) *Engine {
	registry := device.NewRegistry(cfg.Store)
	return &Engine{
		store:    cfg.Store,
		registry: registry,
		bots:     signals.NewBotDetector(),
		emus:     signals.NewEmulatorDetector(),
		trust:    trust.NewCalculator(),
		takeover: takeover.NewDetector(cfg.History, registry),
		txScorer: txrisk.NewScorer(cfg.TxStore),
		txAudit:  cfg.TxStore,
		anomaly:  anomaly.NewAggregator(),
		events:   cfg.Events,
	}
}

func (e *Engine) publish(eventType string, payload any) {
	if e.events != nil {
		e.events.Publish(eventType, payload)
	}
}

// BlockDevice blocks a device and announces it on the realtime feed.
func (e *Engine) BlockDevice(ctx context.Context, hash, reason string) error {
	ctx, span := traces.StartSpan(ctx, "engine.BlockDevice", traces.FingerprintHash(hash))
	defer span.End()

	if err := e.registry.Block(ctx, hash, reason); err != nil {
		return err
	}
	metrics.BlockedDevicesTotal.Inc()
	e.publish(EventDeviceBlocked, map[string]any{"fingerprint_hash": hash, "reason": reason})
	return nil
}

// UnblockDevice clears a block and resolves the device's open incidents.
func (e *Engine) UnblockDevice(ctx context.Context, hash string) (int, error) {
	ctx, span := traces.StartSpan(ctx, "engine.UnblockDevice", traces.FingerprintHash(hash))
	defer span.End()
	return e.registry.Unblock(ctx, hash)
}

// VerifyDevice marks a user's device verified (escalates to trusted).
func (e *Engine) VerifyDevice(ctx context.Context, userID, hash string) error {
	ctx, span := traces.StartSpan(ctx, "engine.VerifyDevice",
		traces.UserID(userID), traces.FingerprintHash(hash))
	defer span.End()
	return e.registry.Verify(ctx, userID, hash)
}

// LinkDeviceToUser associates a device with a user without a login.
func (e *Engine) LinkDeviceToUser(ctx context.Context, userID, hash string) error {
	ctx, span := traces.StartSpan(ctx, "engine.LinkDeviceToUser",
		traces.UserID(userID), traces.FingerprintHash(hash))
	defer span.End()
	return e.registry.Link(ctx, userID, hash)
}

// RemoveUserDevice deletes a user/device association.
func (e *Engine) RemoveUserDevice(ctx context.Context, userID, hash string) error {
	ctx, span := traces.StartSpan(ctx, "engine.RemoveUserDevice",
		traces.UserID(userID), traces.FingerprintHash(hash))
	defer span.End()
	return e.registry.Remove(ctx, userID, hash)
}

// RecordSuspiciousActivity bumps the device's suspicion counter and raises
// an incident.
func (e *Engine) RecordSuspiciousActivity(ctx context.Context, hash, userID, reason string) (*device.Incident, error) {
	ctx, span := traces.StartSpan(ctx, "engine.RecordSuspiciousActivity",
		traces.FingerprintHash(hash), traces.UserID(userID))
	defer span.End()

	inc, err := e.registry.RecordSuspicious(ctx, hash, userID, reason)
	if err != nil {
		return nil, err
	}
	metrics.IncidentsTotal.WithLabelValues(inc.Type).Inc()
	e.publish(EventIncident, inc)
	return inc, nil
}

// GetDevice returns the stored device record.
func (e *Engine) GetDevice(ctx context.Context, hash string) (*device.Fingerprint, error) {
	return e.store.GetByHash(ctx, hash)
}

// ListUserDevices returns a user's device associations, newest first.
func (e *Engine) ListUserDevices(ctx context.Context, userID string) ([]*device.Association, error) {
	return e.store.ListAssociationsForUser(ctx, userID)
}

// ListOpenIncidents returns open incidents, optionally scoped to a device.
func (e *Engine) ListOpenIncidents(ctx context.Context, hash string) ([]*device.Incident, error) {
	return e.store.ListOpenIncidents(ctx, hash)
}

// ListTransactionAssessments returns a user's assessment audit trail.
func (e *Engine) ListTransactionAssessments(ctx context.Context, userID string, limit int) ([]*txrisk.Assessment, error) {
	if e.txAudit == nil {
		return nil, nil
	}
	return e.txAudit.ListForUser(ctx, userID, limit)
}
