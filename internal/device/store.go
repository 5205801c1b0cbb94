package device

import (
	"context"
	"errors"
)

var (
	// ErrDeviceNotFound is returned when no device exists for a hash.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrAssociationNotFound is returned when a user/device pair is unknown.
	ErrAssociationNotFound = errors.New("device association not found")
)

// Store persists devices, user associations and incidents. Implementations
// must return the sentinel errors above for missing records and propagate
// infrastructure failures unmodified.
type Store interface {
	// GetByHash returns the device record for a fingerprint hash.
	GetByHash(ctx context.Context, hash string) (*Fingerprint, error)

	// Upsert creates or fully replaces a device record.
	Upsert(ctx context.Context, fp *Fingerprint) error

	// AppendIP records an IP for the device: dedup, move-to-front,
	// bounded at MaxRecentIPs. The write is atomic per device.
	AppendIP(ctx context.Context, hash, ip string) error

	// AppendUser adds a user to the device's associated set (dedup).
	AppendUser(ctx context.Context, hash, userID string) error

	// RecordLogin atomically bumps the device login counters.
	RecordLogin(ctx context.Context, hash string, success bool) error

	// IncrementSuspicious atomically bumps the suspicious-activity counter.
	IncrementSuspicious(ctx context.Context, hash string) error

	GetAssociation(ctx context.Context, userID, hash string) (*Association, error)
	UpsertAssociation(ctx context.Context, assoc *Association) error
	DeleteAssociation(ctx context.Context, userID, hash string) error
	ListAssociationsForUser(ctx context.Context, userID string) ([]*Association, error)

	// CountOpenIncidents returns the number of unresolved incidents for a
	// device.
	CountOpenIncidents(ctx context.Context, hash string) (int, error)

	// ListOpenIncidents returns unresolved incidents, newest first. An
	// empty hash lists across all devices.
	ListOpenIncidents(ctx context.Context, hash string) ([]*Incident, error)

	CreateIncident(ctx context.Context, inc *Incident) error

	// ResolveIncidents closes all open incidents for a device and returns
	// how many were resolved.
	ResolveIncidents(ctx context.Context, hash string) (int, error)
}
