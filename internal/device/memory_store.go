package device

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. Used for demos and tests; the
// mutex serializes every mutation so counter updates stay consistent.
type MemoryStore struct {
	mu           sync.RWMutex
	devices      map[string]*Fingerprint
	associations map[string]*Association // key: userID + "\x00" + hash
	incidents    []*Incident
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:      make(map[string]*Fingerprint),
		associations: make(map[string]*Association),
	}
}

func assocKey(userID, hash string) string { return userID + "\x00" + hash }

func (m *MemoryStore) GetByHash(_ context.Context, hash string) (*Fingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fp, ok := m.devices[hash]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return cloneFingerprint(fp), nil
}

func (m *MemoryStore) Upsert(_ context.Context, fp *Fingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := cloneFingerprint(fp)
	if stored.FirstSeenAt.IsZero() {
		stored.FirstSeenAt = time.Now()
	}
	if stored.LastSeenAt.IsZero() {
		stored.LastSeenAt = stored.FirstSeenAt
	}
	m.devices[fp.Hash] = stored
	return nil
}

func (m *MemoryStore) AppendIP(_ context.Context, hash, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.devices[hash]
	if !ok {
		return ErrDeviceNotFound
	}
	fp.RecentIPs = pushFront(fp.RecentIPs, ip, MaxRecentIPs)
	return nil
}

func (m *MemoryStore) AppendUser(_ context.Context, hash, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.devices[hash]
	if !ok {
		return ErrDeviceNotFound
	}
	if !fp.HasUser(userID) {
		fp.AssociatedUserIDs = append(fp.AssociatedUserIDs, userID)
	}
	return nil
}

func (m *MemoryStore) RecordLogin(_ context.Context, hash string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.devices[hash]
	if !ok {
		return ErrDeviceNotFound
	}
	fp.LoginCount++
	if !success {
		fp.FailedLoginCount++
	}
	fp.LastSeenAt = time.Now()
	return nil
}

func (m *MemoryStore) IncrementSuspicious(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.devices[hash]
	if !ok {
		return ErrDeviceNotFound
	}
	fp.SuspiciousActivityCount++
	return nil
}

func (m *MemoryStore) GetAssociation(_ context.Context, userID, hash string) (*Association, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.associations[assocKey(userID, hash)]
	if !ok {
		return nil, ErrAssociationNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) UpsertAssociation(_ context.Context, assoc *Association) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *assoc
	if cp.FirstSeenAt.IsZero() {
		cp.FirstSeenAt = time.Now()
	}
	if cp.LastSeenAt.IsZero() {
		cp.LastSeenAt = cp.FirstSeenAt
	}
	m.associations[assocKey(assoc.UserID, assoc.FingerprintHash)] = &cp
	return nil
}

func (m *MemoryStore) DeleteAssociation(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := assocKey(userID, hash)
	if _, ok := m.associations[key]; !ok {
		return ErrAssociationNotFound
	}
	delete(m.associations, key)
	return nil
}

func (m *MemoryStore) ListAssociationsForUser(_ context.Context, userID string) ([]*Association, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Association
	for _, a := range m.associations {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out, nil
}

func (m *MemoryStore) CountOpenIncidents(_ context.Context, hash string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, inc := range m.incidents {
		if inc.FingerprintHash == hash && inc.Status == IncidentOpen {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListOpenIncidents(_ context.Context, hash string) ([]*Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Incident
	for _, inc := range m.incidents {
		if inc.Status != IncidentOpen {
			continue
		}
		if hash != "" && inc.FingerprintHash != hash {
			continue
		}
		cp := *inc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) CreateIncident(_ context.Context, inc *Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inc
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.Status == "" {
		cp.Status = IncidentOpen
	}
	m.incidents = append(m.incidents, &cp)
	return nil
}

func (m *MemoryStore) ResolveIncidents(_ context.Context, hash string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	n := 0
	for _, inc := range m.incidents {
		if inc.FingerprintHash == hash && inc.Status == IncidentOpen {
			inc.Status = IncidentResolved
			inc.ResolvedAt = &now
			n++
		}
	}
	return n, nil
}

func cloneFingerprint(fp *Fingerprint) *Fingerprint {
	cp := *fp
	cp.AssociatedUserIDs = append([]string(nil), fp.AssociatedUserIDs...)
	cp.RecentIPs = append([]string(nil), fp.RecentIPs...)
	return &cp
}

// pushFront moves v to the front of list (dedup) and bounds its length.
func pushFront(list []string, v string, max int) []string {
	out := make([]string, 0, len(list)+1)
	out = append(out, v)
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}
