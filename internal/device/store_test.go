package device

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreDeviceRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetByHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	fp := &Fingerprint{Hash: "abc", TrustScore: 30, RiskLevel: RiskLow}
	require.NoError(t, s.Upsert(ctx, fp))

	got, err := s.GetByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Hash)
	assert.Equal(t, 30, got.TrustScore)
	assert.False(t, got.FirstSeenAt.IsZero(), "first seen should be stamped")

	// Mutating the returned record must not leak into the store.
	got.TrustScore = 99
	again, err := s.GetByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 30, again.TrustScore)
}

func TestMemoryStoreAppendIP(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx, &Fingerprint{Hash: "abc"}))

	assert.ErrorIs(t, s.AppendIP(ctx, "missing", "1.1.1.1"), ErrDeviceNotFound)

	require.NoError(t, s.AppendIP(ctx, "abc", "1.1.1.1"))
	require.NoError(t, s.AppendIP(ctx, "abc", "2.2.2.2"))
	require.NoError(t, s.AppendIP(ctx, "abc", "1.1.1.1"))

	got, err := s.GetByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1.1", "2.2.2.2"}, got.RecentIPs, "dedup and move to front")

	for i := 0; i < MaxRecentIPs+5; i++ {
		require.NoError(t, s.AppendIP(ctx, "abc", fmt.Sprintf("10.0.0.%d", i)))
	}
	got, err = s.GetByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Len(t, got.RecentIPs, MaxRecentIPs)
	assert.Equal(t, fmt.Sprintf("10.0.0.%d", MaxRecentIPs+4), got.RecentIPs[0], "newest first")
}

func TestMemoryStoreAppendUserAndCounters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(ctx, &Fingerprint{Hash: "abc"}))

	require.NoError(t, s.AppendUser(ctx, "abc", "u1"))
	require.NoError(t, s.AppendUser(ctx, "abc", "u1"))
	require.NoError(t, s.AppendUser(ctx, "abc", "u2"))

	require.NoError(t, s.RecordLogin(ctx, "abc", true))
	require.NoError(t, s.RecordLogin(ctx, "abc", false))
	require.NoError(t, s.IncrementSuspicious(ctx, "abc"))

	got, err := s.GetByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, got.AssociatedUserIDs)
	assert.Equal(t, 2, got.LoginCount)
	assert.Equal(t, 1, got.FailedLoginCount)
	assert.Equal(t, 1, got.SuspiciousActivityCount)
}

func TestMemoryStoreAssociations(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetAssociation(ctx, "u1", "abc")
	assert.ErrorIs(t, err, ErrAssociationNotFound)

	require.NoError(t, s.UpsertAssociation(ctx, &Association{
		UserID: "u1", FingerprintHash: "abc", TrustLevel: TrustNew, UseCount: 1,
	}))
	require.NoError(t, s.UpsertAssociation(ctx, &Association{
		UserID: "u1", FingerprintHash: "def", TrustLevel: TrustTrusted, UseCount: 12,
	}))

	a, err := s.GetAssociation(ctx, "u1", "def")
	require.NoError(t, err)
	assert.Equal(t, TrustTrusted, a.TrustLevel)
	assert.Equal(t, 12, a.UseCount)

	list, err := s.ListAssociationsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.DeleteAssociation(ctx, "u1", "abc"))
	assert.ErrorIs(t, s.DeleteAssociation(ctx, "u1", "abc"), ErrAssociationNotFound)

	list, err = s.ListAssociationsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStoreIncidents(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateIncident(ctx, &Incident{
		ID: "inc_1", FingerprintHash: "abc", Type: IncidentBotDetected, Severity: RiskHigh,
	}))
	require.NoError(t, s.CreateIncident(ctx, &Incident{
		ID: "inc_2", FingerprintHash: "abc", Type: IncidentCredentialStuffing, Severity: RiskCritical,
	}))
	require.NoError(t, s.CreateIncident(ctx, &Incident{
		ID: "inc_3", FingerprintHash: "other", Type: IncidentSuspiciousActivity, Severity: RiskMedium,
	}))

	n, err := s.CountOpenIncidents(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := s.ListOpenIncidents(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, inc := range all {
		assert.Equal(t, IncidentOpen, inc.Status, "status defaults to open")
	}

	resolved, err := s.ResolveIncidents(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)

	n, err = s.CountOpenIncidents(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	scoped, err := s.ListOpenIncidents(ctx, "other")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "inc_3", scoped[0].ID)
}
