package device

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudguard/internal/geo"
)

func newTestRegistry(t *testing.T) (*Registry, *MemoryStore) {
	t.Helper()
	s := NewMemoryStore()
	require.NoError(t, s.Upsert(context.Background(), &Fingerprint{Hash: "abc", TrustScore: 50, RiskLevel: RiskLow}))
	return NewRegistry(s), s
}

func TestRecordUsageCreatesAssociation(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t)

	loc := &geo.Point{Lat: 52.52, Lon: 13.405}
	assoc, created, err := r.RecordUsage(ctx, "u1", "abc", "9.9.9.9", loc, true)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, TrustNew, assoc.TrustLevel)
	assert.Equal(t, 1, assoc.UseCount)
	assert.Equal(t, "9.9.9.9", assoc.LastIPAddress)
	require.NotNil(t, assoc.LastLocation)
	assert.InDelta(t, 52.52, assoc.LastLocation.Lat, 1e-9)

	fp, err := s.GetByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, fp.AssociatedUserIDs)
	assert.Equal(t, []string{"9.9.9.9"}, fp.RecentIPs)
	assert.Equal(t, 1, fp.LoginCount)
}

func TestRecordUsageTrustEscalation(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	var assoc *Association
	var err error
	for i := 0; i < RecognizedUseCount; i++ {
		assoc, _, err = r.RecordUsage(ctx, "u1", "abc", "9.9.9.9", nil, true)
		require.NoError(t, err)
	}
	assert.Equal(t, TrustRecognized, assoc.TrustLevel, "recognized at %d uses", RecognizedUseCount)

	for i := RecognizedUseCount; i < TrustedUseCount; i++ {
		assoc, _, err = r.RecordUsage(ctx, "u1", "abc", "9.9.9.9", nil, true)
		require.NoError(t, err)
	}
	assert.Equal(t, TrustTrusted, assoc.TrustLevel, "trusted at %d uses", TrustedUseCount)
}

func TestRecordUsageSuspiciousIsSticky(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t)

	require.NoError(t, s.UpsertAssociation(ctx, &Association{
		UserID: "u1", FingerprintHash: "abc", TrustLevel: TrustSuspicious, UseCount: 50,
	}))
	assoc, created, err := r.RecordUsage(ctx, "u1", "abc", "", nil, true)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, TrustSuspicious, assoc.TrustLevel, "suspicious never auto-escalates")
}

func TestVerifyEscalatesImmediately(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t)

	_, _, err := r.RecordUsage(ctx, "u1", "abc", "", nil, true)
	require.NoError(t, err)

	require.NoError(t, r.Verify(ctx, "u1", "abc"))
	a, err := s.GetAssociation(ctx, "u1", "abc")
	require.NoError(t, err)
	assert.True(t, a.IsVerified)
	assert.Equal(t, TrustTrusted, a.TrustLevel)

	assert.ErrorIs(t, r.Verify(ctx, "u2", "abc"), ErrAssociationNotFound)
}

func TestBlockEnforcesInvariant(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t)

	require.NoError(t, r.Block(ctx, "abc", "confirmed fraud ring"))

	fp, err := s.GetByHash(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, fp.IsBlocked)
	assert.Equal(t, "confirmed fraud ring", fp.BlockedReason)
	assert.Equal(t, 0, fp.TrustScore)
	assert.Equal(t, RiskCritical, fp.RiskLevel)

	assert.ErrorIs(t, r.Block(ctx, "missing", "x"), ErrDeviceNotFound)
}

func TestUnblockResolvesIncidents(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t)

	require.NoError(t, r.Block(ctx, "abc", "stuffing"))
	_, err := r.RaiseIncident(ctx, "abc", "u1", IncidentCredentialStuffing, RiskCritical, nil)
	require.NoError(t, err)
	_, err = r.RecordSuspicious(ctx, "abc", "u1", "manual flag")
	require.NoError(t, err)

	resolved, err := r.Unblock(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)

	fp, err := s.GetByHash(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, fp.IsBlocked)
	assert.Empty(t, fp.BlockedReason)

	n, err := s.CountOpenIncidents(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLinkAndRemove(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t)

	assert.ErrorIs(t, r.Link(ctx, "u1", "missing"), ErrDeviceNotFound)

	require.NoError(t, r.Link(ctx, "u1", "abc"))
	a, err := s.GetAssociation(ctx, "u1", "abc")
	require.NoError(t, err)
	assert.Equal(t, TrustNew, a.TrustLevel)
	assert.Equal(t, 0, a.UseCount, "link records no login")

	// Linking again leaves the association untouched.
	require.NoError(t, s.UpsertAssociation(ctx, &Association{
		UserID: "u1", FingerprintHash: "abc", TrustLevel: TrustTrusted, UseCount: 11,
	}))
	require.NoError(t, r.Link(ctx, "u1", "abc"))
	a, err = s.GetAssociation(ctx, "u1", "abc")
	require.NoError(t, err)
	assert.Equal(t, TrustTrusted, a.TrustLevel)

	require.NoError(t, r.Remove(ctx, "u1", "abc"))
	assert.ErrorIs(t, r.Remove(ctx, "u1", "abc"), ErrAssociationNotFound)
}

func TestRecordSuspicious(t *testing.T) {
	ctx := context.Background()
	r, s := newTestRegistry(t)

	inc, err := r.RecordSuspicious(ctx, "abc", "u1", "velocity spike")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(inc.ID, "inc_"))
	assert.Equal(t, IncidentSuspiciousActivity, inc.Type)
	assert.Equal(t, "velocity spike", inc.Evidence["reason"])

	fp, err := s.GetByHash(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, fp.SuspiciousActivityCount)

	_, err = r.RecordSuspicious(ctx, "missing", "u1", "x")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}
