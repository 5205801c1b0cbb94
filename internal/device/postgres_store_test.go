package device

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/fraudguard/internal/fingerprint"
	"github.com/mbd888/fraudguard/internal/geo"
	"github.com/mbd888/fraudguard/internal/testutil"
)

// testHash builds a well-formed 64-char hash from a single hex digit.
func testHash(digit string) string {
	return strings.Repeat(digit, 64)
}

func pgFingerprint(hash string) *Fingerprint {
	return &Fingerprint{
		Hash: hash,
		Components: fingerprint.Payload{
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0",
			ScreenResolution: "1920x1080",
			Timezone:         "Europe/London",
		},
		Platform:      fingerprint.PlatformWeb,
		BrowserFamily: "Chrome",
		OSFamily:      "Windows",
		DeviceType:    fingerprint.DeviceDesktop,
		TrustScore:    30,
		RiskLevel:     RiskMedium,
	}
}

func TestPostgresStore_FingerprintRoundtrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	hash := testHash("a")

	_, err := store.GetByHash(ctx, hash)
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	require.NoError(t, store.Upsert(ctx, pgFingerprint(hash)))

	got, err := store.GetByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, hash, got.Hash)
	assert.Equal(t, "Chrome", got.BrowserFamily)
	assert.Equal(t, RiskMedium, got.RiskLevel)
	assert.Equal(t, "Europe/London", got.Components.Timezone)
	assert.False(t, got.FirstSeenAt.IsZero())
}

func TestPostgresStore_UpsertPreservesCounters(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	hash := testHash("b")

	require.NoError(t, store.Upsert(ctx, pgFingerprint(hash)))
	require.NoError(t, store.RecordLogin(ctx, hash, true))
	require.NoError(t, store.RecordLogin(ctx, hash, false))
	require.NoError(t, store.IncrementSuspicious(ctx, hash))

	// A second upsert of derived fields must not reset the counters.
	fp := pgFingerprint(hash)
	fp.TrustScore = 55
	require.NoError(t, store.Upsert(ctx, fp))

	got, err := store.GetByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 55, got.TrustScore)
	assert.Equal(t, 2, got.LoginCount)
	assert.Equal(t, 1, got.FailedLoginCount)
	assert.Equal(t, 1, got.SuspiciousActivityCount)
}

func TestPostgresStore_AppendIPDedupAndBound(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	hash := testHash("c")

	require.NoError(t, store.Upsert(ctx, pgFingerprint(hash)))

	require.NoError(t, store.AppendIP(ctx, hash, "10.0.0.1"))
	require.NoError(t, store.AppendIP(ctx, hash, "10.0.0.2"))
	require.NoError(t, store.AppendIP(ctx, hash, "10.0.0.1")) // moves to front

	got, err := store.GetByHash(ctx, hash)
	require.NoError(t, err)
	require.Len(t, got.RecentIPs, 2)
	assert.Equal(t, "10.0.0.1", got.RecentIPs[0])

	// Unknown hash surfaces the sentinel.
	assert.ErrorIs(t, store.AppendIP(ctx, testHash("9"), "10.0.0.1"), ErrDeviceNotFound)
}

func TestPostgresStore_AppendUserIdempotent(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	hash := testHash("d")

	require.NoError(t, store.Upsert(ctx, pgFingerprint(hash)))
	require.NoError(t, store.AppendUser(ctx, hash, "user_1"))
	require.NoError(t, store.AppendUser(ctx, hash, "user_1"))
	require.NoError(t, store.AppendUser(ctx, hash, "user_2"))

	got, err := store.GetByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []string{"user_1", "user_2"}, got.AssociatedUserIDs)
}

func TestPostgresStore_Associations(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	hash := testHash("e")

	require.NoError(t, store.Upsert(ctx, pgFingerprint(hash)))

	_, err := store.GetAssociation(ctx, "user_1", hash)
	assert.ErrorIs(t, err, ErrAssociationNotFound)

	assoc := &Association{
		UserID:           "user_1",
		FingerprintHash:  hash,
		TrustLevel:       TrustNew,
		UseCount:         1,
		SuccessfulLogins: 1,
		LastIPAddress:    "203.0.113.1",
		LastLocation:     &geo.Point{Lat: 51.5, Lon: -0.12},
	}
	require.NoError(t, store.UpsertAssociation(ctx, assoc))

	got, err := store.GetAssociation(ctx, "user_1", hash)
	require.NoError(t, err)
	assert.Equal(t, TrustNew, got.TrustLevel)
	require.NotNil(t, got.LastLocation)
	assert.InDelta(t, 51.5, got.LastLocation.Lat, 0.001)

	list, err := store.ListAssociationsForUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteAssociation(ctx, "user_1", hash))
	assert.ErrorIs(t, store.DeleteAssociation(ctx, "user_1", hash), ErrAssociationNotFound)
}

func TestPostgresStore_Incidents(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	hash := testHash("f")

	require.NoError(t, store.Upsert(ctx, pgFingerprint(hash)))

	inc := &Incident{
		ID:              "inc_pg1",
		FingerprintHash: hash,
		UserID:          "user_1",
		Type:            IncidentCredentialStuffing,
		Severity:        RiskCritical,
		Evidence:        map[string]any{"distinct_ips": 6},
	}
	require.NoError(t, store.CreateIncident(ctx, inc))
	assert.False(t, inc.CreatedAt.IsZero())

	n, err := store.CountOpenIncidents(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	open, err := store.ListOpenIncidents(ctx, hash)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, IncidentCredentialStuffing, open[0].Type)
	assert.EqualValues(t, 6, open[0].Evidence["distinct_ips"])

	resolved, err := store.ResolveIncidents(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	n, err = store.CountOpenIncidents(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPostgresStore_RecordLoginConcurrent(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	hash := testHash("1")

	require.NoError(t, store.Upsert(ctx, pgFingerprint(hash)))

	const workers = 10
	done := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			done <- store.RecordLogin(ctx, hash, true)
		}()
	}
	for i := 0; i < workers; i++ {
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for concurrent logins")
		}
	}

	got, err := store.GetByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, workers, got.LoginCount)
}
