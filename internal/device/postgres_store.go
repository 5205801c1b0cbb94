package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mbd888/fraudguard/internal/geo"
)

// PostgresStore implements Store backed by PostgreSQL. Counter and history
// mutations are single-statement arithmetic updates so concurrent
// validations never lose increments.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed device store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB exposes the underlying handle for health checks and stats collection.
func (p *PostgresStore) DB() *sql.DB { return p.db }

const fingerprintColumns = `
	hash, components, platform, browser_family, browser_version,
	os_family, os_version, device_type, trust_score, risk_level,
	is_bot, bot_confidence, is_emulator, emulator_confidence,
	is_blocked, blocked_reason, associated_user_ids, recent_ips,
	login_count, failed_login_count, suspicious_activity_count,
	first_seen_at, last_seen_at`

func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*Fingerprint, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+fingerprintColumns+` FROM device_fingerprints WHERE hash = $1`, hash)
	return scanFingerprint(row)
}

func (p *PostgresStore) Upsert(ctx context.Context, fp *Fingerprint) error {
	components, err := json.Marshal(fp.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}

	firstSeen := fp.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = time.Now()
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO device_fingerprints (`+fingerprintColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,now())
		ON CONFLICT (hash) DO UPDATE SET
			components = EXCLUDED.components,
			platform = EXCLUDED.platform,
			browser_family = EXCLUDED.browser_family,
			browser_version = EXCLUDED.browser_version,
			os_family = EXCLUDED.os_family,
			os_version = EXCLUDED.os_version,
			device_type = EXCLUDED.device_type,
			trust_score = EXCLUDED.trust_score,
			risk_level = EXCLUDED.risk_level,
			is_bot = EXCLUDED.is_bot,
			bot_confidence = EXCLUDED.bot_confidence,
			is_emulator = EXCLUDED.is_emulator,
			emulator_confidence = EXCLUDED.emulator_confidence,
			is_blocked = EXCLUDED.is_blocked,
			blocked_reason = EXCLUDED.blocked_reason,
			last_seen_at = now()`,
		fp.Hash, components, string(fp.Platform), fp.BrowserFamily, fp.BrowserVersion,
		fp.OSFamily, fp.OSVersion, string(fp.DeviceType), fp.TrustScore, string(fp.RiskLevel),
		fp.IsBot, fp.BotConfidence, fp.IsEmulator, fp.EmulatorConfidence,
		fp.IsBlocked, fp.BlockedReason,
		pq.Array(fp.AssociatedUserIDs), pq.Array(fp.RecentIPs),
		fp.LoginCount, fp.FailedLoginCount, fp.SuspiciousActivityCount,
		firstSeen)
	return err
}

func (p *PostgresStore) AppendIP(ctx context.Context, hash, ip string) error {
	// Dedup, move to front, bound — in one statement.
	res, err := p.db.ExecContext(ctx, `
		UPDATE device_fingerprints
		SET recent_ips = (ARRAY[$2] || array_remove(COALESCE(recent_ips, '{}'), $2))[1:$3],
		    last_seen_at = now()
		WHERE hash = $1`,
		hash, ip, MaxRecentIPs)
	return requireRow(res, err)
}

func (p *PostgresStore) AppendUser(ctx context.Context, hash, userID string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE device_fingerprints
		SET associated_user_ids = CASE
			WHEN $2 = ANY(COALESCE(associated_user_ids, '{}')) THEN associated_user_ids
			ELSE array_append(COALESCE(associated_user_ids, '{}'), $2)
		END
		WHERE hash = $1`,
		hash, userID)
	return requireRow(res, err)
}

func (p *PostgresStore) RecordLogin(ctx context.Context, hash string, success bool) error {
	failed := 0
	if !success {
		failed = 1
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE device_fingerprints
		SET login_count = login_count + 1,
		    failed_login_count = failed_login_count + $2,
		    last_seen_at = now()
		WHERE hash = $1`,
		hash, failed)
	return requireRow(res, err)
}

func (p *PostgresStore) IncrementSuspicious(ctx context.Context, hash string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE device_fingerprints
		SET suspicious_activity_count = suspicious_activity_count + 1
		WHERE hash = $1`,
		hash)
	return requireRow(res, err)
}

func (p *PostgresStore) GetAssociation(ctx context.Context, userID, hash string) (*Association, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT user_id, fingerprint_hash, trust_level, is_verified,
		       use_count, successful_logins, failed_logins,
		       last_ip_address, last_lat, last_lon, first_seen_at, last_seen_at
		FROM user_device_associations
		WHERE user_id = $1 AND fingerprint_hash = $2`,
		userID, hash)
	a, err := scanAssociation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssociationNotFound
	}
	return a, err
}

func (p *PostgresStore) UpsertAssociation(ctx context.Context, assoc *Association) error {
	var lat, lon sql.NullFloat64
	if assoc.LastLocation != nil {
		lat = sql.NullFloat64{Float64: assoc.LastLocation.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: assoc.LastLocation.Lon, Valid: true}
	}

	firstSeen := assoc.FirstSeenAt
	if firstSeen.IsZero() {
		firstSeen = time.Now()
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO user_device_associations
			(user_id, fingerprint_hash, trust_level, is_verified,
			 use_count, successful_logins, failed_logins,
			 last_ip_address, last_lat, last_lon, first_seen_at, last_seen_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
		ON CONFLICT (user_id, fingerprint_hash) DO UPDATE SET
			trust_level = EXCLUDED.trust_level,
			is_verified = EXCLUDED.is_verified,
			use_count = EXCLUDED.use_count,
			successful_logins = EXCLUDED.successful_logins,
			failed_logins = EXCLUDED.failed_logins,
			last_ip_address = EXCLUDED.last_ip_address,
			last_lat = EXCLUDED.last_lat,
			last_lon = EXCLUDED.last_lon,
			last_seen_at = now()`,
		assoc.UserID, assoc.FingerprintHash, string(assoc.TrustLevel), assoc.IsVerified,
		assoc.UseCount, assoc.SuccessfulLogins, assoc.FailedLogins,
		assoc.LastIPAddress, lat, lon, firstSeen)
	return err
}

func (p *PostgresStore) DeleteAssociation(ctx context.Context, userID, hash string) error {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM user_device_associations
		WHERE user_id = $1 AND fingerprint_hash = $2`,
		userID, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAssociationNotFound
	}
	return nil
}

func (p *PostgresStore) ListAssociationsForUser(ctx context.Context, userID string) ([]*Association, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, fingerprint_hash, trust_level, is_verified,
		       use_count, successful_logins, failed_logins,
		       last_ip_address, last_lat, last_lon, first_seen_at, last_seen_at
		FROM user_device_associations
		WHERE user_id = $1
		ORDER BY last_seen_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Association
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CountOpenIncidents(ctx context.Context, hash string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fraud_incidents
		WHERE fingerprint_hash = $1 AND status = 'open'`,
		hash).Scan(&n)
	return n, err
}

func (p *PostgresStore) ListOpenIncidents(ctx context.Context, hash string) ([]*Incident, error) {
	query := `
		SELECT id, fingerprint_hash, user_id, incident_type, severity,
		       status, evidence, created_at, resolved_at
		FROM fraud_incidents
		WHERE status = 'open'`
	args := []any{}
	if hash != "" {
		query += ` AND fingerprint_hash = $1`
		args = append(args, hash)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreateIncident(ctx context.Context, inc *Incident) error {
	evidence, err := json.Marshal(inc.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	status := inc.Status
	if status == "" {
		status = IncidentOpen
	}
	return p.db.QueryRowContext(ctx, `
		INSERT INTO fraud_incidents
			(id, fingerprint_hash, user_id, incident_type, severity, status, evidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		inc.ID, inc.FingerprintHash, inc.UserID, inc.Type,
		string(inc.Severity), status, evidence,
	).Scan(&inc.CreatedAt)
}

func (p *PostgresStore) ResolveIncidents(ctx context.Context, hash string) (int, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE fraud_incidents
		SET status = 'resolved', resolved_at = now()
		WHERE fingerprint_hash = $1 AND status = 'open'`,
		hash)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFingerprint(row rowScanner) (*Fingerprint, error) {
	var fp Fingerprint
	var components []byte
	err := row.Scan(
		&fp.Hash, &components, &fp.Platform, &fp.BrowserFamily, &fp.BrowserVersion,
		&fp.OSFamily, &fp.OSVersion, &fp.DeviceType, &fp.TrustScore, &fp.RiskLevel,
		&fp.IsBot, &fp.BotConfidence, &fp.IsEmulator, &fp.EmulatorConfidence,
		&fp.IsBlocked, &fp.BlockedReason,
		pq.Array(&fp.AssociatedUserIDs), pq.Array(&fp.RecentIPs),
		&fp.LoginCount, &fp.FailedLoginCount, &fp.SuspiciousActivityCount,
		&fp.FirstSeenAt, &fp.LastSeenAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(components) > 0 {
		if err := json.Unmarshal(components, &fp.Components); err != nil {
			return nil, fmt.Errorf("unmarshal components: %w", err)
		}
	}
	return &fp, nil
}

func scanAssociation(row rowScanner) (*Association, error) {
	var a Association
	var lat, lon sql.NullFloat64
	err := row.Scan(
		&a.UserID, &a.FingerprintHash, &a.TrustLevel, &a.IsVerified,
		&a.UseCount, &a.SuccessfulLogins, &a.FailedLogins,
		&a.LastIPAddress, &lat, &lon, &a.FirstSeenAt, &a.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lon.Valid {
		a.LastLocation = &geo.Point{Lat: lat.Float64, Lon: lon.Float64}
	}
	return &a, nil
}

func scanIncident(row rowScanner) (*Incident, error) {
	var inc Incident
	var userID sql.NullString
	var evidence []byte
	var resolvedAt sql.NullTime
	err := row.Scan(
		&inc.ID, &inc.FingerprintHash, &userID, &inc.Type, &inc.Severity,
		&inc.Status, &evidence, &inc.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	inc.UserID = userID.String
	if resolvedAt.Valid {
		inc.ResolvedAt = &resolvedAt.Time
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &inc.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
	}
	return &inc, nil
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}
