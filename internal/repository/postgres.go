package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentrix-systems/sentrix/internal/models"
)

// PostgresRepository implements Repository backed by PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to PostgreSQL and verifies the connection.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) CreateSource(ctx context.Context, src *models.EventSource) error {
	query := `
		INSERT INTO event_sources (id, user_id, name, source_type, primary_key_hash,
			secondary_key_hash, rotation_expires_at, disabled, version_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		src.ID, src.UserID, src.Name, src.SourceType, src.PrimaryKeyHash,
		src.SecondaryKeyHash, src.RotationExpiresAt, src.Disabled, src.VersionID, src.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	return nil
}

const sourceColumns = `id, user_id, name, source_type, primary_key_hash,
	secondary_key_hash, rotation_expires_at, disabled, version_id, created_at`

func (r *PostgresRepository) scanSource(row pgx.Row) (*models.EventSource, error) {
	src := &models.EventSource{}
	err := row.Scan(
		&src.ID, &src.UserID, &src.Name, &src.SourceType, &src.PrimaryKeyHash,
		&src.SecondaryKeyHash, &src.RotationExpiresAt, &src.Disabled, &src.VersionID, &src.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSourceNotFound
		}
		return nil, fmt.Errorf("scan source: %w", err)
	}
	return src, nil
}

func (r *PostgresRepository) GetSource(ctx context.Context, id string) (*models.EventSource, error) {
	query := fmt.Sprintf("SELECT %s FROM event_sources WHERE id = $1", sourceColumns)
	return r.scanSource(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) GetSourceByKeyHash(ctx context.Context, hash string) (*models.EventSource, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM event_sources
		WHERE primary_key_hash = $1 OR secondary_key_hash = $1
	`, sourceColumns)
	return r.scanSource(r.pool.QueryRow(ctx, query, hash))
}

func (r *PostgresRepository) UpdateSourceKeys(ctx context.Context, src *models.EventSource, expectedVersion string) error {
	query := `
		UPDATE event_sources
		SET primary_key_hash = $1, secondary_key_hash = $2, rotation_expires_at = $3, version_id = $4
		WHERE id = $5 AND version_id = $6
	`
	tag, err := r.pool.Exec(ctx, query,
		src.PrimaryKeyHash, src.SecondaryKeyHash, src.RotationExpiresAt, src.VersionID,
		src.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update source keys: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the source is gone or another writer got there first.
		if _, err := r.GetSource(ctx, src.ID); err != nil {
			return err
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *PostgresRepository) SetSourceDisabled(ctx context.Context, id string, disabled bool) error {
	tag, err := r.pool.Exec(ctx, "UPDATE event_sources SET disabled = $1 WHERE id = $2", disabled, id)
	if err != nil {
		return fmt.Errorf("set source disabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func (r *PostgresRepository) ListSources(ctx context.Context, userID string) ([]*models.EventSource, error) {
	query := fmt.Sprintf("SELECT %s FROM event_sources", sourceColumns)
	args := []interface{}{}
	if userID != "" {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	out := []*models.EventSource{}
	for rows.Next() {
		src, err := r.scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateRawEvents(ctx context.Context, events []*models.RawEvent) error {
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO raw_events (id, source_id, user_id, raw_data, processed, failure_count, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, ev.ID, ev.SourceID, ev.UserID, ev.RawData, ev.Processed, ev.FailureCount, ev.ReceivedAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("create raw events: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) PullUnprocessed(ctx context.Context, limit int) ([]*models.RawEvent, error) {
	query := `
		SELECT id, source_id, user_id, raw_data, processed, failure_count, received_at
		FROM raw_events
		WHERE processed = FALSE
		ORDER BY received_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("pull unprocessed: %w", err)
	}
	defer rows.Close()

	out := []*models.RawEvent{}
	for rows.Next() {
		ev := &models.RawEvent{}
		if err := rows.Scan(&ev.ID, &ev.SourceID, &ev.UserID, &ev.RawData,
			&ev.Processed, &ev.FailureCount, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan raw event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) MarkRawEventProcessed(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, "UPDATE raw_events SET processed = TRUE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *PostgresRepository) IncrementRawEventFailure(ctx context.Context, id string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		"UPDATE raw_events SET failure_count = failure_count + 1 WHERE id = $1 RETURNING failure_count", id,
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrEventNotFound
		}
		return 0, fmt.Errorf("increment failure count: %w", err)
	}
	return count, nil
}

const eventColumns = `id, raw_event_id, source_id, user_id, event_type, severity, message, ts,
	metadata, source_url, device_name, threat_vector, source_ip, destination_ip,
	geo_country, geo_city, geo_lat, geo_lon, flagged_as_threat, created_at`

func scanNormalizedEvent(row pgx.Row) (*models.NormalizedEvent, error) {
	ev := &models.NormalizedEvent{}
	var sourceURL, deviceName, threatVector, sourceIP, destinationIP, geoCountry, geoCity *string
	err := row.Scan(
		&ev.ID, &ev.RawEventID, &ev.SourceID, &ev.UserID, &ev.EventType, &ev.Severity, &ev.Message,
		&ev.Timestamp, &ev.Metadata, &sourceURL, &deviceName, &threatVector, &sourceIP,
		&destinationIP, &geoCountry, &geoCity, &ev.GeoLat, &ev.GeoLon, &ev.FlaggedAsThreat, &ev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("scan normalized event: %w", err)
	}
	ev.SourceURL = deref(sourceURL)
	ev.DeviceName = deref(deviceName)
	ev.ThreatVector = deref(threatVector)
	ev.SourceIP = deref(sourceIP)
	ev.DestinationIP = deref(destinationIP)
	ev.GeoCountry = deref(geoCountry)
	ev.GeoCity = deref(geoCity)
	return ev, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PostgresRepository) CreateNormalizedEvent(ctx context.Context, ev *models.NormalizedEvent) error {
	query := `
		INSERT INTO normalized_events (id, raw_event_id, source_id, user_id, event_type, severity,
			message, ts, metadata, source_url, device_name, threat_vector, source_ip, destination_ip,
			geo_country, geo_city, geo_lat, geo_lon, flagged_as_threat, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (raw_event_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		ev.ID, ev.RawEventID, ev.SourceID, ev.UserID, ev.EventType, ev.Severity,
		ev.Message, ev.Timestamp, ev.Metadata, nullable(ev.SourceURL), nullable(ev.DeviceName),
		nullable(ev.ThreatVector), nullable(ev.SourceIP), nullable(ev.DestinationIP),
		nullable(ev.GeoCountry), nullable(ev.GeoCity), ev.GeoLat, ev.GeoLon,
		ev.FlaggedAsThreat, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create normalized event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Retry of a partially processed raw event; reuse the existing row.
		existing, err := r.GetNormalizedEventByRawID(ctx, ev.RawEventID)
		if err != nil {
			return err
		}
		*ev = *existing
	}
	return nil
}

func (r *PostgresRepository) GetNormalizedEvent(ctx context.Context, id string) (*models.NormalizedEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM normalized_events WHERE id = $1", eventColumns)
	return scanNormalizedEvent(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) GetNormalizedEventByRawID(ctx context.Context, rawEventID string) (*models.NormalizedEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM normalized_events WHERE raw_event_id = $1", eventColumns)
	return scanNormalizedEvent(r.pool.QueryRow(ctx, query, rawEventID))
}

func (r *PostgresRepository) FlagEventAsThreat(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		"UPDATE normalized_events SET flagged_as_threat = TRUE WHERE id = $1 AND flagged_as_threat = FALSE", id)
	if err != nil {
		return false, fmt.Errorf("flag event: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	// Distinguish "already flagged" from "missing".
	if _, err := r.GetNormalizedEvent(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *PostgresRepository) ListNormalizedEvents(ctx context.Context, req models.ListEventsRequest) ([]*models.NormalizedEvent, int, error) {
	req = req.Defaults()

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.UserID != "" {
		whereClause += fmt.Sprintf(" AND user_id = $%d", argPos)
		args = append(args, req.UserID)
		argPos++
	}
	if req.SourceID != "" {
		whereClause += fmt.Sprintf(" AND source_id = $%d", argPos)
		args = append(args, req.SourceID)
		argPos++
	}
	if req.Severity != "" {
		whereClause += fmt.Sprintf(" AND severity = $%d", argPos)
		args = append(args, req.Severity)
		argPos++
	}
	if req.Flagged != nil {
		whereClause += fmt.Sprintf(" AND flagged_as_threat = $%d", argPos)
		args = append(args, *req.Flagged)
		argPos++
	}
	if req.Search != "" {
		whereClause += fmt.Sprintf(" AND (message ILIKE $%d OR source_url ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+req.Search+"%")
		argPos++
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM normalized_events %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	args = append(args, req.Limit, offset)
	query := fmt.Sprintf("SELECT %s FROM normalized_events %s ORDER BY ts DESC LIMIT $%d OFFSET $%d",
		eventColumns, whereClause, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := []*models.NormalizedEvent{}
	for rows.Next() {
		ev, err := scanNormalizedEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ev)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepository) CreateThreatEvent(ctx context.Context, t *models.ThreatEvent) error {
	query := `
		INSERT INTO threat_events (id, normalized_event_id, user_id, threat_type, signature_name, severity, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (normalized_event_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		t.ID, t.NormalizedEventID, t.UserID, t.ThreatType, t.SignatureName, t.Severity, t.Confidence, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create threat event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := r.GetThreatByEventID(ctx, t.NormalizedEventID)
		if err != nil {
			return err
		}
		*t = *existing
	}
	return nil
}

func (r *PostgresRepository) GetThreatByEventID(ctx context.Context, normalizedEventID string) (*models.ThreatEvent, error) {
	query := `
		SELECT id, normalized_event_id, user_id, threat_type, signature_name, severity, confidence, created_at
		FROM threat_events WHERE normalized_event_id = $1
	`
	t := &models.ThreatEvent{}
	err := r.pool.QueryRow(ctx, query, normalizedEventID).Scan(
		&t.ID, &t.NormalizedEventID, &t.UserID, &t.ThreatType, &t.SignatureName, &t.Severity, &t.Confidence, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrThreatNotFound
		}
		return nil, fmt.Errorf("get threat: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) ListThreats(ctx context.Context, req models.ListThreatsRequest) ([]*models.ThreatEvent, int, error) {
	req = req.Defaults()

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.UserID != "" {
		whereClause += fmt.Sprintf(" AND user_id = $%d", argPos)
		args = append(args, req.UserID)
		argPos++
	}
	if req.Severity != "" {
		whereClause += fmt.Sprintf(" AND severity = $%d", argPos)
		args = append(args, req.Severity)
		argPos++
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM threat_events %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count threats: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	args = append(args, req.Limit, offset)
	query := fmt.Sprintf(`
		SELECT id, normalized_event_id, user_id, threat_type, signature_name, severity, confidence, created_at
		FROM threat_events %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list threats: %w", err)
	}
	defer rows.Close()

	out := []*models.ThreatEvent{}
	for rows.Next() {
		t := &models.ThreatEvent{}
		if err := rows.Scan(&t.ID, &t.NormalizedEventID, &t.UserID, &t.ThreatType,
			&t.SignatureName, &t.Severity, &t.Confidence, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan threat: %w", err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepository) CreateAlert(ctx context.Context, a *models.Alert) error {
	query := `
		INSERT INTO alerts (id, user_id, title, message, severity, read, threat_id, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID, a.UserID, a.Title, a.Message, a.Severity, a.Read, a.ThreatID, a.Timestamp)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkAlertRead(ctx context.Context, id, userID string) error {
	query := "UPDATE alerts SET read = TRUE WHERE id = $1"
	args := []interface{}{id}
	if userID != "" {
		query += " AND user_id = $2"
		args = append(args, userID)
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (r *PostgresRepository) ClearAlerts(ctx context.Context, userID string) (int, error) {
	query := "DELETE FROM alerts"
	args := []interface{}{}
	if userID != "" {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear alerts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) ListAlerts(ctx context.Context, req models.ListAlertsRequest) ([]*models.Alert, int, error) {
	req = req.Defaults()

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.UserID != "" {
		whereClause += fmt.Sprintf(" AND user_id = $%d", argPos)
		args = append(args, req.UserID)
		argPos++
	}
	if req.Severity != "" {
		whereClause += fmt.Sprintf(" AND severity = $%d", argPos)
		args = append(args, req.Severity)
		argPos++
	}
	if req.Read != nil {
		whereClause += fmt.Sprintf(" AND read = $%d", argPos)
		args = append(args, *req.Read)
		argPos++
	}
	if req.Search != "" {
		whereClause += fmt.Sprintf(" AND (title ILIKE $%d OR message ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+req.Search+"%")
		argPos++
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM alerts %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	args = append(args, req.Limit, offset)
	query := fmt.Sprintf(`
		SELECT id, user_id, title, message, severity, read, threat_id, ts
		FROM alerts %s ORDER BY ts DESC LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	out := []*models.Alert{}
	for rows.Next() {
		a := &models.Alert{}
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.Message, &a.Severity,
			&a.Read, &a.ThreatID, &a.Timestamp); err != nil {
			return nil, 0, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}
