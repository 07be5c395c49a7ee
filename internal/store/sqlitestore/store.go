// Package sqlitestore implements domain.Store on SQLite (spec.md §4.2).
// Uses WAL mode for concurrent reads and crash-safe writes, a single writer
// connection (SQLite's own constraint), and idempotent migrations run at
// Open time.
//
// Grounded on the teacher's internal/infra/sqlite/db.go: the WAL/busy-timeout
// DSN, the MaxOpenConns(1)-for-SQLite pool setting, the idempotent migration
// list, the scanner interface shared between *sql.Row and *sql.Rows, and the
// nullable-timestamp helper pattern all carry over almost unchanged, adapted
// from one (models, node_info) schema to StellarOps's five durable tables.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stellarops/stellarops/internal/domain"
)

// Store wraps a SQLite connection implementing domain.Store.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/stellarops.db, enabling
// WAL mode, foreign keys, and a 5-second busy timeout.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "stellarops.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS satellites (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			mode         TEXT NOT NULL,
			energy       REAL NOT NULL,
			memory_used  REAL NOT NULL,
			pos_x        REAL NOT NULL DEFAULT 0,
			pos_y        REAL NOT NULL DEFAULT 0,
			pos_z        REAL NOT NULL DEFAULT 0,
			norad_id     INTEGER,
			tle_line1    TEXT,
			tle_line2    TEXT,
			tle_epoch    INTEGER,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS commands (
			id           TEXT PRIMARY KEY,
			satellite_id TEXT NOT NULL,
			type         TEXT NOT NULL,
			payload      TEXT NOT NULL DEFAULT '{}',
			priority     INTEGER NOT NULL,
			scheduled_at INTEGER,
			timeout_ms   INTEGER NOT NULL DEFAULT 0,
			status       TEXT NOT NULL,
			sent_at      INTEGER,
			started_at   INTEGER,
			completed_at INTEGER,
			result       TEXT,
			error        TEXT NOT NULL DEFAULT '',
			retry_count  INTEGER NOT NULL DEFAULT 0,
			inserted_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_satellite ON commands(satellite_id, inserted_at)`,
		`CREATE TABLE IF NOT EXISTS telemetry_events (
			id           TEXT PRIMARY KEY,
			satellite_id TEXT NOT NULL,
			event_type   TEXT NOT NULL,
			payload      TEXT NOT NULL DEFAULT '{}',
			recorded_at  INTEGER NOT NULL,
			source       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_telemetry_satellite_time ON telemetry_events(satellite_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS hourly_aggregates (
			satellite_id TEXT NOT NULL,
			metric       TEXT NOT NULL,
			window       TEXT NOT NULL,
			recorded_at  INTEGER NOT NULL,
			avg          REAL NOT NULL,
			min          REAL NOT NULL,
			max          REAL NOT NULL,
			count        INTEGER NOT NULL,
			stddev       REAL NOT NULL,
			PRIMARY KEY (satellite_id, metric, window, recorded_at)
		)`,
		`CREATE TABLE IF NOT EXISTS alarms (
			id              TEXT PRIMARY KEY,
			type            TEXT NOT NULL,
			severity        TEXT NOT NULL,
			message         TEXT NOT NULL,
			source          TEXT NOT NULL,
			details         TEXT,
			status          TEXT NOT NULL,
			created_at      INTEGER NOT NULL,
			acknowledged_at INTEGER,
			acknowledged_by TEXT NOT NULL DEFAULT '',
			resolved_at     INTEGER,
			resolved_by     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alarms_source ON alarms(source, status)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// Close cleanly shuts down the database.
func (s *Store) Close() error { return s.db.Close() }

// ─── Satellites ─────────────────────────────────────────────────────────────

func (s *Store) UpsertSatellite(ctx context.Context, sat domain.Satellite) error {
	if sat.CreatedAt.IsZero() {
		sat.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO satellites (id, name, mode, energy, memory_used, pos_x, pos_y, pos_z, norad_id, tle_line1, tle_line2, tle_epoch, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, mode=excluded.mode, energy=excluded.energy,
			memory_used=excluded.memory_used, pos_x=excluded.pos_x, pos_y=excluded.pos_y,
			pos_z=excluded.pos_z, norad_id=excluded.norad_id, tle_line1=excluded.tle_line1,
			tle_line2=excluded.tle_line2, tle_epoch=excluded.tle_epoch`,
		sat.ID, sat.Name, string(sat.Mode), sat.Energy, sat.MemoryUsed,
		sat.Position.X, sat.Position.Y, sat.Position.Z,
		nullableInt(sat.NoradID), nullableStr(sat.TLELine1), nullableStr(sat.TLELine2),
		nullableTimePtr(sat.TLEEpoch), sat.CreatedAt.Unix(),
	)
	if err != nil {
		return domain.WrapError(domain.KindTransient, "upsert satellite", err)
	}
	return nil
}

func (s *Store) GetSatellite(ctx context.Context, id string) (domain.Satellite, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, mode, energy, memory_used, pos_x, pos_y, pos_z, norad_id, tle_line1, tle_line2, tle_epoch, created_at
		 FROM satellites WHERE id = ?`, id)
	sat, err := scanSatellite(row)
	if err == sql.ErrNoRows {
		return domain.Satellite{}, domain.NewError(domain.KindNotFound, "satellite "+id+" not found")
	}
	if err != nil {
		return domain.Satellite{}, domain.WrapError(domain.KindTransient, "get satellite", err)
	}
	return sat, nil
}

func (s *Store) ListSatellites(ctx context.Context) ([]domain.Satellite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, mode, energy, memory_used, pos_x, pos_y, pos_z, norad_id, tle_line1, tle_line2, tle_epoch, created_at
		 FROM satellites ORDER BY created_at`)
	if err != nil {
		return nil, domain.WrapError(domain.KindTransient, "list satellites", err)
	}
	defer rows.Close()

	var out []domain.Satellite
	for rows.Next() {
		sat, err := scanSatellite(rows)
		if err != nil {
			return nil, domain.WrapError(domain.KindTransient, "scan satellite", err)
		}
		out = append(out, sat)
	}
	return out, rows.Err()
}

// ─── Commands ───────────────────────────────────────────────────────────────

func (s *Store) InsertCommand(ctx context.Context, cmd domain.Command) (domain.Command, error) {
	if cmd.InsertedAt.IsZero() {
		cmd.InsertedAt = time.Now()
	}
	payload, err := json.Marshal(cmd.Payload)
	if err != nil {
		return domain.Command{}, domain.WrapError(domain.KindValidation, "marshal payload", err)
	}
	result, err := json.Marshal(cmd.Result)
	if err != nil {
		return domain.Command{}, domain.WrapError(domain.KindValidation, "marshal result", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO commands (id, satellite_id, type, payload, priority, scheduled_at, timeout_ms, status, sent_at, started_at, completed_at, result, error, retry_count, inserted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cmd.ID, cmd.SatelliteID, cmd.Type, string(payload), cmd.Priority,
		nullableTimePtr(cmd.ScheduledAt), cmd.TimeoutMS, string(cmd.Status),
		nullableTimePtr(cmd.SentAt), nullableTimePtr(cmd.StartedAt), nullableTimePtr(cmd.CompletedAt),
		string(result), cmd.Error, cmd.RetryCount, cmd.InsertedAt.Unix(),
	)
	if err != nil {
		return domain.Command{}, domain.WrapError(domain.KindTransient, "insert command", err)
	}
	return cmd, nil
}

func (s *Store) UpdateCommandStatus(ctx context.Context, id string, status domain.CommandStatus, fields domain.CommandUpdate) error {
	existing, err := s.GetCommand(ctx, id)
	if err != nil {
		return err
	}

	existing.Status = status
	if fields.SentAt != nil {
		existing.SentAt = fields.SentAt
	}
	if fields.StartedAt != nil {
		existing.StartedAt = fields.StartedAt
	}
	if fields.CompletedAt != nil {
		existing.CompletedAt = fields.CompletedAt
	}
	if fields.Result != nil {
		existing.Result = fields.Result
	}
	if fields.Error != "" {
		existing.Error = fields.Error
	}
	if fields.RetryCount != nil {
		existing.RetryCount = *fields.RetryCount
	}
	if fields.ScheduledAt != nil {
		existing.ScheduledAt = fields.ScheduledAt
	}

	result, err := json.Marshal(existing.Result)
	if err != nil {
		return domain.WrapError(domain.KindValidation, "marshal result", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE commands SET status=?, scheduled_at=?, sent_at=?, started_at=?, completed_at=?, result=?, error=?, retry_count=?
		 WHERE id=?`,
		string(existing.Status), nullableTimePtr(existing.ScheduledAt),
		nullableTimePtr(existing.SentAt), nullableTimePtr(existing.StartedAt), nullableTimePtr(existing.CompletedAt),
		string(result), existing.Error, existing.RetryCount, id,
	)
	if err != nil {
		return domain.WrapError(domain.KindTransient, "update command status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewError(domain.KindNotFound, "command "+id+" not found")
	}
	return nil
}

func (s *Store) GetCommand(ctx context.Context, id string) (domain.Command, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, satellite_id, type, payload, priority, scheduled_at, timeout_ms, status, sent_at, started_at, completed_at, result, error, retry_count, inserted_at
		 FROM commands WHERE id = ?`, id)
	cmd, err := scanCommand(row)
	if err == sql.ErrNoRows {
		return domain.Command{}, domain.NewError(domain.KindNotFound, "command "+id+" not found")
	}
	if err != nil {
		return domain.Command{}, domain.WrapError(domain.KindTransient, "get command", err)
	}
	return cmd, nil
}

func (s *Store) ListCommands(ctx context.Context, filter domain.CommandFilter) ([]domain.Command, error) {
	query := `SELECT id, satellite_id, type, payload, priority, scheduled_at, timeout_ms, status, sent_at, started_at, completed_at, result, error, retry_count, inserted_at FROM commands WHERE 1=1`
	var args []any
	if filter.SatelliteID != "" {
		query += ` AND satellite_id = ?`
		args = append(args, filter.SatelliteID)
	}
	if filter.NonTerminal {
		query += ` AND status NOT IN (?, ?, ?)`
		args = append(args, string(domain.CommandCompleted), string(domain.CommandFailed), string(domain.CommandCancelled))
	}
	query += ` ORDER BY inserted_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.KindTransient, "list commands", err)
	}
	defer rows.Close()

	var out []domain.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, domain.WrapError(domain.KindTransient, "scan command", err)
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

func (s *Store) CommandHistory(ctx context.Context, satelliteID string, limit int) ([]domain.Command, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, satellite_id, type, payload, priority, scheduled_at, timeout_ms, status, sent_at, started_at, completed_at, result, error, retry_count, inserted_at
		 FROM commands WHERE satellite_id = ? ORDER BY inserted_at DESC LIMIT ?`, satelliteID, limit)
	if err != nil {
		return nil, domain.WrapError(domain.KindTransient, "command history", err)
	}
	defer rows.Close()

	var out []domain.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, domain.WrapError(domain.KindTransient, "scan command", err)
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

// ─── Telemetry ──────────────────────────────────────────────────────────────

func (s *Store) InsertTelemetryEvent(ctx context.Context, ev domain.TelemetryEvent) (domain.TelemetryEvent, error) {
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now()
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return domain.TelemetryEvent{}, domain.WrapError(domain.KindValidation, "marshal payload", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO telemetry_events (id, satellite_id, event_type, payload, recorded_at, source)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SatelliteID, ev.EventType, string(payload), ev.RecordedAt.Unix(), ev.Source,
	)
	if err != nil {
		return domain.TelemetryEvent{}, domain.WrapError(domain.KindTransient, "insert telemetry event", err)
	}
	return ev, nil
}

func (s *Store) UpsertHourlyAggregate(ctx context.Context, agg domain.HourlyAggregate) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hourly_aggregates (satellite_id, metric, window, recorded_at, avg, min, max, count, stddev)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(satellite_id, metric, window, recorded_at) DO UPDATE SET
			avg=excluded.avg, min=excluded.min, max=excluded.max, count=excluded.count, stddev=excluded.stddev`,
		agg.SatelliteID, agg.Metric, string(agg.Window), agg.RecordedAt.Unix(),
		agg.Stats.Avg, agg.Stats.Min, agg.Stats.Max, agg.Stats.Count, agg.Stats.StdDev,
	)
	if err != nil {
		return domain.WrapError(domain.KindTransient, "upsert hourly aggregate", err)
	}
	return nil
}

func (s *Store) DeleteTelemetryOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM telemetry_events WHERE recorded_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, domain.WrapError(domain.KindTransient, "delete old telemetry", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ─── Alarms ─────────────────────────────────────────────────────────────────

func (s *Store) InsertAlarm(ctx context.Context, alarm domain.Alarm) (domain.Alarm, error) {
	if alarm.CreatedAt.IsZero() {
		alarm.CreatedAt = time.Now()
	}
	details, err := json.Marshal(alarm.Details)
	if err != nil {
		return domain.Alarm{}, domain.WrapError(domain.KindValidation, "marshal details", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alarms (id, type, severity, message, source, details, status, created_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alarm.ID, alarm.Type, string(alarm.Severity), alarm.Message, alarm.Source, string(details),
		string(alarm.Status), alarm.CreatedAt.Unix(), nullableTimePtr(alarm.AcknowledgedAt), alarm.AcknowledgedBy,
		nullableTimePtr(alarm.ResolvedAt), alarm.ResolvedBy,
	)
	if err != nil {
		return domain.Alarm{}, domain.WrapError(domain.KindTransient, "insert alarm", err)
	}
	return alarm, nil
}

func (s *Store) UpdateAlarm(ctx context.Context, alarm domain.Alarm) error {
	details, err := json.Marshal(alarm.Details)
	if err != nil {
		return domain.WrapError(domain.KindValidation, "marshal details", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alarms SET severity=?, message=?, details=?, status=?, acknowledged_at=?, acknowledged_by=?, resolved_at=?, resolved_by=?
		 WHERE id=?`,
		string(alarm.Severity), alarm.Message, string(details), string(alarm.Status),
		nullableTimePtr(alarm.AcknowledgedAt), alarm.AcknowledgedBy,
		nullableTimePtr(alarm.ResolvedAt), alarm.ResolvedBy, alarm.ID,
	)
	if err != nil {
		return domain.WrapError(domain.KindTransient, "update alarm", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewError(domain.KindNotFound, "alarm "+alarm.ID+" not found")
	}
	return nil
}

func (s *Store) GetAlarm(ctx context.Context, id string) (domain.Alarm, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, severity, message, source, details, status, created_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by
		 FROM alarms WHERE id = ?`, id)
	alarm, err := scanAlarm(row)
	if err == sql.ErrNoRows {
		return domain.Alarm{}, domain.NewError(domain.KindNotFound, "alarm "+id+" not found")
	}
	if err != nil {
		return domain.Alarm{}, domain.WrapError(domain.KindTransient, "get alarm", err)
	}
	return alarm, nil
}

func (s *Store) ListAlarms(ctx context.Context, source string, activeOnly bool) ([]domain.Alarm, error) {
	query := `SELECT id, type, severity, message, source, details, status, created_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by FROM alarms WHERE 1=1`
	var args []any
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	if activeOnly {
		query += ` AND status = ?`
		args = append(args, string(domain.AlarmActive))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.KindTransient, "list alarms", err)
	}
	defer rows.Close()

	var out []domain.Alarm
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, domain.WrapError(domain.KindTransient, "scan alarm", err)
		}
		out = append(out, alarm)
	}
	return out, rows.Err()
}

// ─── TLE ────────────────────────────────────────────────────────────────────

func (s *Store) UpsertTLE(ctx context.Context, satelliteID string, tle domain.TLE) error {
	epoch := tle.Epoch.Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE satellites SET norad_id=?, tle_line1=?, tle_line2=?, tle_epoch=? WHERE id=?`,
		tle.NoradID, tle.Line1, tle.Line2, epoch, satelliteID,
	)
	if err != nil {
		return domain.WrapError(domain.KindTransient, "upsert tle", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewError(domain.KindNotFound, "satellite "+satelliteID+" not found")
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSatellite(row scanner) (domain.Satellite, error) {
	var sat domain.Satellite
	var mode string
	var createdAt int64
	var noradID sql.NullInt64
	var tleLine1, tleLine2 sql.NullString
	var tleEpoch sql.NullInt64

	err := row.Scan(&sat.ID, &sat.Name, &mode, &sat.Energy, &sat.MemoryUsed,
		&sat.Position.X, &sat.Position.Y, &sat.Position.Z,
		&noradID, &tleLine1, &tleLine2, &tleEpoch, &createdAt)
	if err != nil {
		return domain.Satellite{}, err
	}

	sat.Mode = domain.Mode(mode)
	sat.CreatedAt = time.Unix(createdAt, 0)
	if noradID.Valid {
		v := int(noradID.Int64)
		sat.NoradID = &v
	}
	if tleLine1.Valid {
		sat.TLELine1 = &tleLine1.String
	}
	if tleLine2.Valid {
		sat.TLELine2 = &tleLine2.String
	}
	if tleEpoch.Valid {
		t := time.Unix(tleEpoch.Int64, 0)
		sat.TLEEpoch = &t
	}
	return sat, nil
}

func scanCommand(row scanner) (domain.Command, error) {
	var cmd domain.Command
	var payload, result sql.NullString
	var status string
	var scheduledAt, sentAt, startedAt, completedAt sql.NullInt64
	var insertedAt int64

	err := row.Scan(&cmd.ID, &cmd.SatelliteID, &cmd.Type, &payload, &cmd.Priority,
		&scheduledAt, &cmd.TimeoutMS, &status, &sentAt, &startedAt, &completedAt,
		&result, &cmd.Error, &cmd.RetryCount, &insertedAt)
	if err != nil {
		return domain.Command{}, err
	}

	cmd.Status = domain.CommandStatus(status)
	cmd.InsertedAt = time.Unix(insertedAt, 0)
	if payload.Valid && payload.String != "" {
		_ = json.Unmarshal([]byte(payload.String), &cmd.Payload)
	}
	if result.Valid && result.String != "" && result.String != "null" {
		_ = json.Unmarshal([]byte(result.String), &cmd.Result)
	}
	cmd.ScheduledAt = nullableIntToTime(scheduledAt)
	cmd.SentAt = nullableIntToTime(sentAt)
	cmd.StartedAt = nullableIntToTime(startedAt)
	cmd.CompletedAt = nullableIntToTime(completedAt)
	return cmd, nil
}

func scanAlarm(row scanner) (domain.Alarm, error) {
	var alarm domain.Alarm
	var severity, status string
	var details sql.NullString
	var createdAt int64
	var ackAt, resolvedAt sql.NullInt64

	err := row.Scan(&alarm.ID, &alarm.Type, &severity, &alarm.Message, &alarm.Source,
		&details, &status, &createdAt, &ackAt, &alarm.AcknowledgedBy, &resolvedAt, &alarm.ResolvedBy)
	if err != nil {
		return domain.Alarm{}, err
	}

	alarm.Severity = domain.AlarmSeverity(severity)
	alarm.Status = domain.AlarmStatus(status)
	alarm.CreatedAt = time.Unix(createdAt, 0)
	if details.Valid && details.String != "" && details.String != "null" {
		_ = json.Unmarshal([]byte(details.String), &alarm.Details)
	}
	alarm.AcknowledgedAt = nullableIntToTime(ackAt)
	alarm.ResolvedAt = nullableIntToTime(resolvedAt)
	return alarm, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableStr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullableTimePtr(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func nullableIntToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

var _ domain.Store = (*Store)(nil)
