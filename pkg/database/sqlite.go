package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/powerhive/minerprobe/pkg/discovery"
	"github.com/powerhive/minerprobe/pkg/miner"
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite repository.
// The dbPath can be a file path or ":memory:" for in-memory database.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

// migrate runs database migrations.
func (r *SQLiteRepository) migrate() error {
	var currentVersion int
	err := r.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		// Table doesn't exist, run initial schema
		if _, err := r.db.Exec(Schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		_, err = r.db.Exec("INSERT INTO schema_version (version) VALUES (?)", SchemaVersion)
		return err
	}

	for v := currentVersion + 1; v <= SchemaVersion; v++ {
		migration, ok := Migrations[v]
		if !ok {
			continue
		}
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", v, err)
		}
		if _, err := r.db.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", v, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

// =============================================================================
// Miners
// =============================================================================

const minerColumns = `id, mac_address, ip_address, hostname, serial_number, make, model,
	firmware_type, firmware_version, created_at, updated_at, last_seen_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMiner(row rowScanner) (*Miner, error) {
	m := &Miner{}
	err := row.Scan(&m.ID, &m.MACAddress, &m.IPAddress, &m.Hostname, &m.SerialNumber, &m.Make, &m.Model,
		&m.FirmwareType, &m.FirmwareVersion, &m.CreatedAt, &m.UpdatedAt, &m.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *SQLiteRepository) GetMinerByMAC(ctx context.Context, mac string) (*Miner, error) {
	m, err := scanMiner(r.db.QueryRowContext(ctx,
		`SELECT `+minerColumns+` FROM miners WHERE mac_address = ?`, normalizeKey(mac)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *SQLiteRepository) GetMinerByIP(ctx context.Context, ip string) (*Miner, error) {
	m, err := scanMiner(r.db.QueryRowContext(ctx,
		`SELECT `+minerColumns+` FROM miners WHERE ip_address = ? ORDER BY last_seen_at DESC LIMIT 1`, ip))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *SQLiteRepository) ListMiners(ctx context.Context) ([]*Miner, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+minerColumns+` FROM miners ORDER BY ip_address`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var miners []*Miner
	for rows.Next() {
		m, err := scanMiner(rows)
		if err != nil {
			return nil, err
		}
		miners = append(miners, m)
	}
	return miners, rows.Err()
}

// UpsertMiner inserts or updates a miner by MAC address and sets m.ID.
// Optional fields that are nil keep their stored values.
func (r *SQLiteRepository) UpsertMiner(ctx context.Context, m *Miner) error {
	now := time.Now().UTC()
	m.MACAddress = normalizeKey(m.MACAddress)
	m.UpdatedAt = now
	m.LastSeenAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO miners (mac_address, ip_address, hostname, serial_number, make, model,
			firmware_type, firmware_version, created_at, updated_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mac_address) DO UPDATE SET
			ip_address = excluded.ip_address,
			hostname = COALESCE(excluded.hostname, miners.hostname),
			serial_number = COALESCE(excluded.serial_number, miners.serial_number),
			make = excluded.make,
			model = COALESCE(excluded.model, miners.model),
			firmware_type = excluded.firmware_type,
			firmware_version = COALESCE(excluded.firmware_version, miners.firmware_version),
			updated_at = excluded.updated_at,
			last_seen_at = excluded.last_seen_at`,
		m.MACAddress, m.IPAddress, m.Hostname, m.SerialNumber, m.Make, m.Model,
		m.FirmwareType, m.FirmwareVersion, now, now, now)
	if err != nil {
		return err
	}

	return r.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM miners WHERE mac_address = ?`, m.MACAddress).Scan(&m.ID, &m.CreatedAt)
}

func (r *SQLiteRepository) DeleteMiner(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM miners WHERE id = ?`, id)
	return err
}

// =============================================================================
// Snapshots
// =============================================================================

const snapshotColumns = `id, miner_id, scan_id, ip_address, taken_at, is_mining,
	hashrate_ths, expected_ths, wattage, efficiency, avg_temp, data`

const joinedSnapshotColumns = `s.id, s.miner_id, s.scan_id, s.ip_address, s.taken_at, s.is_mining,
	s.hashrate_ths, s.expected_ths, s.wattage, s.efficiency, s.avg_temp, s.data`

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	s := &Snapshot{}
	var data string
	err := row.Scan(&s.ID, &s.MinerID, &s.ScanID, &s.IPAddress, &s.TakenAt, &s.IsMining,
		&s.HashrateTHs, &s.ExpectedTHs, &s.Wattage, &s.Efficiency, &s.AvgTemp, &data)
	if err != nil {
		return nil, err
	}
	s.Data = &miner.MinerData{}
	if err := json.Unmarshal([]byte(data), s.Data); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.ID, err)
	}
	return s, nil
}

// SaveSnapshot records data under its miner, creating the miner on first
// sight. scanID may be empty.
func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, data *miner.MinerData, scanID string) (*Snapshot, error) {
	if data == nil {
		return nil, ErrNilData
	}

	m := MinerFromData(data)
	if err := r.UpsertMiner(ctx, m); err != nil {
		return nil, fmt.Errorf("upsert miner %s: %w", m.MACAddress, err)
	}

	s := SnapshotFromData(data)
	s.ID = uuid.NewString()
	s.MinerID = m.ID
	if scanID != "" {
		s.ScanID = &scanID
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.MinerID, s.ScanID, s.IPAddress, s.TakenAt, s.IsMining,
		s.HashrateTHs, s.ExpectedTHs, s.Wattage, s.Efficiency, s.AvgTemp, string(raw))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SQLiteRepository) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	s, err := scanSnapshot(r.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// History returns up to limit snapshots of a miner, newest first. A limit
// of zero or less returns all of them.
func (r *SQLiteRepository) History(ctx context.Context, mac string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.querySnapshots(ctx, `
		SELECT `+joinedSnapshotColumns+`
		FROM snapshots s JOIN miners m ON m.id = s.miner_id
		WHERE m.mac_address = ?
		ORDER BY s.taken_at DESC, s.rowid DESC
		LIMIT ?`, normalizeKey(mac), limit)
}

// HistoryRange returns the snapshots of a miner taken in [from, to], oldest first.
func (r *SQLiteRepository) HistoryRange(ctx context.Context, mac string, from, to time.Time) ([]*Snapshot, error) {
	return r.querySnapshots(ctx, `
		SELECT `+joinedSnapshotColumns+`
		FROM snapshots s JOIN miners m ON m.id = s.miner_id
		WHERE m.mac_address = ? AND s.taken_at >= ? AND s.taken_at <= ?
		ORDER BY s.taken_at ASC, s.rowid ASC`, normalizeKey(mac), from.UTC(), to.UTC())
}

func (r *SQLiteRepository) querySnapshots(ctx context.Context, query string, args ...any) ([]*Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]*Snapshot, 0)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// DeleteSnapshotsBefore prunes old snapshots and reports how many were removed.
func (r *SQLiteRepository) DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE taken_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// =============================================================================
// Scans
// =============================================================================

func (r *SQLiteRepository) SaveScan(ctx context.Context, res *discovery.ScanResult) error {
	if res == nil {
		return ErrNilData
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode scan: %w", err)
	}
	errs, err := json.Marshal(res.Errors)
	if err != nil {
		return fmt.Errorf("encode scan errors: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scans (id, target, started_at, duration_ms, scanned_ips, responsive_hosts,
			miners_found, errors, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			duration_ms = excluded.duration_ms,
			responsive_hosts = excluded.responsive_hosts,
			miners_found = excluded.miners_found,
			errors = excluded.errors,
			result = excluded.result`,
		res.ID, res.Target, res.StartedAt.UTC(), res.Duration.Milliseconds(), res.ScannedIPs,
		res.ResponsiveHosts, len(res.Miners), string(errs), string(raw))
	return err
}

// GetScan returns the stored result of a scan, or nil when it is unknown.
func (r *SQLiteRepository) GetScan(ctx context.Context, id string) (*discovery.ScanResult, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT result FROM scans WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	res := &discovery.ScanResult{}
	if err := json.Unmarshal([]byte(raw), res); err != nil {
		return nil, fmt.Errorf("decode scan %s: %w", id, err)
	}
	return res, nil
}

// ListScans returns scan summaries, newest first.
func (r *SQLiteRepository) ListScans(ctx context.Context, limit int) ([]*Scan, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, target, started_at, duration_ms, scanned_ips, responsive_hosts, miners_found, errors
		FROM scans ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scans := make([]*Scan, 0)
	for rows.Next() {
		s := &Scan{}
		var (
			durationMS int64
			errs       string
		)
		if err := rows.Scan(&s.ID, &s.Target, &s.StartedAt, &durationMS, &s.ScannedIPs,
			&s.ResponsiveHosts, &s.MinersFound, &errs); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(durationMS) * time.Millisecond
		if err := json.Unmarshal([]byte(errs), &s.Errors); err != nil {
			return nil, fmt.Errorf("decode scan errors %s: %w", s.ID, err)
		}
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

var _ Repository = (*SQLiteRepository)(nil)
