package database

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQLite database schema.
const Schema = `
-- Miners table: device identity
-- MAC address is the unique identifier (IPs can change with DHCP).
-- Miners that never reported a MAC are keyed as "ip:<address>".
CREATE TABLE IF NOT EXISTS miners (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    mac_address TEXT NOT NULL UNIQUE,
    ip_address TEXT NOT NULL,
    hostname TEXT,
    serial_number TEXT,
    make TEXT NOT NULL,
    model TEXT,
    firmware_type TEXT NOT NULL,
    firmware_version TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_miners_ip ON miners(ip_address);
CREATE INDEX IF NOT EXISTS idx_miners_make ON miners(make);

-- Telemetry snapshots (time-series)
-- data holds the full normalized record as JSON.
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    miner_id INTEGER NOT NULL,
    scan_id TEXT,
    ip_address TEXT NOT NULL,
    taken_at DATETIME NOT NULL,
    is_mining INTEGER DEFAULT 0,
    hashrate_ths REAL,
    expected_ths REAL,
    wattage REAL,
    efficiency REAL,
    avg_temp REAL,
    data TEXT NOT NULL,
    FOREIGN KEY (miner_id) REFERENCES miners(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_snapshots_miner_time ON snapshots(miner_id, taken_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_scan ON snapshots(scan_id);

-- Network scans
CREATE TABLE IF NOT EXISTS scans (
    id TEXT PRIMARY KEY,
    target TEXT,
    started_at DATETIME NOT NULL,
    duration_ms INTEGER,
    scanned_ips INTEGER,
    responsive_hosts INTEGER,
    miners_found INTEGER,
    errors TEXT,
    result TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Migrations maps a schema version to the statements that upgrade the
// previous version to it.
var Migrations = map[int]string{}
