package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection and provides logging methods
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		// Checkpoint the WAL so all data reaches the main database file
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

// Flush forces a WAL checkpoint to write pending changes to the main database file
func (db *DB) Flush() error {
	if db.conn != nil {
		// RESTART mode forces a checkpoint even with active readers
		_, err := db.conn.Exec("PRAGMA wal_checkpoint(RESTART)")
		return err
	}
	return nil
}

// initSchema creates the database tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
	-- Router lifecycle transitions (status changes, readiness, failures)
	CREATE TABLE IF NOT EXISTS router_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Tunnel lifecycle events
	CREATE TABLE IF NOT EXISTS tunnel_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tunnel_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Daemon lifecycle events
	CREATE TABLE IF NOT EXISTS daemon_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Periodic network statistics samples
	CREATE TABLE IF NOT EXISTS stat_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		active_tunnels INTEGER NOT NULL,
		inbound_bandwidth INTEGER NOT NULL,
		outbound_bandwidth INTEGER NOT NULL,
		peers_count INTEGER NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_router_events_timestamp ON router_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_tunnel_events_timestamp ON tunnel_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_tunnel_events_tunnel ON tunnel_events(tunnel_id);
	CREATE INDEX IF NOT EXISTS idx_daemon_events_timestamp ON daemon_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_stat_samples_timestamp ON stat_samples(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// RouterEvent represents a router lifecycle transition
type RouterEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogRouterEvent logs a router lifecycle transition to the database
func (db *DB) LogRouterEvent(eventType, details string) error {
	_, err := db.conn.Exec(
		`INSERT INTO router_events (event_type, details, timestamp)
		 VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
	return err
}

// TunnelEvent represents a tunnel lifecycle event
type TunnelEvent struct {
	ID        int64
	TunnelID  string
	EventType string
	Details   string
	Timestamp time.Time
}

// LogTunnelEvent logs a tunnel lifecycle event to the database
func (db *DB) LogTunnelEvent(tunnelID, eventType, details string) error {
	// Retry briefly if database is locked (3 attempts, 5ms between).
	// Best-effort, must not block daemon shutdown.
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(
			`INSERT INTO tunnel_events (tunnel_id, event_type, details, timestamp)
			 VALUES (?, ?, ?, ?)`,
			tunnelID, eventType, details, time.Now(),
		)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to log tunnel event after %d retries: database locked", maxRetries)
}

// DaemonEvent represents a daemon lifecycle event
type DaemonEvent struct {
	ID        int64
	EventType string
	Details   string
	Timestamp time.Time
}

// LogDaemonEvent logs a daemon lifecycle event to the database
func (db *DB) LogDaemonEvent(eventType, details string) error {
	_, err := db.conn.Exec(
		`INSERT INTO daemon_events (event_type, details, timestamp)
		 VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
	return err
}

// StatSample is one point of network statistics history
type StatSample struct {
	ID                int64
	ActiveTunnels     int
	InboundBandwidth  int64
	OutboundBandwidth int64
	PeersCount        int
	Timestamp         time.Time
}

// RecordStatSample stores one network statistics sample
func (db *DB) RecordStatSample(activeTunnels int, inbound, outbound int64, peers int) error {
	_, err := db.conn.Exec(
		`INSERT INTO stat_samples (active_tunnels, inbound_bandwidth, outbound_bandwidth, peers_count, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		activeTunnels, inbound, outbound, peers, time.Now(),
	)
	return err
}

// GetRecentRouterEvents retrieves recent router lifecycle transitions
func (db *DB) GetRecentRouterEvents(limit int) ([]RouterEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM router_events
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []RouterEvent
	for rows.Next() {
		var e RouterEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetRecentTunnelEvents retrieves recent tunnel events
func (db *DB) GetRecentTunnelEvents(limit int) ([]TunnelEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, tunnel_id, event_type, details, timestamp
		 FROM tunnel_events
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []TunnelEvent
	for rows.Next() {
		var e TunnelEvent
		if err := rows.Scan(&e.ID, &e.TunnelID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetRecentDaemonEvents retrieves recent daemon events
func (db *DB) GetRecentDaemonEvents(limit int) ([]DaemonEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM daemon_events
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []DaemonEvent
	for rows.Next() {
		var e DaemonEvent
		if err := rows.Scan(&e.ID, &e.EventType, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetRecentStatSamples retrieves recent network statistics samples
func (db *DB) GetRecentStatSamples(limit int) ([]StatSample, error) {
	rows, err := db.conn.Query(
		`SELECT id, active_tunnels, inbound_bandwidth, outbound_bandwidth, peers_count, timestamp
		 FROM stat_samples
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []StatSample
	for rows.Next() {
		var s StatSample
		if err := rows.Scan(&s.ID, &s.ActiveTunnels, &s.InboundBandwidth, &s.OutboundBandwidth, &s.PeersCount, &s.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// PruneStatSamples deletes samples older than the retention window
func (db *DB) PruneStatSamples(retention time.Duration) error {
	_, err := db.conn.Exec(
		`DELETE FROM stat_samples WHERE timestamp < ?`,
		time.Now().Add(-retention),
	)
	return err
}
