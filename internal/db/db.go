package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts DATETIME NOT NULL,
			cpu_percent REAL NOT NULL,
			cpu_count INTEGER NOT NULL,
			ram_total_bytes INTEGER NOT NULL,
			ram_used_bytes INTEGER NOT NULL,
			ram_percent REAL NOT NULL,
			disk_total_bytes INTEGER NOT NULL,
			disk_used_bytes INTEGER NOT NULL,
			disk_percent REAL NOT NULL,
			net_tx_rate INTEGER NOT NULL,
			net_rx_rate INTEGER NOT NULL,
			net_tx_total INTEGER NOT NULL,
			net_rx_total INTEGER NOT NULL,
			process_count INTEGER NOT NULL,
			top_processes_json TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sample_id INTEGER,
			metric_key TEXT NOT NULL,
			value REAL NOT NULL,
			severity TEXT NOT NULL,
			threshold REAL NOT NULL,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(sample_id) REFERENCES samples(id) ON DELETE SET NULL
		);`,
		`CREATE TABLE IF NOT EXISTS alert_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			metric_key TEXT NOT NULL UNIQUE,
			warning_threshold REAL NOT NULL,
			critical_threshold REAL NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_severity_created ON alerts(severity, created_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
	}
	return seedDefaultRules(db)
}

func seedDefaultRules(db *sql.DB) error {
	defaults := []struct {
		metricKey  string
		warn, crit float64
	}{
		{"cpu_percent", 75, 90},
		{"ram_percent", 80, 95},
		{"disk_percent", 85, 95},
	}
	for _, r := range defaults {
		_, err := db.Exec(`INSERT INTO alert_rules (metric_key,warning_threshold,critical_threshold,enabled)
			SELECT ?,?,?,1 WHERE NOT EXISTS (SELECT 1 FROM alert_rules WHERE metric_key = ?)`,
			r.metricKey, r.warn, r.crit, r.metricKey)
		if err != nil {
			return err
		}
	}
	return nil
}
