package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vitals/internal/models"
)

var ErrUnknownRollupMode = errors.New("unknown rollup mode")

const sampleCols = `id,ts,cpu_percent,cpu_count,ram_total_bytes,ram_used_bytes,ram_percent,disk_total_bytes,disk_used_bytes,disk_percent,net_tx_rate,net_rx_rate,net_tx_total,net_rx_total,process_count,top_processes_json`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) InsertSample(ctx context.Context, s models.Sample) (int64, error) {
	if s.TopProcesses == nil {
		s.TopProcesses = []models.ProcessInfo{}
	}
	top, _ := json.Marshal(s.TopProcesses)
	res, err := r.db.ExecContext(ctx, `INSERT INTO samples
		(ts,cpu_percent,cpu_count,ram_total_bytes,ram_used_bytes,ram_percent,disk_total_bytes,disk_used_bytes,disk_percent,net_tx_rate,net_rx_rate,net_tx_total,net_rx_total,process_count,top_processes_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.TS.UTC(), s.CPUPercent, s.CPUCount, s.RAMTotalBytes, s.RAMUsedBytes, s.RAMPercent,
		s.DiskTotalBytes, s.DiskUsedBytes, s.DiskPercent, s.NetTxRate, s.NetRxRate, s.NetTxTotal, s.NetRxTotal,
		s.ProcessCount, string(top))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repository) InsertAlert(ctx context.Context, a models.Alert) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO alerts (sample_id,metric_key,value,severity,threshold,message,created_at)
		VALUES (?,?,?,?,?,?,?)`,
		a.SampleID, a.MetricKey, a.Value, string(a.Severity), a.Threshold, a.Message, a.CreatedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repository) LatestSample(ctx context.Context) (models.Sample, error) {
	var s models.Sample
	var top string
	err := r.db.QueryRowContext(ctx, `SELECT `+sampleCols+` FROM samples ORDER BY ts DESC, id DESC LIMIT 1`).
		Scan(&s.ID, &s.TS, &s.CPUPercent, &s.CPUCount, &s.RAMTotalBytes, &s.RAMUsedBytes, &s.RAMPercent,
			&s.DiskTotalBytes, &s.DiskUsedBytes, &s.DiskPercent, &s.NetTxRate, &s.NetRxRate, &s.NetTxTotal, &s.NetRxTotal,
			&s.ProcessCount, &top)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(top), &s.TopProcesses); err != nil {
		return s, fmt.Errorf("decode top processes: %w", err)
	}
	return s, nil
}

func (r *Repository) RecentSamples(ctx context.Context, limit int) ([]models.Sample, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return r.querySamples(ctx, `SELECT `+sampleCols+` FROM samples ORDER BY ts DESC, id DESC LIMIT ?`, limit)
}

func (r *Repository) SamplesInRange(ctx context.Context, since, until time.Time) ([]models.Sample, error) {
	return r.querySamples(ctx, `SELECT `+sampleCols+` FROM samples WHERE ts >= ? AND ts <= ? ORDER BY ts ASC, id ASC`,
		since.UTC(), until.UTC())
}

func (r *Repository) querySamples(ctx context.Context, query string, args ...any) ([]models.Sample, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.Sample{}
	for rows.Next() {
		var s models.Sample
		var top string
		if err := rows.Scan(&s.ID, &s.TS, &s.CPUPercent, &s.CPUCount, &s.RAMTotalBytes, &s.RAMUsedBytes, &s.RAMPercent,
			&s.DiskTotalBytes, &s.DiskUsedBytes, &s.DiskPercent, &s.NetTxRate, &s.NetRxRate, &s.NetTxTotal, &s.NetRxTotal,
			&s.ProcessCount, &top); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(top), &s.TopProcesses); err != nil {
			return nil, fmt.Errorf("decode top processes: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id,sample_id,metric_key,value,severity,threshold,message,created_at
		FROM alerts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.Alert, 0, limit)
	for rows.Next() {
		var a models.Alert
		var sampleID sql.NullInt64
		var severity string
		if err := rows.Scan(&a.ID, &sampleID, &a.MetricKey, &a.Value, &severity, &a.Threshold, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		if sampleID.Valid {
			id := sampleID.Int64
			a.SampleID = &id
		}
		a.Severity = models.Severity(severity)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repository) ListEnabledRules(ctx context.Context) ([]models.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,metric_key,warning_threshold,critical_threshold,enabled
		FROM alert_rules WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AlertRule
	for rows.Next() {
		var rule models.AlertRule
		var enabled int
		if err := rows.Scan(&rule.ID, &rule.MetricKey, &rule.WarningThreshold, &rule.CriticalThreshold, &enabled); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *Repository) Rollup(ctx context.Context, mode string) ([]models.RollupRow, error) {
	var bucketExpr string
	switch mode {
	case "hour":
		bucketExpr = `strftime('%Y-%m-%d %H:00:00', ts)`
	case "day":
		bucketExpr = `strftime('%Y-%m-%d 00:00:00', ts)`
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRollupMode, mode)
	}
	query := fmt.Sprintf(`SELECT %s AS bucket, AVG(cpu_percent), AVG(ram_percent), AVG(disk_percent), COUNT(*)
		FROM samples GROUP BY bucket ORDER BY bucket ASC`, bucketExpr)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []models.RollupRow{}
	for rows.Next() {
		var raw string
		var row models.RollupRow
		if err := rows.Scan(&raw, &row.CPUAvg, &row.RAMAvg, &row.DiskAvg, &row.Count); err != nil {
			return nil, err
		}
		bucket, err := time.Parse("2006-01-02 15:04:05", raw)
		if err != nil {
			return nil, fmt.Errorf("parse bucket %q: %w", raw, err)
		}
		row.Bucket = bucket
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *Repository) Stats(ctx context.Context) (models.Stats, error) {
	st := models.Stats{AlertsBySeverity: map[string]int64{
		string(models.SeverityWarning):  0,
		string(models.SeverityCritical): 0,
	}}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM samples`).Scan(&st.TotalSamples); err != nil {
		return st, err
	}
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&st.TotalAlerts); err != nil {
		return st, err
	}
	rows, err := r.db.QueryContext(ctx, `SELECT severity, COUNT(*) FROM alerts GROUP BY severity`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var severity string
		var n int64
		if err := rows.Scan(&severity, &n); err != nil {
			return st, err
		}
		st.AlertsBySeverity[severity] = n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}
	latest, err := r.LatestSample(ctx)
	if err != nil && err != sql.ErrNoRows {
		return st, err
	}
	if err == nil {
		st.LatestSample = &latest
	}
	return st, nil
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (samplesDeleted, alertsDeleted int64, err error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM samples WHERE ts < ?`, cutoff.UTC())
	if err != nil {
		return 0, 0, err
	}
	samplesDeleted, _ = res.RowsAffected()
	res, err = r.db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return samplesDeleted, 0, err
	}
	alertsDeleted, _ = res.RowsAffected()
	_, _ = r.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	_, _ = r.db.ExecContext(ctx, `PRAGMA optimize`)
	return samplesDeleted, alertsDeleted, nil
}
