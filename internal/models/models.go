package models

import "time"

type Sample struct {
	ID             int64         `json:"id"`
	TS             time.Time     `json:"timestamp"`
	CPUPercent     float64       `json:"cpu_percent"`
	CPUCount       int           `json:"cpu_count"`
	RAMTotalBytes  int64         `json:"ram_total_bytes"`
	RAMUsedBytes   int64         `json:"ram_used_bytes"`
	RAMPercent     float64       `json:"ram_percent"`
	DiskTotalBytes int64         `json:"disk_total_bytes"`
	DiskUsedBytes  int64         `json:"disk_used_bytes"`
	DiskPercent    float64       `json:"disk_percent"`
	NetTxRate      int64         `json:"net_tx_rate"`
	NetRxRate      int64         `json:"net_rx_rate"`
	NetTxTotal     int64         `json:"net_tx_total"`
	NetRxTotal     int64         `json:"net_rx_total"`
	ProcessCount   int           `json:"process_count"`
	TopProcesses   []ProcessInfo `json:"top_processes"`
}

type ProcessInfo struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Alert struct {
	ID        int64     `json:"id"`
	SampleID  *int64    `json:"sample_id,omitempty"`
	MetricKey string    `json:"metric_key"`
	Value     float64   `json:"value"`
	Severity  Severity  `json:"severity"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type AlertRule struct {
	ID                int64   `json:"id"`
	MetricKey         string  `json:"metric_key"`
	WarningThreshold  float64 `json:"warning_threshold"`
	CriticalThreshold float64 `json:"critical_threshold"`
	Enabled           bool    `json:"enabled"`
}

// RuntimeConfig is a point-in-time copy of the sampler's control state,
// never a live reference.
type RuntimeConfig struct {
	IsSampling      bool    `json:"is_sampling"`
	IsPaused        bool    `json:"is_paused"`
	IntervalSeconds float64 `json:"interval_seconds"`
}

type RollupRow struct {
	Bucket  time.Time `json:"bucket"`
	CPUAvg  float64   `json:"cpu_avg"`
	RAMAvg  float64   `json:"ram_avg"`
	DiskAvg float64   `json:"disk_avg"`
	Count   int64     `json:"count"`
}

type Stats struct {
	TotalSamples     int64            `json:"total_samples"`
	TotalAlerts      int64            `json:"total_alerts"`
	AlertsBySeverity map[string]int64 `json:"alerts_by_severity"`
	LatestSample     *Sample          `json:"latest_sample"`
}
