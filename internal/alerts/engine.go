package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"vitals/internal/models"
	"vitals/internal/notifier"
)

// OnAlert runs synchronously per generated alert, before Evaluate returns.
type OnAlert func(ctx context.Context, a *models.Alert)

// Engine classifies samples against a fixed rule set. It keeps no state
// between samples; everything it emits is derived from (sample, rules).
type Engine struct {
	rules      []models.AlertRule
	notify     *notifier.Telegram
	onAlert    OnAlert
	log        *slog.Logger
	retryDelay time.Duration
}

func NewEngine(rules []models.AlertRule, notify *notifier.Telegram, onAlert OnAlert, logger *slog.Logger) *Engine {
	return &Engine{
		rules:      rules,
		notify:     notify,
		onAlert:    onAlert,
		log:        logger,
		retryDelay: 300 * time.Millisecond,
	}
}

// Evaluate returns every alert the sample triggers, in rule order. A value
// meeting both thresholds is classified critical only. Rules whose metric key
// the sample does not carry are skipped, not errors.
func (e *Engine) Evaluate(ctx context.Context, s *models.Sample) []models.Alert {
	out := []models.Alert{}
	for _, r := range e.rules {
		if !r.Enabled {
			continue
		}
		value, ok := metricValue(s, r.MetricKey)
		if !ok || math.IsNaN(value) {
			continue
		}
		var severity models.Severity
		var threshold float64
		switch {
		case value >= r.CriticalThreshold:
			severity, threshold = models.SeverityCritical, r.CriticalThreshold
		case value >= r.WarningThreshold:
			severity, threshold = models.SeverityWarning, r.WarningThreshold
		default:
			continue
		}
		a := models.Alert{
			MetricKey: r.MetricKey,
			Value:     value,
			Severity:  severity,
			Threshold: threshold,
			Message:   fmt.Sprintf("%s %s value=%.2f crossed threshold %.2f", strings.ToUpper(string(severity)), r.MetricKey, value, threshold),
			CreatedAt: s.TS,
		}
		if s.ID > 0 {
			id := s.ID
			a.SampleID = &id
		}
		if e.onAlert != nil {
			e.onAlert(ctx, &a)
		}
		if severity == models.SeverityCritical && e.notify != nil && e.notify.Enabled() {
			e.sendNotification(ctx, a.Message)
		}
		out = append(out, a)
	}
	return out
}

func (e *Engine) sendNotification(ctx context.Context, msg string) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = e.notify.Send(ctx, msg); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt) * e.retryDelay)
	}
	e.log.Warn("notify failed", "err", err)
}

func metricValue(s *models.Sample, key string) (float64, bool) {
	switch key {
	case "cpu_percent":
		return s.CPUPercent, true
	case "ram_percent":
		return s.RAMPercent, true
	case "disk_percent":
		return s.DiskPercent, true
	case "net_tx_rate":
		return float64(s.NetTxRate), true
	case "net_rx_rate":
		return float64(s.NetRxRate), true
	case "process_count":
		return float64(s.ProcessCount), true
	default:
		return 0, false
	}
}
