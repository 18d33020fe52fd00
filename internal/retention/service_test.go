package retention

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"vitals/internal/db"
	"vitals/internal/models"
)

func newTestRepo(t *testing.T) *db.Repository {
	t.Helper()
	sqldb, err := db.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	if err := db.Migrate(sqldb); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db.NewRepository(sqldb)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewServiceRejectsBadSchedule(t *testing.T) {
	if _, err := NewService(newTestRepo(t), 30, "not a cron line", testLogger()); err == nil {
		t.Fatal("want error for invalid schedule")
	}
}

func TestNextRunFollowsSchedule(t *testing.T) {
	svc, err := NewService(newTestRepo(t), 30, "0 3 * * *", testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	from := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)
	if got := svc.NextRun(from); !got.Equal(want) {
		t.Fatalf("next run = %s, want %s", got, want)
	}
}

func TestPruneDeletesOnlyOldRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	old := models.Sample{TS: now.AddDate(0, 0, -31), CPUPercent: 10}
	fresh := models.Sample{TS: now.AddDate(0, 0, -1), CPUPercent: 20}
	if _, err := repo.InsertSample(ctx, old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	freshID, err := repo.InsertSample(ctx, fresh)
	if err != nil {
		t.Fatalf("insert fresh: %v", err)
	}
	if _, err := repo.InsertAlert(ctx, models.Alert{MetricKey: "cpu_percent", Value: 95, Severity: models.SeverityCritical, Threshold: 90, Message: "m", CreatedAt: now.AddDate(0, 0, -31)}); err != nil {
		t.Fatalf("insert old alert: %v", err)
	}

	svc, err := NewService(repo, 30, "0 3 * * *", testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.now = func() time.Time { return now }
	svc.Prune(ctx)

	samples, err := repo.RecentSamples(ctx, 10)
	if err != nil {
		t.Fatalf("recent samples: %v", err)
	}
	if len(samples) != 1 || samples[0].ID != freshID {
		t.Fatalf("samples after prune = %+v, want only fresh row", samples)
	}
	alerts, err := repo.RecentAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("recent alerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("alerts after prune = %d, want 0", len(alerts))
	}
}
