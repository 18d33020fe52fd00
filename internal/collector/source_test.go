package collector

import (
	"context"
	"runtime"
	"testing"

	"vitals/internal/models"
)

func TestRankProcessesSortsAndTruncates(t *testing.T) {
	list := []models.ProcessInfo{
		{PID: 1, Name: "idle", CPUPercent: 0.5},
		{PID: 2, Name: "db", CPUPercent: 42},
		{PID: 3, Name: "web", CPUPercent: 42},
		{PID: 4, Name: "batch", CPUPercent: 80},
	}
	got := rankProcesses(list, 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Name != "batch" {
		t.Fatalf("top process = %q, want batch", got[0].Name)
	}
	// equal CPU keeps enumeration order
	if got[1].PID != 2 || got[2].PID != 3 {
		t.Fatalf("tie order = %d,%d, want 2,3", got[1].PID, got[2].PID)
	}
}

func TestClampPercent(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-3, 0},
		{0, 0},
		{55.5, 55.5},
		{100, 100},
		{104.2, 100},
	}
	for _, tc := range cases {
		if got := clampPercent(tc.in); got != tc.want {
			t.Fatalf("clampPercent(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSystemSourceCollectBounds(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("host metrics test only runs on unix")
	}
	src := NewSystemSource("/", 3)
	s, err := src.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	for name, v := range map[string]float64{
		"cpu_percent":  s.CPUPercent,
		"ram_percent":  s.RAMPercent,
		"disk_percent": s.DiskPercent,
	} {
		if v < 0 || v > 100 {
			t.Fatalf("%s = %v, want [0,100]", name, v)
		}
	}
	if s.CPUCount <= 0 {
		t.Fatalf("cpu_count = %d, want > 0", s.CPUCount)
	}
	if s.RAMTotalBytes <= 0 || s.RAMUsedBytes < 0 {
		t.Fatalf("ram bytes = %d/%d", s.RAMUsedBytes, s.RAMTotalBytes)
	}
	if s.ProcessCount <= 0 {
		t.Fatalf("process_count = %d, want > 0", s.ProcessCount)
	}
	if len(s.TopProcesses) > 3 {
		t.Fatalf("top processes len = %d, want <= 3", len(s.TopProcesses))
	}
	for i := 1; i < len(s.TopProcesses); i++ {
		if s.TopProcesses[i].CPUPercent > s.TopProcesses[i-1].CPUPercent {
			t.Fatalf("top processes not sorted by cpu: %v", s.TopProcesses)
		}
	}
}
