package maintenance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/report-vault/internal/kv"
	"github.com/report-vault/internal/versions"
)

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{name: "default schedule", schedule: "", wantRunning: true},
		{name: "every descriptor", schedule: "@every 1m", wantRunning: true},
		{name: "standard cron", schedule: "0 3 * * *", wantRunning: true},
		{name: "invalid schedule", schedule: "sometimes", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := versions.New(kv.NewMemoryBackend(), versions.DefaultOptions())
			s := NewScheduler(store, tt.schedule, zerolog.Nop())

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := s.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Fatalf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if s.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", s.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning {
				next := s.NextRun()
				if next == nil || !next.After(time.Now()) {
					t.Errorf("Expected a future run, got %v", next)
				}
				s.Stop()
				if s.IsRunning() {
					t.Error("Expected scheduler stopped")
				}
			}
		})
	}
}

func seed(t *testing.T, store *versions.Store, doc string, autos int) {
	t.Helper()
	for i := 0; i < autos; i++ {
		_, err := store.Append(context.Background(), doc, fmt.Sprintf("<p>%s %d</p>", doc, i), versions.Metadata{IsAutoSave: true})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if _, err := store.Append(context.Background(), doc, "<p>"+doc+" signed off</p>", versions.Metadata{}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}

func TestRunOnceEvictsAboveThreshold(t *testing.T) {
	ctx := context.Background()
	opts := versions.DefaultOptions()
	opts.AutoEvict = false
	opts.KeepAutoSaves = 1
	store := versions.New(kv.NewMemoryBackend(), opts)

	seed(t, store, "alpha", 6)
	seed(t, store, "beta", 4)

	usage, _ := store.StorageUsage(ctx)
	store.SetQuota(usage.UsedBytes*100/95, 90)

	report, err := NewScheduler(store, "", zerolog.Nop()).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.Skipped {
		t.Fatal("Expected maintenance to run")
	}
	if report.Evicted != 8 {
		t.Errorf("Expected 8 evicted, got %d", report.Evicted)
	}
	if report.After.UsedBytes >= report.Before.UsedBytes {
		t.Errorf("Expected usage to drop, %d -> %d", report.Before.UsedBytes, report.After.UsedBytes)
	}

	for _, doc := range []string{"alpha", "beta"} {
		list, _ := store.List(ctx, doc)
		if len(list) != 2 {
			t.Errorf("Expected manual save plus newest auto-save for %s, got %d", doc, len(list))
		}
	}
}

func TestRunOnceSkipsBelowThreshold(t *testing.T) {
	store := versions.New(kv.NewMemoryBackend(), versions.DefaultOptions())
	seed(t, store, "alpha", 3)

	report, err := NewScheduler(store, "", zerolog.Nop()).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if !report.Skipped || report.Evicted != 0 {
		t.Errorf("Expected a skipped run, got %+v", report)
	}
}

type failingStore struct {
	usage versions.StorageUsage
}

func (f failingStore) StorageUsage(ctx context.Context) (versions.StorageUsage, error) {
	return f.usage, nil
}

func (f failingStore) WarnPercent() float64 { return 90 }

func (f failingStore) EvictAll(ctx context.Context) (int, error) {
	return 2, errors.New("backend unavailable")
}

func TestRunOnceReportsEvictionFailure(t *testing.T) {
	store := failingStore{versions.StorageUsage{UsedBytes: 95, CapacityBytes: 100, Percentage: 95}}

	report, err := NewScheduler(store, "", zerolog.Nop()).RunOnce(context.Background())
	if err == nil {
		t.Fatal("Expected an error")
	}
	if report.Evicted != 2 {
		t.Errorf("Expected partial progress reported, got %d", report.Evicted)
	}
}
