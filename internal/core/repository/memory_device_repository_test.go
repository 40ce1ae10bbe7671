package repository

import (
	"context"
	"testing"
	"time"

	"devicegateway/internal/core/model"
)

func TestInMemoryDeviceRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryDeviceRepository()
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.RecordFrame(ctx, FrameRecord{IMEI: "a", Header: "1001", RemoteAddr: "1.1.1.1:1", At: t0}); err != nil {
		t.Fatalf("RecordFrame() error: %v", err)
	}
	if err := repo.RecordSubmission(ctx, "b", "payload", t0.Add(time.Minute)); err != nil {
		t.Fatalf("RecordSubmission() error: %v", err)
	}
	if err := repo.RecordFrame(ctx, FrameRecord{IMEI: "a", Header: "2002", At: t0.Add(2 * time.Minute)}); err != nil {
		t.Fatalf("RecordFrame() error: %v", err)
	}

	a, err := repo.FindByIMEI(ctx, "a")
	if err != nil || a == nil {
		t.Fatalf("FindByIMEI(a) = %v, %v", a, err)
	}
	if a.FrameCount != 2 || a.LastHeader != "2002" || !a.FirstSeen.Equal(t0) {
		t.Errorf("device a = %+v", a)
	}

	// Returned records are copies.
	a.FrameCount = 100
	again, _ := repo.FindByIMEI(ctx, "a")
	if again.FrameCount != 2 {
		t.Errorf("stored record was mutated through a returned copy")
	}

	b, _ := repo.FindByIMEI(ctx, "b")
	if b == nil || b.Source != model.SourceAPI || b.LastData != "payload" || b.FrameCount != 0 {
		t.Errorf("device b = %+v", b)
	}

	missing, err := repo.FindByIMEI(ctx, "c")
	if err != nil || missing != nil {
		t.Errorf("FindByIMEI(c) = %v, %v; want nil, nil", missing, err)
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll() error: %v", err)
	}
	if len(all) != 2 || all[0].IMEI != "a" || all[1].IMEI != "b" {
		t.Errorf("FindAll() order = %v", all)
	}
}

func TestDeviceStatus(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	d := model.NewDevice("a", model.SourceTCP, now.Add(-time.Minute))
	if got := d.Status(now, 5*time.Minute); got != "online" {
		t.Errorf("Status() = %q, want online", got)
	}
	if got := d.Status(now, 30*time.Second); got != "offline" {
		t.Errorf("Status() = %q, want offline", got)
	}
}
