package domain

import (
	"testing"
	"time"
)

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIdempotencyRecordReplayAndExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	processing := IdempotencyRecord{Status: IdempotencyStatusProcessing, TTLAt: now.Add(time.Minute)}
	if processing.Replayable() {
		t.Fatal("processing record must not be replayable")
	}
	if processing.Expired(now) {
		t.Fatal("record with future ttl must not be expired")
	}

	done := IdempotencyRecord{Status: IdempotencyStatusDone, TTLAt: now}
	if !done.Replayable() {
		t.Fatal("done record must be replayable")
	}
	if !done.Expired(now) {
		t.Fatal("record must expire exactly at ttl")
	}
}
