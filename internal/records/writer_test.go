package records

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger { return slog.Default() }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestWriter_CreateThenUpdateInOrder(t *testing.T) {
	repo := NewMemoryRepo()
	w := NewWriter(repo, testLogger(), WriterConfig{BaseDelay: time.Millisecond})
	defer w.Close()

	started := time.Unix(1700000000, 0).UTC()
	w.EnqueueCreate(CallRecord{
		WorkspaceID: "w1", AgentID: "a1", SessionID: "s1",
		Direction: "outbound", CounterpartNumber: "+15551234567", StartedAt: started,
	})
	ended := started.Add(30 * time.Second)
	dur := 30
	w.EnqueueUpdate("w1", "s1", Update{EndedAt: &ended, DurationSeconds: &dur})

	waitFor(t, func() bool {
		id, ok := w.RecordID("s1")
		if !ok {
			return false
		}
		rec, ok := repo.Get("w1", id)
		return ok && rec.EndedAt != nil && rec.DurationSeconds == 30
	})
}

func TestWriter_RetriesTransientFailures(t *testing.T) {
	repo := NewMemoryRepo()
	repo.FailNext = 2
	repo.FailErr = errors.New("connection reset")

	w := NewWriter(repo, testLogger(), WriterConfig{BaseDelay: time.Millisecond, MaxAttempts: 5})
	defer w.Close()

	w.EnqueueCreate(CallRecord{WorkspaceID: "w1", AgentID: "a1", SessionID: "s1", Direction: "inbound", StartedAt: time.Now()})

	waitFor(t, func() bool {
		_, ok := w.RecordID("s1")
		return ok
	})
}

func TestWriter_CreateIdempotentPerSession(t *testing.T) {
	repo := NewMemoryRepo()
	rec := CallRecord{WorkspaceID: "w1", AgentID: "a1", SessionID: "s1", Direction: "inbound", StartedAt: time.Now()}

	id1, err := repo.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	id2, err := repo.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected idempotent create, got %s vs %s", id1, id2)
	}
}

func TestMemoryRepo_FindActiveOrUnwrapped(t *testing.T) {
	repo := NewMemoryRepo()
	id, err := repo.Create(context.Background(), CallRecord{WorkspaceID: "w1", AgentID: "a1", SessionID: "s1", Direction: "inbound", StartedAt: time.Now()})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, err := repo.Create(context.Background(), CallRecord{WorkspaceID: "w1", AgentID: "a2", SessionID: "s2", Direction: "inbound", StartedAt: time.Now()}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	open, err := repo.FindActiveOrUnwrapped(context.Background(), "w1", "a1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(open) != 1 || open[0].ID != id {
		t.Fatalf("expected a1's unwrapped record, got %+v", open)
	}

	// Disposition recorded -> no longer surfaced.
	disp := "d1"
	if err := repo.Update(context.Background(), "w1", id, Update{DispositionID: &disp}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	open, err = repo.FindActiveOrUnwrapped(context.Background(), "w1", "a1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no unwrapped records after disposition, got %+v", open)
	}
}
