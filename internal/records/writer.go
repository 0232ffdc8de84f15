package records

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Writer applies record mutations asynchronously so persistence hiccups never
// block a call-state transition. Jobs run on a single worker goroutine in
// submission order, which guarantees the create for a session lands before
// any update for that session.
//
// Failed jobs are retried with exponential backoff up to MaxAttempts, then
// dropped with an error log. The call itself is already over at that point;
// losing the row is a reporting gap, not a correctness problem for the agent.
type Writer struct {
	sink Sink
	log  *slog.Logger

	baseDelay   time.Duration
	maxAttempts int

	mu  sync.Mutex
	ids map[string]string // session id -> record id, filled as creates land

	jobs chan job
	wg   sync.WaitGroup
}

type job struct {
	sessionID string
	create    *CallRecord
	update    *Update
	workspace string
}

// WriterConfig tunes retry behavior. Zero values get safe defaults.
type WriterConfig struct {
	BaseDelay   time.Duration
	MaxAttempts int
	QueueSize   int
}

func NewWriter(sink Sink, log *slog.Logger, cfg WriterConfig) *Writer {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	w := &Writer{
		sink:        sink,
		log:         log,
		baseDelay:   cfg.BaseDelay,
		maxAttempts: cfg.MaxAttempts,
		ids:         map[string]string{},
		jobs:        make(chan job, cfg.QueueSize),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// EnqueueCreate schedules record creation for a session.
func (w *Writer) EnqueueCreate(rec CallRecord) {
	r := rec
	w.enqueue(job{sessionID: rec.SessionID, workspace: rec.WorkspaceID, create: &r})
}

// EnqueueUpdate schedules a partial update addressed by session id. The
// record id is resolved when the job runs, after the create has landed.
func (w *Writer) EnqueueUpdate(workspaceID, sessionID string, upd Update) {
	u := upd
	w.enqueue(job{sessionID: sessionID, workspace: workspaceID, update: &u})
}

// RecordID returns the persisted record id for a session, if known yet.
func (w *Writer) RecordID(sessionID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.ids[sessionID]
	return id, ok
}

// Remember seeds the session-to-record mapping for rows that already exist,
// e.g. unwrapped records recovered at agent-session startup.
func (w *Writer) Remember(sessionID, recordID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ids[sessionID] = recordID
}

// Forget drops the session-to-record mapping once wrap-up has completed.
func (w *Writer) Forget(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.ids, sessionID)
}

// Close stops accepting jobs and waits for the queue to drain.
func (w *Writer) Close() {
	close(w.jobs)
	w.wg.Wait()
}

func (w *Writer) enqueue(j job) {
	select {
	case w.jobs <- j:
	default:
		// Queue full. Dropping beats blocking the coordinator's event loop.
		w.log.Error("record writer queue full, dropping job",
			"session_id", j.sessionID, "is_create", j.create != nil)
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	for j := range w.jobs {
		w.process(j)
	}
}

func (w *Writer) process(j job) {
	ctx := context.Background()
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(w.baseDelay << (attempt - 2))
		}
		if j.create != nil {
			id, err := w.sink.Create(ctx, *j.create)
			if err == nil {
				w.mu.Lock()
				w.ids[j.sessionID] = id
				w.mu.Unlock()
				return
			}
			lastErr = err
		} else {
			id, ok := w.RecordID(j.sessionID)
			if !ok {
				// Create never landed; nothing to address the update to.
				w.log.Error("record update dropped, no record for session",
					"session_id", j.sessionID)
				return
			}
			if err := w.sink.Update(ctx, j.workspace, id, *j.update); err == nil {
				return
			} else {
				lastErr = err
			}
		}
	}
	w.log.Error("record write abandoned after retries",
		"session_id", j.sessionID, "is_create", j.create != nil,
		"attempts", w.maxAttempts, "err", lastErr)
}
