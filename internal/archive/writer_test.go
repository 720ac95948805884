package archive

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/goalpost/realtime/internal/router"
)

// fakeDB records every SendBatch call and succeeds.
type fakeDB struct {
	mu      sync.Mutex
	ctxErrs []error // ctx.Err() observed per SendBatch call
	rows    int
}

func (d *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctxErrs = append(d.ctxErrs, ctx.Err())
	d.rows += b.Len()
	return &fakeBatchResults{}
}

type fakeBatchResults struct{}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, nil }
func (r *fakeBatchResults) Query() (pgx.Rows, error)         { return nil, nil }
func (r *fakeBatchResults) QueryRow() pgx.Row                { return nil }
func (r *fakeBatchResults) Close() error                     { return nil }

func TestWriter_Transform(t *testing.T) {
	w := NewWriter(DefaultConfig(), "archiver-1", nil, nil)

	receivedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	msg := router.Message{
		Type:       "task_update",
		Topic:      "task-42",
		Payload:    json.RawMessage(`{"id":"task-42","status":"running"}`),
		ServerTime: "2025-06-01T12:00:00Z",
		ReceivedAt: receivedAt,
	}

	row := w.transform(msg)

	if row.ID == uuid.Nil {
		t.Error("row ID should be assigned")
	}
	if row.InstanceID != "archiver-1" {
		t.Errorf("InstanceID = %q, want archiver-1", row.InstanceID)
	}
	if row.MsgType != "task_update" {
		t.Errorf("MsgType = %q, want task_update", row.MsgType)
	}
	if row.Topic != "task-42" {
		t.Errorf("Topic = %q, want task-42", row.Topic)
	}
	if string(row.Payload) != `{"id":"task-42","status":"running"}` {
		t.Errorf("Payload = %s", row.Payload)
	}
	if row.ReceivedAt != receivedAt.UnixMicro() {
		t.Errorf("ReceivedAt = %d, want %d", row.ReceivedAt, receivedAt.UnixMicro())
	}
}

func TestWriter_HandleMessageAddsToBatch(t *testing.T) {
	cfg := Config{
		BatchSize:     100, // large batch so no auto-flush
		FlushInterval: time.Hour,
		BufferSize:    10,
	}
	w := NewWriter(cfg, "archiver-1", nil, nil)

	w.handleMessage(router.Message{Type: "task_update", Topic: "task-1", ReceivedAt: time.Now()})
	w.handleMessage(router.Message{Type: "agent_update", ReceivedAt: time.Now()})

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	if len(w.batch) != 2 {
		t.Errorf("batch holds %d rows, want 2", len(w.batch))
	}
}

func TestWriter_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
		BufferSize:    10,
	}

	// No database: this tests the goroutine lifecycle only.
	w := NewWriter(cfg, "archiver-1", nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestWriter_StopFlushesPendingBatch(t *testing.T) {
	cfg := Config{
		BatchSize:     100, // large batch so rows are still pending at Stop
		FlushInterval: time.Hour,
		BufferSize:    10,
	}
	db := &fakeDB{}
	w := NewWriter(cfg, "archiver-1", db, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	w.Enqueue(router.Message{Type: "task_update", Topic: "task-1", ReceivedAt: time.Now()})
	w.Enqueue(router.Message{Type: "agent_update", ReceivedAt: time.Now()})

	// Wait for the consume loop to batch both rows.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		w.batchMu.Lock()
		n := len(w.batch)
		w.batchMu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if db.rows != 2 {
		t.Errorf("final flush wrote %d rows, want 2", db.rows)
	}
	for i, err := range db.ctxErrs {
		if err != nil {
			t.Errorf("SendBatch call %d ran on a dead context: %v", i, err)
		}
	}
	if got := w.Stats().Inserts; got != 2 {
		t.Errorf("Inserts = %d, want 2", got)
	}
}

func TestWriter_EnqueueDropsOnFullBuffer(t *testing.T) {
	cfg := Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
		BufferSize:    2,
	}
	// Not started: nothing drains the buffer.
	w := NewWriter(cfg, "archiver-1", nil, nil)

	for i := 0; i < 5; i++ {
		w.Enqueue(router.Message{Type: "task_update", ReceivedAt: time.Now()})
	}

	if got := w.Stats().Dropped; got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
}

func TestWriter_DefaultsApplied(t *testing.T) {
	w := NewWriter(Config{}, "archiver-1", nil, nil)

	def := DefaultConfig()
	if w.cfg.BatchSize != def.BatchSize {
		t.Errorf("BatchSize = %d, want default %d", w.cfg.BatchSize, def.BatchSize)
	}
	if w.cfg.FlushInterval != def.FlushInterval {
		t.Errorf("FlushInterval = %v, want default %v", w.cfg.FlushInterval, def.FlushInterval)
	}
	if cap(w.input) != def.BufferSize {
		t.Errorf("buffer capacity = %d, want default %d", cap(w.input), def.BufferSize)
	}
}
