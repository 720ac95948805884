package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/goalpost/realtime/internal/router"
)

// DB is the database surface the writer needs. *pgxpool.Pool satisfies it.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config contains batch writer settings.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the capacity of the inbound message channel. When the
	// buffer is full, new messages are dropped and counted.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Metrics contains writer counters.
type Metrics struct {
	Inserts int64 // rows written
	Errors  int64 // failed batch inserts
	Flushes int64 // successful flushes
	Dropped int64 // messages dropped on a full buffer
}

// updateRow is one row of the updates table.
type updateRow struct {
	ID         uuid.UUID
	InstanceID string
	MsgType    string
	Topic      string
	Payload    []byte // JSONB
	ServerTime string
	ReceivedAt int64 // microseconds since epoch
}

// Writer consumes routed domain messages and writes them to the updates
// table in batches.
type Writer struct {
	cfg        Config
	instanceID string
	logger     *slog.Logger

	db    DB
	input chan router.Message

	batch   []updateRow
	batchMu sync.Mutex
	metrics Metrics

	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates an archive writer. instanceID tags every row with the
// archiver that recorded it.
func NewWriter(cfg Config, instanceID string, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	return &Writer{
		cfg:        cfg,
		instanceID: instanceID,
		db:         db,
		logger:     logger,
		input:      make(chan router.Message, cfg.BufferSize),
		batch:      make([]updateRow, 0, cfg.BatchSize),
	}
}

// Enqueue hands one routed message to the writer. Never blocks: when the
// buffer is full the message is dropped and counted, so a slow database
// cannot stall the connection manager's dispatch path.
func (w *Writer) Enqueue(msg router.Message) {
	select {
	case w.input <- msg:
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
	}
}

// Start begins consuming messages and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer and flushes the remaining batch.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("archive writer stopped")
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	// Final flush runs on the caller's context: w.ctx is already cancelled
	// and would fail the insert.
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case msg := <-w.input:
			w.handleMessage(msg)
		}
	}
}

func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *Writer) handleMessage(msg router.Message) {
	row := w.transform(msg)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a routed message to an updates row.
func (w *Writer) transform(msg router.Message) updateRow {
	return updateRow{
		ID:         uuid.New(),
		InstanceID: w.instanceID,
		MsgType:    msg.Type,
		Topic:      msg.Topic,
		Payload:    msg.Payload,
		ServerTime: msg.ServerTime,
		ReceivedAt: msg.ReceivedAt.UnixMicro(),
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]updateRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed updates",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (w *Writer) batchInsert(ctx context.Context, rows []updateRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO updates (id, instance_id, msg_type, topic, payload, server_time, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, r.ID, r.InstanceID, r.MsgType, r.Topic, r.Payload, r.ServerTime, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
