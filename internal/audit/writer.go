package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parish-tools/rosterbot/internal/models"
)

// Appender writes one audit row into a log table.
type Appender interface {
	AppendRow(ctx context.Context, table string, cells []string) (int, error)
}

// WriterConfig tunes the background audit workers.
type WriterConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

type job struct {
	id      string
	record  models.AuditRecord
	attempt int
}

// Writer appends audit records asynchronously. Writes are best effort: a
// full buffer or a dead backing store never blocks or fails the user action
// being audited.
type Writer struct {
	appender Appender

	workers    int
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	jobs    chan job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewWriter builds an audit writer over the appender.
func NewWriter(appender Appender, cfg WriterConfig) *Writer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Writer{
		appender:   appender,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		jobs:       make(chan job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (w *Writer) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	w.started = true
	w.logger.Info("audit_writer_started", zap.Int("workers", w.workers))
}

// Stop cancels workers and waits for them to exit. Buffered records that
// have not been written yet are dropped.
func (w *Writer) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.mu.Unlock()
	w.wg.Wait()
	w.logger.Info("audit_writer_stopped")
}

// Record queues an audit record. It never blocks; when the buffer is full
// the record is dropped with a log line.
func (w *Writer) Record(record models.AuditRecord) {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		w.logger.Warn("audit_record_dropped", zap.String("reason", "writer not started"), zap.String("action", record.Action))
		return
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	select {
	case w.jobs <- job{id: uuid.NewString(), record: record}:
	default:
		w.logger.Warn("audit_record_dropped", zap.String("reason", "buffer full"), zap.String("action", record.Action))
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case j := <-w.jobs:
			if _, err := w.appender.AppendRow(w.ctx, j.record.Table, j.record.Row()); err != nil {
				w.handleFailure(j, err)
			}
		}
	}
}

func (w *Writer) handleFailure(j job, err error) {
	j.attempt++
	if j.attempt > w.maxRetries {
		w.logger.Error("audit_append_exceeded_retries",
			zap.String("job_id", j.id),
			zap.String("table", j.record.Table),
			zap.Error(err))
		return
	}
	w.logger.Warn("audit_append_failed",
		zap.String("job_id", j.id),
		zap.String("table", j.record.Table),
		zap.Int("attempt", j.attempt),
		zap.Error(err))

	go func(j job) {
		timer := time.NewTimer(w.retryDelay)
		defer timer.Stop()
		select {
		case <-w.ctx.Done():
			return
		case <-timer.C:
			select {
			case w.jobs <- j:
			default:
				w.logger.Error("audit_requeue_dropped", zap.String("job_id", j.id))
			}
		}
	}(j)
}
