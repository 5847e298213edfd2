// Package audit writes audit and usage records off the request path.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Record kinds, used as the drop metric label.
const (
	KindAudit = "audit"
	KindUsage = "usage"
)

const (
	defaultQueueSize = 1024
	writeTimeout     = 5 * time.Second
)

// Sink persists records.
type Sink interface {
	RecordAudit(ctx context.Context, rec *models.AuditRecord) error
	RecordUsage(ctx context.Context, rec *models.UsageRecord) error
}

// DropFunc is called for each record dropped because the queue was full.
type DropFunc func(kind string)

type job struct {
	audit *models.AuditRecord
	usage *models.UsageRecord
}

// Recorder queues records and writes them from a single background goroutine.
// Submissions never block; when the queue is full the record is dropped and counted.
type Recorder struct {
	sink   Sink
	queue  chan job
	onDrop DropFunc
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan job, n)
		}
	}
}

// WithDropHook sets the drop callback.
func WithDropHook(f DropFunc) Option {
	return func(r *Recorder) { r.onDrop = f }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder starts a recorder writing to sink. Call Close to drain it.
func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:  sink,
		queue: make(chan job, defaultQueueSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = utils.OrNop(r.logger)
	go r.run()
	return r
}

// SubmitAudit queues an audit record.
func (r *Recorder) SubmitAudit(rec *models.AuditRecord) {
	r.submit(job{audit: rec}, KindAudit)
}

// SubmitUsage queues a usage record.
func (r *Recorder) SubmitUsage(rec *models.UsageRecord) {
	r.submit(job{usage: rec}, KindUsage)
}

func (r *Recorder) submit(j job, kind string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(kind)
		return
	}
	select {
	case r.queue <- j:
	default:
		r.drop(kind)
	}
}

func (r *Recorder) drop(kind string) {
	r.logger.Warn("Record dropped", zap.String("kind", kind))
	if r.onDrop != nil {
		r.onDrop(kind)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for j := range r.queue {
		r.write(j)
	}
}

func (r *Recorder) write(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if j.audit != nil {
		if err := r.sink.RecordAudit(ctx, j.audit); err != nil {
			r.logger.Error("Failed to write audit record",
				zap.String("tenant_id", j.audit.TenantID), zap.String("id", j.audit.ID), zap.Error(err))
		}
	}
	if j.usage != nil {
		if err := r.sink.RecordUsage(ctx, j.usage); err != nil {
			r.logger.Error("Failed to write usage record",
				zap.String("tenant_id", j.usage.TenantID), zap.String("id", j.usage.ID), zap.Error(err))
		}
	}
}

// Close stops accepting records and waits until the queue is drained or ctx is done.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
