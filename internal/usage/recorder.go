package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultQueueSize is the number of events buffered before Record falls back to
// appending inline.
const DefaultQueueSize = 100

// appendTimeout bounds a single ledger write. Appends outlive the request that
// triggered them, so they never use its context.
const appendTimeout = 5 * time.Second

// Ledger is the part of the usage ledger the recorder writes to.
type Ledger interface {
	AppendUsage(ctx context.Context, keyID string, responseTimeMs *int64, success bool) error
}

type event struct {
	keyID          string
	responseTimeMs *int64
	success        bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSync makes Record append inline instead of queueing.
func WithSync() Option {
	return func(r *Recorder) {
		r.sync = true
	}
}

// WithQueueSize sets the buffer size of the async queue.
func WithQueueSize(n int) Option {
	return func(r *Recorder) {
		r.queueSize = n
	}
}

// Recorder appends usage events to the ledger. Failures are logged and dropped.
type Recorder struct {
	ledger    Ledger
	logger    *slog.Logger
	sync      bool
	queueSize int

	mu     sync.RWMutex
	closed bool
	queue  chan event
	wg     sync.WaitGroup
}

// NewRecorder creates a Recorder and, unless WithSync is given, starts its worker.
func NewRecorder(ledger Ledger, logger *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		ledger:    ledger,
		logger:    logger.With("component", "usage_recorder"),
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sync {
		return r
	}

	r.queue = make(chan event, r.queueSize)
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record stores one usage event. It never blocks on a full queue and never
// returns an error.
func (r *Recorder) Record(keyID string, responseTimeMs *int64, success bool) {
	ev := event{keyID: keyID, responseTimeMs: responseTimeMs, success: success}
	if r.sync {
		r.append(ev)
		return
	}

	r.mu.RLock()
	if !r.closed {
		select {
		case r.queue <- ev:
			r.mu.RUnlock()
			return
		default:
		}
	}
	r.mu.RUnlock()

	// Queue full or already closed.
	r.append(ev)
}

// worker is a goroutine that drains the queue until it is closed.
func (r *Recorder) worker() {
	defer r.wg.Done()
	r.logger.Debug("Starting usage recorder worker.")
	for ev := range r.queue {
		r.append(ev)
	}
	r.logger.Debug("Usage recorder worker stopped.")
}

func (r *Recorder) append(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := r.ledger.AppendUsage(ctx, ev.keyID, ev.responseTimeMs, ev.success); err != nil {
		r.logger.Warn("Failed to append usage event", "key_id", ev.keyID, "success", ev.success, "error", err)
	}
}

// Close stops accepting queued events, drains what is pending and waits for
// the worker to finish. Events recorded afterwards are appended inline.
func (r *Recorder) Close() {
	if r.sync {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}
