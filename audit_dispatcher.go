package eduAuth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const auditWriteTimeout = 5 * time.Second

// auditDispatcher hands entries to the AuditRecorder. In async mode a single
// worker drains a buffered channel; otherwise entries are written inline.
// Recorder failures are logged and counted, never returned.
type auditDispatcher struct {
	cfg       AuditConfig
	recorder  AuditRecorder
	logger    *zap.Logger
	metrics   *Metrics
	ch        chan AuditEntry
	done      chan struct{}
	sendMu    sync.RWMutex // held shared by senders, exclusively by Close
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditDispatcher(cfg AuditConfig, recorder AuditRecorder, logger *zap.Logger, metrics *Metrics) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if recorder == nil {
		recorder = NoOpRecorder{}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	d := &auditDispatcher{
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		metrics:  metrics,
		done:     make(chan struct{}),
	}
	if !cfg.Async {
		return d
	}

	d.ch = make(chan AuditEntry, cfg.BufferSize)
	d.wg.Add(1)
	go d.run()

	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case entry := <-d.ch:
			d.write(context.Background(), entry)
		case <-d.done:
			for {
				select {
				case entry := <-d.ch:
					d.write(context.Background(), entry)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) write(ctx context.Context, entry AuditEntry) {
	ctx, cancel := context.WithTimeout(ctx, auditWriteTimeout)
	defer cancel()

	if err := d.recorder.Log(ctx, entry); err != nil {
		d.metrics.sideEffectFailed(sideEffectAudit)
		d.logger.Warn("audit record failed",
			zap.String("action", entry.Action),
			zap.String("resource_id", entry.ResourceID),
			zap.Error(err),
		)
	}
}

// Emit queues or writes entry. It never blocks past ctx in async mode.
// Every entry accepted into the queue is written before Close returns;
// anything else is counted as dropped.
func (d *auditDispatcher) Emit(ctx context.Context, entry AuditEntry) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !d.cfg.Async {
		if !d.closed.Load() {
			d.write(context.WithoutCancel(ctx), entry)
		}
		return
	}

	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	if d.closed.Load() {
		d.drop()
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- entry:
		default:
			d.drop()
		}
		return
	}

	select {
	case d.ch <- entry:
	case <-ctx.Done():
		d.drop()
	}
}

func (d *auditDispatcher) drop() {
	d.dropped.Add(1)
	d.metrics.sideEffectFailed(sideEffectAuditDropped)
}

// Close drains queued entries and stops the worker. Senders already inside
// Emit finish first; the worker keeps draining while they do.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.sendMu.Lock()
		d.closed.Store(true)
		close(d.done)
		d.sendMu.Unlock()
		d.wg.Wait()
	})
}

// Dropped returns the number of entries discarded because the buffer was
// full, the caller's context ended, or the dispatcher was already closed.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
