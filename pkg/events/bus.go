package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StageCompleted is published after a committed evaluation closes out a
// stage. Downstream consumers (cache invalidation, notification fan-out)
// subscribe; the publisher never blocks on them.
type StageCompleted struct {
	StudentID  string
	StageID    string
	TeacherID  string
	OccurredOn string
	EmittedAt  time.Time
}

// Handler consumes a StageCompleted event.
type Handler func(context.Context, StageCompleted)

// BusConfig sizes the dispatcher.
type BusConfig struct {
	Workers    int
	BufferSize int
	Logger     *zap.Logger
}

// Bus is an in-process fan-out dispatcher backed by a worker pool.
type Bus struct {
	workers    int
	bufferSize int
	logger     *zap.Logger

	mu       sync.Mutex
	handlers []Handler
	events   chan StageCompleted
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
}

// NewBus builds a bus with sane defaults.
func NewBus(cfg BusConfig) *Bus {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Bus{
		workers:    cfg.Workers,
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
		events:     make(chan StageCompleted, cfg.BufferSize),
	}
}

// Subscribe registers a handler. Must be called before Start.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Start begins worker consumption. Safe to call once.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.ctx, b.cancel = context.WithCancel(ctx)
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	b.started = true
	b.logger.Sugar().Infow("event bus started", "workers", b.workers)
}

// Stop cancels workers and waits for them to exit.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.cancel()
	b.mu.Unlock()
	b.wg.Wait()
	b.logger.Sugar().Infow("event bus stopped")
}

// Publish enqueues an event. Drops with a warning when the buffer is full so
// the evaluation write path never blocks on subscribers.
func (b *Bus) Publish(ev StageCompleted) {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return
	}
	if ev.EmittedAt.IsZero() {
		ev.EmittedAt = time.Now().UTC()
	}

	select {
	case b.events <- ev:
	default:
		b.logger.Sugar().Warnw("event bus full, dropping event",
			"student_id", ev.StudentID, "stage_id", ev.StageID)
	}
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case ev := <-b.events:
			b.mu.Lock()
			handlers := b.handlers
			b.mu.Unlock()
			for _, h := range handlers {
				h(b.ctx, ev)
			}
		}
	}
}
