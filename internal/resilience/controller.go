package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// retryBackoff spaces out attempts for an item that failed during a
// drain while the breaker stayed closed.
const retryBackoff = 5 * time.Second

// Executor delivers one queued payload of a given kind.
type Executor func(ctx context.Context, payload []byte) error

// DropFunc receives items leaving the queue without delivery: capacity
// evictions (ErrQueueOverflow) and retry-budget exhaustion
// (ErrMaxAttempts).
type DropFunc func(item Item, reason error)

// Reconciler runs after a full queue replay so local and authoritative
// state converge (latest-updated_at-wins merge).
type Reconciler func(ctx context.Context) error

// Logger is the narrow logging interface the controller writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Controller routes outbound writes through a circuit breaker and a
// durable retry queue.
//
// Executors are registered per item kind before use. Do() attempts the
// write immediately when the queue is empty and the breaker allows, and
// queues it otherwise; Drain() replays queued items oldest-first in
// bounded slices. The queue is strictly ordered: while anything is
// queued, every new write joins the tail, so a buffered record can
// never be overtaken by a fresher live one. A queued write returns nil
// from Do: from the caller's view it is handled.
type Controller struct {
	breaker     *Breaker
	store       Store
	maxAttempts int

	execs      map[string]Executor
	onDrop     DropFunc
	reconciler Reconciler
	logger     Logger
	now        func() time.Time

	// drainMu serialises Drain calls so the loop's periodic drain and
	// the reconnect replay never deliver the same item twice.
	drainMu sync.Mutex
}

// ControllerConfig tunes a Controller.
type ControllerConfig struct {
	// MaxAttempts is the retry budget per queued item.
	MaxAttempts int
}

// NewController creates a controller over breaker and store.
func NewController(breaker *Breaker, store Store, cfg ControllerConfig) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Controller{
		breaker:     breaker,
		store:       store,
		maxAttempts: cfg.MaxAttempts,
		execs:       make(map[string]Executor),
		logger:      noopLogger{},
		now:         time.Now,
	}
}

// Register binds an executor to an item kind. Must be called before any
// Do or Drain touches that kind.
func (c *Controller) Register(kind string, exec Executor) {
	c.execs[kind] = exec
}

// SetOnDrop installs the callback for evictions and terminal drops.
func (c *Controller) SetOnDrop(fn DropFunc) {
	c.onDrop = fn
}

// SetReconciler installs the post-replay reconciler.
func (c *Controller) SetReconciler(fn Reconciler) {
	c.reconciler = fn
}

// SetLogger installs a logger. The default discards everything.
func (c *Controller) SetLogger(l Logger) {
	if l != nil {
		c.logger = l
	}
}

// SetClock overrides the time source. For tests. The clock is forwarded
// to the store so items are stamped and judged due against the same
// time base.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
	if cs, ok := c.store.(interface{ SetClock(func() time.Time) }); ok {
		cs.SetClock(now)
	}
}

// Do executes a write of the given kind. When the breaker rejects the
// call or the executor fails, the payload is queued for later replay
// and Do returns nil: the write is handled, just not yet delivered.
// Only queueing itself failing returns an error.
//
// While older records sit in the queue, the write joins the tail
// instead of delivering live; otherwise a stale queued record would
// replay after the fresh one and end up the final retained state.
func (c *Controller) Do(ctx context.Context, kind string, payload []byte) error {
	exec, ok := c.execs[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	pending, err := c.store.Len(ctx)
	if err != nil {
		return fmt.Errorf("checking queue length: %w", err)
	}
	if pending > 0 {
		c.logger.Debug("queue non-empty, preserving order", "kind", kind, "pending", pending)
		return c.enqueue(ctx, kind, payload)
	}

	if err := c.breaker.Allow(); err != nil {
		c.logger.Debug("circuit open, queueing write", "kind", kind)
		return c.enqueue(ctx, kind, payload)
	}

	if err := exec(ctx, payload); err != nil {
		c.breaker.RecordFailure()
		c.logger.Warn("write failed, queueing for retry", "kind", kind, "error", err)
		return c.enqueue(ctx, kind, payload)
	}

	c.breaker.RecordSuccess()
	return nil
}

// enqueue stores a payload and reports any capacity eviction.
func (c *Controller) enqueue(ctx context.Context, kind string, payload []byte) error {
	evicted, err := c.store.Enqueue(ctx, kind, payload)
	if err != nil {
		return fmt.Errorf("queueing %s write: %w", kind, err)
	}
	if evicted != nil {
		c.logger.Warn("retry queue full, evicted oldest item",
			"evicted_kind", evicted.Kind, "evicted_id", evicted.ID)
		if c.onDrop != nil {
			c.onDrop(*evicted, ErrQueueOverflow)
		}
	}
	return nil
}

// Drain replays up to max queued items, oldest first. It stops early
// when the head is still backed off, the breaker opens, or an item
// fails, leaving the remainder for the next slice: younger items never
// bypass the head. Items exceeding the retry budget are removed and
// reported through the drop callback. Returns the number of items
// delivered.
func (c *Controller) Drain(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	c.drainMu.Lock()
	defer c.drainMu.Unlock()

	items, err := c.store.Oldest(ctx, max)
	if err != nil {
		return 0, fmt.Errorf("loading queued items: %w", err)
	}

	delivered := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		if item.NextAttemptAt.After(c.now()) {
			break
		}
		ok, err := c.replay(ctx, item)
		if err != nil {
			return delivered, err
		}
		if !ok {
			break
		}
		delivered++
	}
	return delivered, nil
}

// replay attempts one queued item. Returns false when the drain should
// stop (breaker open or delivery failure).
func (c *Controller) replay(ctx context.Context, item Item) (bool, error) {
	exec, ok := c.execs[item.Kind]
	if !ok {
		// Unknown kinds cannot ever deliver; drop rather than wedge the
		// head of the queue.
		c.logger.Error("dropping queued item with unknown kind", "kind", item.Kind, "id", item.ID)
		if err := c.store.Remove(ctx, item.ID); err != nil {
			return false, err
		}
		if c.onDrop != nil {
			c.onDrop(item, ErrUnknownKind)
		}
		return true, nil
	}

	if err := c.breaker.Allow(); err != nil {
		return false, nil
	}

	if err := exec(ctx, item.Payload); err != nil {
		c.breaker.RecordFailure()

		if item.Attempts+1 >= c.maxAttempts {
			c.logger.Warn("dropping item after exhausting retries",
				"kind", item.Kind, "id", item.ID, "attempts", item.Attempts+1)
			if rmErr := c.store.Remove(ctx, item.ID); rmErr != nil {
				return false, rmErr
			}
			if c.onDrop != nil {
				c.onDrop(item, ErrMaxAttempts)
			}
			return false, nil
		}

		if mErr := c.store.MarkAttempt(ctx, item.ID, c.now().Add(retryBackoff)); mErr != nil {
			return false, mErr
		}
		return false, nil
	}

	c.breaker.RecordSuccess()
	if err := c.store.Remove(ctx, item.ID); err != nil {
		return false, err
	}
	c.logger.Debug("replayed queued write", "kind", item.Kind, "id", item.ID)
	return true, nil
}

// OnReconnect replays the entire queue in original order, then runs the
// reconciler. Call it from the transport's reconnect hook before
// resuming live publishes so buffered records land first.
func (c *Controller) OnReconnect(ctx context.Context) error {
	for {
		remaining, err := c.store.Len(ctx)
		if err != nil {
			return fmt.Errorf("checking queue length: %w", err)
		}
		if remaining == 0 {
			break
		}

		delivered, err := c.Drain(ctx, remaining)
		if err != nil {
			return err
		}
		if delivered == 0 {
			// Head of the queue is stuck (breaker reopened); give up
			// and let the next drain cycle continue.
			return nil
		}
	}

	if c.reconciler != nil {
		if err := c.reconciler(ctx); err != nil {
			return fmt.Errorf("reconciling after replay: %w", err)
		}
	}
	return nil
}

// QueueLen reports the number of queued items.
func (c *Controller) QueueLen(ctx context.Context) (int, error) {
	return c.store.Len(ctx)
}
