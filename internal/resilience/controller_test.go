package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakySink is a controllable executor target.
type flakySink struct {
	failing   bool
	delivered [][]byte
	calls     int
}

func (f *flakySink) exec(_ context.Context, payload []byte) error {
	f.calls++
	if f.failing {
		return errors.New("sink down")
	}
	f.delivered = append(f.delivered, append([]byte(nil), payload...))
	return nil
}

func newTestController(capacity int) (*Controller, *flakySink, *time.Time) {
	breaker := NewBreaker(BreakerConfig{
		FailureThreshold: 3,
		FailureWindow:    time.Minute,
		Cooldown:         10 * time.Second,
		MaxCooldown:      40 * time.Second,
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	tick := func() time.Time { return *clock }
	breaker.SetClock(tick)

	ctrl := NewController(breaker, NewMemoryStore(capacity), ControllerConfig{MaxAttempts: 3})
	ctrl.SetClock(tick)

	sink := &flakySink{}
	ctrl.Register("publish", sink.exec)
	return ctrl, sink, clock
}

func TestDoPassthrough(t *testing.T) {
	ctrl, sink, _ := newTestController(10)
	ctx := context.Background()

	if err := ctrl.Do(ctx, "publish", []byte("hello")); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(sink.delivered) != 1 {
		t.Fatalf("delivered %d, want 1", len(sink.delivered))
	}

	n, _ := ctrl.QueueLen(ctx)
	if n != 0 {
		t.Errorf("QueueLen() = %d after success, want 0", n)
	}
}

func TestDoUnknownKind(t *testing.T) {
	ctrl, _, _ := newTestController(10)

	err := ctrl.Do(context.Background(), "nonsense", []byte("x"))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Do(unknown kind) error = %v, want ErrUnknownKind", err)
	}
}

func TestDoQueuesOnFailure(t *testing.T) {
	ctrl, sink, _ := newTestController(10)
	ctx := context.Background()
	sink.failing = true

	if err := ctrl.Do(ctx, "publish", []byte("x")); err != nil {
		t.Fatalf("Do() with failing sink error = %v, want nil (queued)", err)
	}

	n, _ := ctrl.QueueLen(ctx)
	if n != 1 {
		t.Errorf("QueueLen() = %d, want 1", n)
	}
}

func TestOpenBreakerSkipsExecutor(t *testing.T) {
	ctrl, sink, clock := newTestController(10)
	ctx := context.Background()
	sink.failing = true

	// Trip the breaker: the initial failed Do plus two failed replays,
	// spaced past the retry backoff but inside the failure window.
	if err := ctrl.Do(ctx, "publish", []byte("x")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		*clock = clock.Add(6 * time.Second)
		if _, err := ctrl.Drain(ctx, 10); err != nil {
			t.Fatal(err)
		}
	}
	callsAtTrip := sink.calls

	// While Open, writes queue without touching the sink.
	for i := 0; i < 5; i++ {
		if err := ctrl.Do(ctx, "publish", []byte("y")); err != nil {
			t.Fatal(err)
		}
	}
	if sink.calls != callsAtTrip {
		t.Errorf("executor called %d times while Open, want 0", sink.calls-callsAtTrip)
	}

	n, _ := ctrl.QueueLen(ctx)
	if n != 6 {
		t.Errorf("QueueLen() = %d, want 6", n)
	}
}

func TestDoQueuesBehindPendingItems(t *testing.T) {
	ctrl, sink, clock := newTestController(10)
	ctx := context.Background()

	// One write fails and queues.
	sink.failing = true
	if err := ctrl.Do(ctx, "publish", []byte("Present")); err != nil {
		t.Fatal(err)
	}

	// The sink recovers. A fresh write must not deliver live while the
	// older record is still queued; it would leave the stale value as
	// the final retained state.
	sink.failing = false
	if err := ctrl.Do(ctx, "publish", []byte("Absent")); err != nil {
		t.Fatal(err)
	}
	if len(sink.delivered) != 0 {
		t.Fatalf("live write overtook the queue: delivered %q", sink.delivered)
	}
	if n, _ := ctrl.QueueLen(ctx); n != 2 {
		t.Fatalf("QueueLen() = %d, want 2", n)
	}

	*clock = clock.Add(6 * time.Second)
	if _, err := ctrl.Drain(ctx, 10); err != nil {
		t.Fatal(err)
	}

	want := []string{"Present", "Absent"}
	if len(sink.delivered) != 2 {
		t.Fatalf("delivered %d, want 2", len(sink.delivered))
	}
	for i, w := range want {
		if string(sink.delivered[i]) != w {
			t.Errorf("delivered[%d] = %q, want %q (original order)", i, sink.delivered[i], w)
		}
	}
}

func TestDrainStopsAtBackedOffHead(t *testing.T) {
	ctrl, sink, clock := newTestController(10)
	ctx := context.Background()

	sink.failing = true
	if err := ctrl.Do(ctx, "publish", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.Do(ctx, "publish", []byte("second")); err != nil {
		t.Fatal(err)
	}

	// The head fails its replay and is backed off.
	if _, err := ctrl.Drain(ctx, 10); err != nil {
		t.Fatal(err)
	}

	// The sink recovers before the head's backoff elapses. The second
	// item must wait behind it rather than jump the queue.
	sink.failing = false
	*clock = clock.Add(2 * time.Second)

	delivered, err := ctrl.Drain(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if delivered != 0 || len(sink.delivered) != 0 {
		t.Fatalf("drain bypassed the backed-off head: delivered %q", sink.delivered)
	}

	// Once the head is due again the whole queue drains in order.
	*clock = clock.Add(4 * time.Second)
	if _, err := ctrl.Drain(ctx, 10); err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"first", "second"} {
		if string(sink.delivered[i]) != want {
			t.Errorf("delivered[%d] = %q, want %q", i, sink.delivered[i], want)
		}
	}
}

func TestDrainReplaysInOrderAfterRecovery(t *testing.T) {
	ctrl, sink, clock := newTestController(10)
	ctx := context.Background()

	// Three writes fail and queue.
	sink.failing = true
	for _, p := range []string{"first", "second", "third"} {
		if err := ctrl.Do(ctx, "publish", []byte(p)); err != nil {
			t.Fatal(err)
		}
	}

	// Sink recovers; cooldown elapses.
	sink.failing = false
	*clock = clock.Add(time.Minute)

	delivered, err := ctrl.Drain(ctx, 10)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if delivered != 3 {
		t.Fatalf("Drain() delivered %d, want 3", delivered)
	}

	for i, want := range []string{"first", "second", "third"} {
		if string(sink.delivered[i]) != want {
			t.Errorf("delivered[%d] = %q, want %q", i, sink.delivered[i], want)
		}
	}

	n, _ := ctrl.QueueLen(ctx)
	if n != 0 {
		t.Errorf("QueueLen() = %d after full drain, want 0", n)
	}
}

func TestDrainBounded(t *testing.T) {
	ctrl, sink, clock := newTestController(20)
	ctx := context.Background()

	sink.failing = true
	for i := 0; i < 10; i++ {
		if err := ctrl.Do(ctx, "publish", []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	sink.failing = false
	*clock = clock.Add(time.Minute)

	delivered, err := ctrl.Drain(ctx, 4)
	if err != nil {
		t.Fatal(err)
	}
	if delivered != 4 {
		t.Errorf("Drain(max=4) delivered %d", delivered)
	}

	n, _ := ctrl.QueueLen(ctx)
	if n != 6 {
		t.Errorf("QueueLen() = %d after bounded drain, want 6", n)
	}
}

func TestOverflowEvictionReported(t *testing.T) {
	ctrl, sink, _ := newTestController(2)
	ctx := context.Background()

	var drops []error
	ctrl.SetOnDrop(func(item Item, reason error) {
		drops = append(drops, reason)
	})

	sink.failing = true
	for i := 0; i < 3; i++ {
		if err := ctrl.Do(ctx, "publish", []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}

	if len(drops) != 1 || !errors.Is(drops[0], ErrQueueOverflow) {
		t.Errorf("drops = %v, want one ErrQueueOverflow", drops)
	}
}

func TestMaxAttemptsDropReported(t *testing.T) {
	ctrl, sink, clock := newTestController(10)
	ctx := context.Background()

	var dropped []Item
	var reasons []error
	ctrl.SetOnDrop(func(item Item, reason error) {
		dropped = append(dropped, item)
		reasons = append(reasons, reason)
	})

	sink.failing = true
	if err := ctrl.Do(ctx, "publish", []byte("doomed")); err != nil {
		t.Fatal(err)
	}

	// Each drain cycle advances past the retry backoff so the item is
	// due again. MaxAttempts is 3: the third failed replay drops it.
	for i := 0; i < 3 && len(dropped) == 0; i++ {
		*clock = clock.Add(time.Minute)
		if _, err := ctrl.Drain(ctx, 10); err != nil {
			t.Fatal(err)
		}
	}

	if len(dropped) != 1 {
		t.Fatalf("dropped %d items, want 1", len(dropped))
	}
	if !errors.Is(reasons[0], ErrMaxAttempts) {
		t.Errorf("drop reason = %v, want ErrMaxAttempts", reasons[0])
	}
	if string(dropped[0].Payload) != "doomed" {
		t.Errorf("dropped payload = %q", dropped[0].Payload)
	}

	n, _ := ctrl.QueueLen(ctx)
	if n != 0 {
		t.Errorf("QueueLen() = %d after terminal drop, want 0", n)
	}
}

func TestOnReconnectReplaysThenReconciles(t *testing.T) {
	ctrl, sink, clock := newTestController(10)
	ctx := context.Background()

	var reconciled bool
	ctrl.SetReconciler(func(context.Context) error {
		// Reconciliation must run after the queue is empty.
		if n, _ := ctrl.QueueLen(ctx); n != 0 {
			t.Errorf("reconciler ran with %d items still queued", n)
		}
		reconciled = true
		return nil
	})

	sink.failing = true
	for _, p := range []string{"a", "b", "c"} {
		if err := ctrl.Do(ctx, "publish", []byte(p)); err != nil {
			t.Fatal(err)
		}
	}

	sink.failing = false
	*clock = clock.Add(time.Minute)

	if err := ctrl.OnReconnect(ctx); err != nil {
		t.Fatalf("OnReconnect() error = %v", err)
	}
	if !reconciled {
		t.Error("reconciler did not run")
	}
	if len(sink.delivered) != 3 {
		t.Errorf("delivered %d during replay, want 3", len(sink.delivered))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(sink.delivered[i]) != want {
			t.Errorf("replay order: delivered[%d] = %q, want %q", i, sink.delivered[i], want)
		}
	}
}

func TestOnReconnectEmptyQueueStillReconciles(t *testing.T) {
	ctrl, _, _ := newTestController(10)

	var reconciled bool
	ctrl.SetReconciler(func(context.Context) error {
		reconciled = true
		return nil
	})

	if err := ctrl.OnReconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !reconciled {
		t.Error("reconciler did not run on empty queue")
	}
}
