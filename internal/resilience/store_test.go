package resilience

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/consultease/consultease-core/internal/infrastructure/database"
)

// retryQueueSchema mirrors the retry_queue migration for store tests.
const retryQueueSchema = `
CREATE TABLE retry_queue (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	kind            TEXT    NOT NULL,
	payload         BLOB    NOT NULL,
	attempts        INTEGER NOT NULL DEFAULT 0,
	next_attempt_at TEXT    NOT NULL,
	created_at      TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

func newTestSQLiteStore(t *testing.T, capacity int) *SQLiteStore {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "queue.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(context.Background(), retryQueueSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return NewSQLiteStore(db, capacity)
}

// storeUnderTest lets the same cases run against both implementations.
func storesUnderTest(t *testing.T, capacity int) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(capacity),
		"sqlite": newTestSQLiteStore(t, capacity),
	}
}

func TestStoreEnqueueAndOldest(t *testing.T) {
	for name, store := range storesUnderTest(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, payload := range []string{"one", "two", "three"} {
				if _, err := store.Enqueue(ctx, "publish", []byte(payload)); err != nil {
					t.Fatalf("Enqueue() error = %v", err)
				}
			}

			items, err := store.Oldest(ctx, 10)
			if err != nil {
				t.Fatalf("Oldest() error = %v", err)
			}
			if len(items) != 3 {
				t.Fatalf("Oldest() returned %d items, want 3", len(items))
			}

			// Oldest first, original order.
			for i, want := range []string{"one", "two", "three"} {
				if string(items[i].Payload) != want {
					t.Errorf("items[%d].Payload = %q, want %q", i, items[i].Payload, want)
				}
			}
		})
	}
}

func TestStoreOldestRespectsLimit(t *testing.T) {
	for name, store := range storesUnderTest(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				if _, err := store.Enqueue(ctx, "publish", []byte{byte(i)}); err != nil {
					t.Fatal(err)
				}
			}

			items, err := store.Oldest(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(items) != 2 {
				t.Errorf("Oldest(limit=2) returned %d items", len(items))
			}
		})
	}
}

func TestStoreOldestKeepsRescheduledHeadVisible(t *testing.T) {
	for name, store := range storesUnderTest(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Enqueue(ctx, "publish", []byte("x")); err != nil {
				t.Fatal(err)
			}

			items, err := store.Oldest(ctx, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(items) != 1 {
				t.Fatalf("Oldest() returned %d items, want 1", len(items))
			}

			// Rescheduling keeps the item at the head with its new
			// NextAttemptAt; the queue stays strictly FIFO and the
			// caller decides whether the head is due.
			future := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
			if err := store.MarkAttempt(ctx, items[0].ID, future); err != nil {
				t.Fatalf("MarkAttempt() error = %v", err)
			}

			items, err = store.Oldest(ctx, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(items) != 1 {
				t.Fatalf("rescheduled head disappeared from Oldest()")
			}
			if !items[0].NextAttemptAt.Equal(future) {
				t.Errorf("NextAttemptAt = %v, want %v", items[0].NextAttemptAt, future)
			}
		})
	}
}

func TestStoreMarkAttemptIncrements(t *testing.T) {
	for name, store := range storesUnderTest(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Enqueue(ctx, "publish", []byte("x")); err != nil {
				t.Fatal(err)
			}
			items, _ := store.Oldest(ctx, 1)

			if err := store.MarkAttempt(ctx, items[0].ID, time.Now()); err != nil {
				t.Fatal(err)
			}

			items, err := store.Oldest(ctx, 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(items) != 1 || items[0].Attempts != 1 {
				t.Errorf("Attempts not incremented: %+v", items)
			}
		})
	}
}

func TestStoreCapacityEviction(t *testing.T) {
	for name, store := range storesUnderTest(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, p := range []string{"a", "b", "c"} {
				evicted, err := store.Enqueue(ctx, "publish", []byte(p))
				if err != nil {
					t.Fatal(err)
				}
				if evicted != nil {
					t.Fatalf("eviction below capacity: %+v", evicted)
				}
			}

			// Fourth item evicts the oldest ("a").
			evicted, err := store.Enqueue(ctx, "publish", []byte("d"))
			if err != nil {
				t.Fatal(err)
			}
			if evicted == nil {
				t.Fatal("Enqueue() at capacity did not report an eviction")
			}
			if string(evicted.Payload) != "a" {
				t.Errorf("evicted payload = %q, want oldest %q", evicted.Payload, "a")
			}

			n, err := store.Len(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if n != 3 {
				t.Errorf("Len() = %d after eviction, want 3", n)
			}
		})
	}
}

func TestStoreRemove(t *testing.T) {
	for name, store := range storesUnderTest(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Enqueue(ctx, "publish", []byte("x")); err != nil {
				t.Fatal(err)
			}
			items, _ := store.Oldest(ctx, 1)

			if err := store.Remove(ctx, items[0].ID); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}

			n, err := store.Len(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if n != 0 {
				t.Errorf("Len() = %d after Remove, want 0", n)
			}
		})
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.db")
	ctx := context.Background()

	open := func() *database.DB {
		db, err := database.Open(ctx, database.Config{Path: path, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("opening database: %v", err)
		}
		return db
	}

	db := open()
	if _, err := db.ExecContext(ctx, retryQueueSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	store := NewSQLiteStore(db, 10)
	if _, err := store.Enqueue(ctx, "publish", []byte("durable")); err != nil {
		t.Fatal(err)
	}
	db.Close()

	// Reopen: the queued item is still there.
	db = open()
	defer db.Close()
	store = NewSQLiteStore(db, 10)

	items, err := store.Oldest(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || string(items[0].Payload) != "durable" {
		t.Errorf("queue did not survive reopen: %+v", items)
	}
}
