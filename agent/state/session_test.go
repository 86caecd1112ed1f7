package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	privacyx "github.com/tanpawarit/Chative-Desktop-Agent/agent/privacy"
)

func TestBufferEvictsOldest(t *testing.T) {
	t.Parallel()

	b := NewBuffer(3)
	for _, c := range []string{"a", "b", "c", "d", "e"} {
		b.Push(Turn{Role: "user", Content: c})
	}
	if len(b.Turns) != 3 {
		t.Fatalf("len = %d, want 3", len(b.Turns))
	}
	if b.Turns[0].Content != "c" || b.Turns[2].Content != "e" {
		t.Fatalf("unexpected turns: %+v", b.Turns)
	}
	if last := b.Last(2); len(last) != 2 || last[0].Content != "d" {
		t.Fatalf("Last(2) = %+v", last)
	}
}

func TestSessionStateValidateRejectsConflictingEntities(t *testing.T) {
	t.Parallel()

	st := NewSessionState("s", 2, true, time.Now())
	st.Entities.Entities = append(st.Entities.Entities,
		privacyx.Entity{Placeholder: "<PERSON_1>", Category: privacyx.CategoryPerson, Index: 1, Value: "raj"},
		privacyx.Entity{Placeholder: "<PERSON_1>", Category: privacyx.CategoryPerson, Index: 1, Value: "priya"},
	)
	if err := st.Validate(); !errors.Is(err, privacyx.ErrPlaceholderConflict) {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Load(ctx, "s1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v", err)
	}

	st := NewSessionState("s1", 2, true, time.Now())
	st.Entities.Assign(privacyx.CategoryPerson, "raj")
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	st.Entities.Assign(privacyx.CategoryPerson, "priya")

	loaded, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Entities.Len() != 1 {
		t.Fatalf("stored map mutated through caller: len = %d", loaded.Entities.Len())
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "s1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() after delete error = %v", err)
	}
}

func TestLockerSerialisesSameSession(t *testing.T) {
	t.Parallel()

	locker := NewLocker()
	var inside, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "same")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if peak != 1 {
		t.Fatalf("peak concurrency = %d, want 1", peak)
	}
	if len(locker.slots) != 0 {
		t.Fatalf("locker leaked %d slots", len(locker.slots))
	}
}

func TestLockerHonoursContext(t *testing.T) {
	t.Parallel()

	locker := NewLocker()
	unlock, err := locker.Lock(context.Background(), "s")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer unlock()

	other, err := locker.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("Lock(other) error = %v", err)
	}
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "s"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Lock() error = %v, want deadline exceeded", err)
	}
}
