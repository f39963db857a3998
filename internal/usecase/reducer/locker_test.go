package reducer

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestThreadLockerBasic(t *testing.T) {
	l := NewThreadLocker()

	unlock, err := l.Lock(context.Background(), "thr_1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if l.Held() != 1 {
		t.Errorf("Held = %d, want 1", l.Held())
	}

	unlock()
	if l.Held() != 0 {
		t.Errorf("Held after unlock = %d, want 0", l.Held())
	}
}

func TestThreadLockerSameThreadBlocks(t *testing.T) {
	l := NewThreadLocker()

	unlock1, err := l.Lock(context.Background(), "thr_1")
	if err != nil {
		t.Fatalf("Lock1: %v", err)
	}

	order := make(chan int, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		unlock2, err := l.Lock(context.Background(), "thr_1")
		if err != nil {
			t.Errorf("Lock2: %v", err)
			return
		}
		order <- 2
		unlock2()
	}()

	time.Sleep(50 * time.Millisecond)
	order <- 1
	unlock1()

	wg.Wait()
	close(order)

	vals := make([]int, 0, 2)
	for v := range order {
		vals = append(vals, v)
	}
	if len(vals) != 2 || vals[0] != 1 || vals[1] != 2 {
		t.Errorf("order = %v, want [1, 2]", vals)
	}
}

func TestThreadLockerDifferentThreads(t *testing.T) {
	l := NewThreadLocker()

	unlockA, err := l.Lock(context.Background(), "thr_a")
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "thr_b")
	if err != nil {
		t.Fatalf("Lock b while a held: %v", err)
	}
	unlockB()
}

func TestThreadLockerContextCancel(t *testing.T) {
	l := NewThreadLocker()

	unlock, err := l.Lock(context.Background(), "thr_1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "thr_1"); err == nil {
		t.Fatal("expected timeout error")
	}

	unlock()

	// The abandoned waiter releases in the background.
	deadline := time.Now().Add(time.Second)
	for l.Held() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if l.Held() != 0 {
		t.Errorf("Held = %d, want 0", l.Held())
	}

	unlock, err = l.Lock(context.Background(), "thr_1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	unlock()
}
