package lock_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/lock"
)

func TestWithLock_MutualExclusion(t *testing.T) {
	m := lock.NewManager()

	const workers = 20
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithLock([]string{"order:1"}, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("expected counter %d, got %d", workers, counter)
	}
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	m := lock.NewManager()

	wantErr := errors.New("boom")
	if err := m.WithLock([]string{"order:1", "user:1"}, func() error {
		return wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("expected error to propagate, got %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = m.WithLock([]string{"order:1", "user:1"}, func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("locks were not released after error")
	}
}

func TestWithLock_OverlappingSetsNoDeadlock(t *testing.T) {
	m := lock.NewManager()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = m.WithLock([]string{"a", "b"}, func() error { return nil })
			}()
			go func() {
				defer wg.Done()
				// Обратный порядок имён не должен образовать цикл ожидания.
				_ = m.WithLock([]string{"b", "a", "c"}, func() error { return nil })
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("overlapping lock sets deadlocked")
	}
}

func TestWithLock_DuplicateAndEmptyNames(t *testing.T) {
	m := lock.NewManager()

	done := make(chan struct{})
	go func() {
		_ = m.WithLock([]string{"x", "x", "", "x"}, func() error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("duplicate names caused self-deadlock")
	}
}
