package lockmanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"vitalgraph.io/model"
)

func TestEntityLock_ReturnsSameMutexForSameKey(t *testing.T) {
	m := New("")
	a := m.entityLock(42)
	b := m.entityLock(42)
	assert.Same(t, a, b)
}

func TestEntityLock_SerializesWithinProcess(t *testing.T) {
	m := New("")
	key := int64(7)
	var mu sync.Mutex
	order := make([]int, 0, 2)

	l := m.entityLock(key)
	l.Lock()
	done := make(chan struct{})
	go func() {
		m.entityLock(key).Lock()
		defer m.entityLock(key).Unlock()
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	l.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine never acquired the lock")
	}
	assert.Equal(t, []int{1, 2}, order)
}

func TestWithLock_TimesOutWhenLocalLockHeld(t *testing.T) {
	m := New("")
	l := m.entityLock(model.LockKey("http://example.org/busy"))
	l.Lock()
	defer l.Unlock()

	err := m.WithLock(context.Background(), "http://example.org/busy", 30*time.Millisecond, func(ctx context.Context) error {
		t.Fatal("fn should not run when the lock cannot be acquired")
		return nil
	})
	assert.Error(t, err)
}

func TestWithLock_AbandonedAcquireReleasesOnceGranted(t *testing.T) {
	m := New("")
	key := model.LockKey("http://example.org/abandoned")
	l := m.entityLock(key)
	l.Lock()

	timedOut := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "http://example.org/abandoned", 20*time.Millisecond, func(ctx context.Context) error {
			return nil
		})
		close(timedOut)
	}()

	select {
	case <-timedOut:
	case <-time.After(time.Second):
		t.Fatal("WithLock never returned its timeout error")
	}

	l.Unlock()

	succeeded := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), "http://example.org/abandoned", time.Second, func(ctx context.Context) error {
			return nil
		})
		close(succeeded)
	}()

	select {
	case <-succeeded:
	case <-time.After(time.Second):
		t.Fatal("entity lock was left permanently held by the abandoned timed-out acquisition")
	}
}
