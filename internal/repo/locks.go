package repo

import (
	"context"
	"sync"
	"time"

	"github.com/DSLitvinov/difference-engine/internal/metrics"
)

// meshMutex is a channel-backed binary semaphore: unlike sync.Mutex, a
// pending Lock can be abandoned when its context is cancelled (spec
// §4.4 cancellation policy) without blocking forever.
type meshMutex struct {
	ch chan struct{}
}

func newMeshMutex() *meshMutex {
	m := &meshMutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

// Lock blocks until the mutex is available or ctx is done, whichever
// comes first. A cancelled wait has no filesystem effect: the caller
// never entered its critical section.
func (m *meshMutex) Lock(ctx context.Context) error {
	select {
	case <-m.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *meshMutex) Unlock() {
	m.ch <- struct{}{}
}

// MeshLocks is a process-wide map from mesh name to a mutual-exclusion
// primitive, lazily created on first use (spec §4.4). Entries are never
// removed; the set is bounded by the number of meshes ever touched
// during the process lifetime.
type MeshLocks struct {
	mu      sync.Mutex
	locks   map[string]*meshMutex
	Metrics *metrics.Metrics
}

// NewMeshLocks returns an empty lock table.
func NewMeshLocks() *MeshLocks {
	return &MeshLocks{locks: make(map[string]*meshMutex)}
}

// lockFor returns the mutex for mesh, creating it if this is the first
// reference. Concurrent callers racing to create the same mesh's mutex
// always converge on the same instance.
func (m *MeshLocks) lockFor(mesh string) *meshMutex {
	m.mu.Lock()
	l, ok := m.locks[mesh]
	if !ok {
		l = newMeshMutex()
		m.locks[mesh] = l
	}
	count := len(m.locks)
	m.mu.Unlock()

	if !ok && m.Metrics != nil {
		m.Metrics.SetActiveMeshLocks(count)
	}
	return l
}

// Count reports how many distinct mesh mutexes have been created, for
// tests and metrics.
func (m *MeshLocks) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// WithLock acquires mesh's mutex, runs fn, and releases it. If ctx is
// done before the mutex is acquired, fn never runs and the context's
// error is returned as a Cancelled error by the caller.
func (m *MeshLocks) WithLock(ctx context.Context, mesh string, fn func() error) error {
	mu := m.lockFor(mesh)
	start := time.Now()
	err := mu.Lock(ctx)
	if m.Metrics != nil {
		m.Metrics.ObserveLockWait(mesh, time.Since(start))
	}
	if err != nil {
		return err
	}
	defer mu.Unlock()
	return fn()
}
