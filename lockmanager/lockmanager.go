// Package lockmanager serializes concurrent writes to the same entity URI
// across both a single process and multiple VitalGraph instances sharing
// one PostgreSQL database.
//
// Two layers of locking are stacked: a per-key in-process sync.Mutex
// serializes goroutines within this instance, and a PostgreSQL
// session-level advisory lock — held on one dedicated, non-pooled
// connection — coordinates across instances. The advisory lock is
// reentrant on its own connection, which is why the in-process mutex must
// come first: without it, two goroutines in the same process could both
// observe pg_try_advisory_lock succeed for the same key.
package lockmanager

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"vitalgraph.io/model"
	"vitalgraph.io/vgerrors"
)

var log = logrus.WithField("component", "lockmanager")

const pollInterval = 50 * time.Millisecond

// Manager holds the dedicated lock connection and the per-entity mutex
// registry. Advisory locks auto-release if the connection drops, which is
// the crash-safety property the dedicated connection exists for.
type Manager struct {
	connString string

	connMu sync.Mutex // serializes SQL issued on conn and guards conn/held
	conn   *pgx.Conn
	held   map[int64]string // lock key -> entity URI, for diagnostics

	entityMu    sync.Mutex // guards entityLocks
	entityLocks map[int64]*sync.Mutex
}

// New builds a Manager. The dedicated connection is established lazily on
// first use so a Manager can be constructed before the database is known
// to be reachable.
func New(connString string) *Manager {
	return &Manager{
		connString:  connString,
		held:        make(map[int64]string),
		entityLocks: make(map[int64]*sync.Mutex),
	}
}

// Close closes the dedicated lock connection, releasing every advisory
// lock currently held by this instance.
func (m *Manager) Close(ctx context.Context) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		if err := m.conn.Close(ctx); err != nil {
			log.WithError(err).Warn("closing lock connection")
		}
		m.conn = nil
	}
	m.held = make(map[int64]string)
}

// ActiveLockCount returns the number of advisory locks this instance
// currently holds.
func (m *Manager) ActiveLockCount() int {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return len(m.held)
}

// WithLock acquires the lock for entityURI, runs fn, and releases the
// lock — in-process mutex first, PG advisory lock second, released in
// reverse order — regardless of whether fn succeeds.
func (m *Manager) WithLock(ctx context.Context, entityURI string, timeout time.Duration, fn func(ctx context.Context) error) error {
	key := model.LockKey(entityURI)
	entityLock := m.entityLock(key)
	start := time.Now()

	acquired := make(chan struct{})
	go func() {
		entityLock.Lock()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(timeout):
		go releaseWhenAcquired(entityLock, acquired)
		return vgerrors.New(vgerrors.LockTimeout, "could not acquire local lock for "+entityURI+" within timeout")
	case <-ctx.Done():
		go releaseWhenAcquired(entityLock, acquired)
		return ctx.Err()
	}
	defer entityLock.Unlock()

	remaining := timeout - time.Since(start)
	if remaining <= 0 {
		remaining = 100 * time.Millisecond
	}
	if err := m.acquirePG(ctx, key, entityURI, remaining); err != nil {
		return err
	}
	defer m.releasePG(ctx, key, entityURI)

	return fn(ctx)
}

// releaseWhenAcquired unlocks entityLock the moment the abandoned
// goroutine racing to acquire it finally succeeds, after its caller has
// already given up on timeout or context cancellation. Without this, the
// mutex would be left permanently held by a goroutine nobody is waiting
// on, deadlocking every future WithLock call for the same entity.
func releaseWhenAcquired(entityLock *sync.Mutex, acquired <-chan struct{}) {
	<-acquired
	entityLock.Unlock()
}

func (m *Manager) entityLock(key int64) *sync.Mutex {
	m.entityMu.Lock()
	defer m.entityMu.Unlock()
	l, ok := m.entityLocks[key]
	if !ok {
		l = &sync.Mutex{}
		m.entityLocks[key] = l
	}
	return l
}

func (m *Manager) ensureConn(ctx context.Context) error {
	if m.conn != nil && !m.conn.IsClosed() {
		return nil
	}
	log.Warn("lock connection lost, reconnecting")
	m.held = make(map[int64]string)
	conn, err := pgx.Connect(ctx, m.connString)
	if err != nil {
		return vgerrors.Wrap(vgerrors.Transient, "establishing dedicated lock connection", err)
	}
	m.conn = conn
	return nil
}

func (m *Manager) acquirePG(ctx context.Context, key int64, entityURI string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		acquired, err := m.tryAcquirePG(ctx, key)
		if err == nil && acquired {
			m.connMu.Lock()
			m.held[key] = entityURI
			m.connMu.Unlock()
			return nil
		}
		if err != nil {
			log.WithError(err).WithField("entity", entityURI).Error("error acquiring PG advisory lock")
		}
		if time.Now().After(deadline) {
			return vgerrors.New(vgerrors.LockTimeout, "could not acquire PG lock for "+entityURI+" within timeout")
		}
		select {
		case <-time.After(pollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) tryAcquirePG(ctx context.Context, key int64) (bool, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if err := m.ensureConn(ctx); err != nil {
		return false, err
	}
	var acquired bool
	if err := m.conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		_ = m.conn.Close(ctx)
		m.conn = nil
		return false, err
	}
	return acquired, nil
}

func (m *Manager) releasePG(ctx context.Context, key int64, entityURI string) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil && !m.conn.IsClosed() {
		if _, err := m.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
			log.WithError(err).WithField("entity", entityURI).Error("error releasing PG advisory lock")
		}
	}
	delete(m.held, key)
}
