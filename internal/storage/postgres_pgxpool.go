package storage

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// pgLocker holds postgres session-level advisory locks. A session lock must
// be released on the connection that took it, so each held key pins one
// pooled connection until Unlock.
type pgLocker struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	held map[int64]*pgxpool.Conn
}

func newPgLocker(ctx context.Context, dsn string) (*pgLocker, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &pgLocker{pool: pool, held: make(map[int64]*pgxpool.Conn)}, nil
}

func (l *pgLocker) TryLock(ctx context.Context, key int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		discard(conn)
		return false, err
	}
	if !ok {
		conn.Release()
		return false, nil
	}
	l.held[key] = conn
	return true, nil
}

func (l *pgLocker) Unlock(ctx context.Context, key int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	conn, ok := l.held[key]
	if !ok {
		return false, nil
	}
	delete(l.held, key)

	var released bool
	if err := conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&released); err != nil {
		// The session may still hold the lock. Closing it makes the server
		// drop every session lock instead of returning it to the pool.
		discard(conn)
		return false, err
	}
	conn.Release()
	return released, nil
}

// discard closes conn instead of returning it to the pool.
func discard(conn *pgxpool.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = conn.Hijack().Close(ctx)
}

func (l *pgLocker) Close() {
	l.mu.Lock()
	for key, conn := range l.held {
		conn.Release()
		delete(l.held, key)
	}
	l.mu.Unlock()
	l.pool.Close()
}
