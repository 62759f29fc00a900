package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchedulerLockKey — ключ pg_advisory_lock для лидерства планировщика.
const SchedulerLockKey int64 = 424242

// AdvisoryLock — сессионная pg_advisory_lock.
//
// Блокировка живёт в сессии, поэтому удерживается на выделенном
// соединении из пула до Unlock.
type AdvisoryLock struct {
	pool *pgxpool.Pool
	key  int64

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewAdvisoryLock создаёт блокировку с ключом key.
func NewAdvisoryLock(pool *pgxpool.Pool, key int64) *AdvisoryLock {
	return &AdvisoryLock{pool: pool, key: key}
}

// TryLock пытается взять блокировку, не ожидая.
func (l *AdvisoryLock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return true, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Unlock отпускает блокировку и возвращает соединение в пул.
func (l *AdvisoryLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return ErrNotLocked
	}
	conn := l.conn
	l.conn = nil
	defer conn.Release()

	if _, err := conn.Exec(ctx, "select pg_advisory_unlock($1)", l.key); err != nil {
		// Закрытая сессия освобождает блокировку сама.
		conn.Conn().Close(ctx)
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}
