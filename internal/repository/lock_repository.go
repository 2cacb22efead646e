package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// LockRepository реализует advisory-блокировку пользователя поверх каталога:
// строка в user_locks = "заблокирован". Атомарность даёт примитив
// insert-if-absent (ON CONFLICT DO NOTHING) — одновременные TryAcquire от
// двух процессов никогда не выигрывают оба.
type LockRepository struct {
	db *sqlx.DB
}

func NewLockRepository(db *sqlx.DB) *LockRepository {
	return &LockRepository{db: db}
}

// TryAcquire пытается захватить блокировку. Возвращает false, если она уже
// удерживается. Никогда не ждёт.
func (r *LockRepository) TryAcquire(ctx context.Context, userID int64) (bool, error) {
	query := `
        INSERT INTO user_locks (user_id)
        VALUES ($1)
        ON CONFLICT (user_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

func (r *LockRepository) IsLocked(ctx context.Context, userID int64) (bool, error) {
	var locked bool

	err := r.db.GetContext(ctx, &locked,
		`SELECT EXISTS(SELECT 1 FROM user_locks WHERE user_id = $1)`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check lock: %w", err)
	}

	return locked, nil
}

// Release снимает блокировку. Идемпотентна: отсутствие записи не ошибка.
func (r *LockRepository) Release(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_locks WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}
