package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"xfercache/internal/domain"
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User

	err := r.db.GetContext(ctx, &user,
		`SELECT * FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) GetByName(ctx context.Context, name string) (*domain.User, error) {
	var user domain.User

	err := r.db.GetContext(ctx, &user,
		`SELECT * FROM users WHERE name = $1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	var users []domain.User

	err := r.db.SelectContext(ctx, &users,
		`SELECT * FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
        INSERT INTO users (name, email, notify, quota_size, quota_used,
                           hard_limit_size, total_used, cache_path, volume_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		user.Name,
		user.Email,
		user.Notify,
		user.QuotaSize,
		user.QuotaUsed,
		user.HardLimitSize,
		user.TotalUsed,
		user.CachePath,
		user.VolumeID,
	).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		// 23505 — нарушение уникальности имени
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// UpdateUsage записывает пересчитанные quota_used и total_used на пользователя.
func (r *UserRepository) UpdateUsage(ctx context.Context, id int64, quotaUsed, totalUsed int64) error {
	query := `
        UPDATE users
        SET quota_used = $1,
            total_used = $2
        WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, quotaUsed, totalUsed, id)
	if err != nil {
		return fmt.Errorf("failed to update usage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

func (r *UserRepository) TouchLastScanned(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_scanned = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to update last_scanned: %w", err)
	}

	return nil
}

// GetOldestScanned возвращает пользователя, которого дольше всего не сканировали.
// Никогда не сканированные (last_scanned IS NULL) идут первыми.
func (r *UserRepository) GetOldestScanned(ctx context.Context) (*domain.User, error) {
	var user domain.User

	err := r.db.GetContext(ctx, &user,
		`SELECT * FROM users ORDER BY last_scanned ASC NULLS FIRST LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get oldest scanned user: %w", err)
	}

	return &user, nil
}
