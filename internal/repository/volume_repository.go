package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"xfercache/internal/domain"
)

type VolumeRepository struct {
	db *sqlx.DB
}

func NewVolumeRepository(db *sqlx.DB) *VolumeRepository {
	return &VolumeRepository{db: db}
}

func (r *VolumeRepository) GetByID(ctx context.Context, id int64) (*domain.CacheVolume, error) {
	var volume domain.CacheVolume

	err := r.db.GetContext(ctx, &volume,
		`SELECT * FROM cache_volumes WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrVolumeNotFound
		}
		return nil, fmt.Errorf("failed to get cache volume: %w", err)
	}

	return &volume, nil
}

func (r *VolumeRepository) List(ctx context.Context) ([]domain.CacheVolume, error) {
	var volumes []domain.CacheVolume

	err := r.db.SelectContext(ctx, &volumes,
		`SELECT * FROM cache_volumes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache volumes: %w", err)
	}

	return volumes, nil
}

func (r *VolumeRepository) Create(ctx context.Context, volume *domain.CacheVolume) error {
	query := `
        INSERT INTO cache_volumes (mountpoint, size_bytes, allocated_bytes, used_bytes)
        VALUES ($1, $2, $3, $4)
        RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		volume.Mountpoint,
		volume.SizeBytes,
		volume.AllocatedBytes,
		volume.UsedBytes,
	).Scan(&volume.ID)
}

// ApplyUsedDelta применяет знаковую дельту к used_bytes тома. Агрегат ведётся
// только дельтами: независимый пересчёт под параллельными проходами по разным
// пользователям давал бы двойной учёт.
func (r *VolumeRepository) ApplyUsedDelta(ctx context.Context, id int64, deltaBytes int64) error {
	query := `
        UPDATE cache_volumes
        SET used_bytes = GREATEST(0, used_bytes + $1)
        WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, deltaBytes, id)
	if err != nil {
		return fmt.Errorf("failed to update used bytes: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.ErrVolumeNotFound
	}

	return nil
}

func (r *VolumeRepository) ApplyAllocatedDelta(ctx context.Context, id int64, deltaBytes int64) error {
	query := `
        UPDATE cache_volumes
        SET allocated_bytes = GREATEST(0, allocated_bytes + $1)
        WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, deltaBytes, id)
	if err != nil {
		return fmt.Errorf("failed to update allocated bytes: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.ErrVolumeNotFound
	}

	return nil
}

// RecalculateUsed пересчитывает used_bytes тома с нуля по записям каталога.
// Используется только командой починки квот, не рабочими проходами.
func (r *VolumeRepository) RecalculateUsed(ctx context.Context, id int64) error {
	query := `
        UPDATE cache_volumes cv
        SET used_bytes = COALESCE((
            SELECT SUM(cf.size)
            FROM cached_files cf
            JOIN users u ON u.id = cf.user_id
            WHERE u.volume_id = cv.id
        ), 0)
        WHERE cv.id = $1`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to recalculate used bytes: %w", err)
	}

	return nil
}
