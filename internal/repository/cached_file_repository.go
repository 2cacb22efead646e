package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"xfercache/internal/domain"
)

type CachedFileRepository struct {
	db *sqlx.DB
}

func NewCachedFileRepository(db *sqlx.DB) *CachedFileRepository {
	return &CachedFileRepository{db: db}
}

// ListByUser возвращает записи пользователя в порядке обнаружения
// (first_seen по возрастанию) — этот порядок использует жадный обход
// планировщика и предсказание.
func (r *CachedFileRepository) ListByUser(ctx context.Context, userID int64) ([]domain.CachedFile, error) {
	var files []domain.CachedFile

	err := r.db.SelectContext(ctx, &files,
		`SELECT * FROM cached_files WHERE user_id = $1 ORDER BY first_seen ASC, id ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached files: %w", err)
	}

	return files, nil
}

// ListByUserMatch возвращает записи, путь которых содержит подстроку match.
// Пустой match эквивалентен ListByUser.
func (r *CachedFileRepository) ListByUserMatch(ctx context.Context, userID int64, match string) ([]domain.CachedFile, error) {
	var files []domain.CachedFile

	err := r.db.SelectContext(ctx, &files,
		`SELECT * FROM cached_files
         WHERE user_id = $1 AND path LIKE '%' || $2 || '%'
         ORDER BY first_seen ASC, id ASC`,
		userID, match)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached files: %w", err)
	}

	return files, nil
}

func (r *CachedFileRepository) GetByPath(ctx context.Context, userID int64, path string) (*domain.CachedFile, error) {
	var file domain.CachedFile

	err := r.db.GetContext(ctx, &file,
		`SELECT * FROM cached_files WHERE user_id = $1 AND path = $2`,
		userID, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached file: %w", err)
	}

	return &file, nil
}

func (r *CachedFileRepository) Create(ctx context.Context, file *domain.CachedFile) error {
	query := `
        INSERT INTO cached_files (user_id, path, size, first_seen)
        VALUES ($1, $2, $3, $4)
        RETURNING id`

	return r.db.QueryRowContext(ctx, query,
		file.UserID,
		file.Path,
		file.Size,
		file.FirstSeen,
	).Scan(&file.ID)
}

// UpdateSize обновляет размер записи. first_seen никогда не трогается.
func (r *CachedFileRepository) UpdateSize(ctx context.Context, id int64, size int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE cached_files SET size = $1 WHERE id = $2`, size, id)
	if err != nil {
		return fmt.Errorf("failed to update cached file size: %w", err)
	}

	return nil
}

func (r *CachedFileRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cached_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cached file: %w", err)
	}

	return nil
}
