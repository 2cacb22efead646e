package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"xfercache/internal/domain"
)

type DeletionRepository struct {
	db *sqlx.DB
}

func NewDeletionRepository(db *sqlx.DB) *DeletionRepository {
	return &DeletionRepository{db: db}
}

// HasPending сообщает, есть ли у пользователя необработанное отложенное
// удаление. Обработанные удаляются целиком, так что любая строка — pending.
func (r *DeletionRepository) HasPending(ctx context.Context, userID int64) (bool, error) {
	var pending bool

	err := r.db.GetContext(ctx, &pending,
		`SELECT EXISTS(SELECT 1 FROM scheduled_deletions WHERE user_id = $1)`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check pending deletions: %w", err)
	}

	return pending, nil
}

func (r *DeletionRepository) ListByUser(ctx context.Context, userID int64) ([]domain.ScheduledDeletion, error) {
	var deletions []domain.ScheduledDeletion

	err := r.db.SelectContext(ctx, &deletions,
		`SELECT * FROM scheduled_deletions WHERE user_id = $1 ORDER BY time_entered`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled deletions: %w", err)
	}

	for i := range deletions {
		if err := r.loadFiles(ctx, &deletions[i]); err != nil {
			return nil, err
		}
	}

	return deletions, nil
}

// ListDue возвращает удаления пользователя, чей дедлайн уже наступил.
func (r *DeletionRepository) ListDue(ctx context.Context, userID int64, now time.Time) ([]domain.ScheduledDeletion, error) {
	var deletions []domain.ScheduledDeletion

	err := r.db.SelectContext(ctx, &deletions,
		`SELECT * FROM scheduled_deletions
         WHERE user_id = $1 AND time_delete <= $2
         ORDER BY time_entered`,
		userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due deletions: %w", err)
	}

	for i := range deletions {
		if err := r.loadFiles(ctx, &deletions[i]); err != nil {
			return nil, err
		}
	}

	return deletions, nil
}

// Create сохраняет удаление вместе со ссылками на файлы-кандидаты в одной
// транзакции.
func (r *DeletionRepository) Create(ctx context.Context, deletion *domain.ScheduledDeletion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO scheduled_deletions (user_id, time_entered, time_delete)
        VALUES ($1, $2, $3)
        RETURNING id`

	err = tx.QueryRowContext(ctx, query,
		deletion.UserID,
		deletion.TimeEntered,
		deletion.TimeDelete,
	).Scan(&deletion.ID)
	if err != nil {
		return fmt.Errorf("failed to create scheduled deletion: %w", err)
	}

	for _, file := range deletion.Files {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO scheduled_deletion_files (deletion_id, file_id) VALUES ($1, $2)`,
			deletion.ID, file.ID)
		if err != nil {
			return fmt.Errorf("failed to attach file to deletion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scheduled deletion: %w", err)
	}

	return nil
}

// Delete удаляет обработанную запись. Ссылки на файлы уходят каскадом,
// сами записи cached_files не трогаются.
func (r *DeletionRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM scheduled_deletions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled deletion: %w", err)
	}

	return nil
}

func (r *DeletionRepository) loadFiles(ctx context.Context, deletion *domain.ScheduledDeletion) error {
	err := r.db.SelectContext(ctx, &deletion.Files,
		`SELECT cf.* FROM cached_files cf
         JOIN scheduled_deletion_files sdf ON sdf.file_id = cf.id
         WHERE sdf.deletion_id = $1
         ORDER BY cf.first_seen ASC, cf.id ASC`,
		deletion.ID)
	if err != nil {
		return fmt.Errorf("failed to load deletion files: %w", err)
	}

	return nil
}
