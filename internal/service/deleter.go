package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"xfercache/internal/domain"
)

// Deleter исполняет отложенные удаления, чей дедлайн наступил, с правом
// последнего шанса: файл, изменённый после планирования, получает отсрочку.
type Deleter struct {
	files     FileCatalog
	deletions DeletionCatalog
	volumes   VolumeCatalog
	quota     *QuotaCalculator
	notifier  Notifier
	logger    zerolog.Logger

	now func() time.Time
}

func NewDeleter(
	files FileCatalog,
	deletions DeletionCatalog,
	volumes VolumeCatalog,
	quota *QuotaCalculator,
	notifier Notifier,
	logger zerolog.Logger,
) *Deleter {
	return &Deleter{
		files:     files,
		deletions: deletions,
		volumes:   volumes,
		quota:     quota,
		notifier:  notifier,
		logger:    logger.With().Str("component", "deleter").Logger(),
		now:       time.Now,
	}
}

// Delete обрабатывает все удаления пользователя с time_delete <= now.
// Файл с mtime не раньше time_entered получает отсрочку: запись остаётся,
// файл исключается из набора на удаление этого батча — и снова станет
// кандидатом на следующем проходе планировщика. После обработки пересчитывает
// квоту с дельтой на том, удаляет обработанные записи удалений (даже если
// часть файлов отсрочена) и шлёт best-effort уведомление.
func (d *Deleter) Delete(ctx context.Context, user *domain.User) error {
	now := d.now().UTC()

	due, err := d.deletions.ListDue(ctx, user.ID, now)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	volume, err := d.volumes.GetByID(ctx, user.VolumeID)
	if err != nil {
		return err
	}

	var removed []string
	var freedBytes int64
	var failed int

	for bi := range due {
		batch := &due[bi]

		// Отбираем записи на удаление: исчезнувшие с диска и не тронутые
		// после планирования
		var marked []domain.CachedFile
		for _, file := range batch.Files {
			fullPath := file.FullPath(volume)

			info, statErr := os.Stat(fullPath)
			if statErr != nil {
				marked = append(marked, file)
				continue
			}
			if info.ModTime().Before(batch.TimeEntered) {
				marked = append(marked, file)
				continue
			}

			// Пользователь потрогал файл после планирования — отсрочка
			d.logger.Info().Str("user", user.Name).Str("path", fullPath).Msg("file touched, reprieved")
		}

		for _, file := range marked {
			fullPath := file.FullPath(volume)

			if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				// Файл не удалось удалить — запись остаётся в каталоге,
				// файл снова станет кандидатом; счётчик failed выводит
				// устойчивые сбои на оператора
				d.logger.Error().Err(err).Str("user", user.Name).Str("path", fullPath).Msg("could not unlink file")
				failed++
				continue
			}

			if err := d.files.Delete(ctx, file.ID); err != nil {
				d.logger.Error().Err(err).Str("user", user.Name).Str("path", fullPath).Msg("could not delete record")
				continue
			}

			freedBytes += file.Size
			removed = append(removed, fullPath)
			d.logger.Info().Str("user", user.Name).Str("path", fullPath).Msg("deleted file")
		}
	}

	if err := d.quota.RecomputeAndPropagate(ctx, user); err != nil {
		return err
	}

	// Обработанные удаления снимаются в любом случае: отсроченные файлы
	// просто живут дальше обычными записями каталога
	for i := range due {
		if err := d.deletions.Delete(ctx, due[i].ID); err != nil {
			return err
		}
	}

	d.logger.Info().
		Str("user", user.Name).
		Int("removed", len(removed)).
		Int("failed", failed).
		Int64("freed_bytes", freedBytes).
		Msg("deletions executed")

	d.notifyDeleted(ctx, user, removed, now)

	return nil
}

func (d *Deleter) notifyDeleted(ctx context.Context, user *domain.User, removed []string, at time.Time) {
	if !user.Notify || user.Email == "" || len(removed) == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The following files have been deleted on %s UTC\n\n",
		at.Format("02 Jan 2006 15:04"))
	for _, p := range removed {
		b.WriteString(p)
		b.WriteString("\n")
	}

	subject := "[XFC] - Files deleted"
	if err := d.notifier.Send(ctx, user.Email, subject, b.String()); err != nil {
		d.logger.Error().Err(err).Str("user", user.Name).Msg("could not send notification")
	}
}
