package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"xfercache/internal/domain"
)

// Scheduler решает, какие файлы пользователя должны быть удалены, и фиксирует
// решение как отложенное удаление с grace-дедлайном. Алгоритм "неумолимый":
// спасённый пользователем файл просто вернётся кандидатом на следующем проходе.
type Scheduler struct {
	files     FileCatalog
	deletions DeletionCatalog
	volumes   VolumeCatalog
	notifier  Notifier
	logger    zerolog.Logger

	gracePeriod        time.Duration
	maxPersistenceDays int64

	now func() time.Time
}

func NewScheduler(
	files FileCatalog,
	deletions DeletionCatalog,
	volumes VolumeCatalog,
	notifier Notifier,
	gracePeriod time.Duration,
	maxPersistenceDays int64,
	logger zerolog.Logger,
) *Scheduler {
	return &Scheduler{
		files:              files,
		deletions:          deletions,
		volumes:            volumes,
		notifier:           notifier,
		logger:             logger.With().Str("component", "scheduler").Logger(),
		gracePeriod:        gracePeriod,
		maxPersistenceDays: maxPersistenceDays,
		now:                time.Now,
	}
}

// Schedule составляет набор кандидатов жадным обходом в порядке обнаружения
// (строго FIFO по first_seen, не по последнему доступу) и создаёт отложенное
// удаление. No-op, если у пользователя уже есть необработанное удаление или
// бюджеты не превышены и нет файлов старше max persistence.
func (s *Scheduler) Schedule(ctx context.Context, user *domain.User) error {
	pending, err := s.deletions.HasPending(ctx, user.ID)
	if err != nil {
		return err
	}
	if pending {
		return nil
	}

	files, err := s.files.ListByUser(ctx, user.ID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	overQuota := user.QuotaUsed - user.QuotaSize
	overLimit := user.TotalUsed - user.HardLimitSize

	// overAgeAt[i] — есть ли среди ещё не рассмотренных файлов (начиная с i)
	// файл старше max persistence; такие кандидаты безусловны
	overAgeAt := make([]bool, len(files)+1)
	for i := len(files) - 1; i >= 0; i-- {
		overAgeAt[i] = overAgeAt[i+1] || files[i].AgeDays(now) >= s.maxPersistenceDays
	}

	if overQuota <= 0 && overLimit <= 0 && !overAgeAt[0] {
		return nil
	}

	var candidates []domain.CachedFile
	var quotaDelete, hardDelete int64
	for i := range files {
		satisfied := quotaDelete > overQuota && hardDelete > overLimit
		if satisfied && !overAgeAt[i] {
			break
		}
		if satisfied && files[i].AgeDays(now) < s.maxPersistenceDays {
			continue
		}
		candidates = append(candidates, files[i])
		quotaDelete += files[i].TemporalWeight(now)
		hardDelete += files[i].Size
	}

	if len(candidates) == 0 {
		return nil
	}

	deletion := &domain.ScheduledDeletion{
		UserID:      user.ID,
		TimeEntered: now,
		TimeDelete:  now.Add(s.gracePeriod),
		Files:       candidates,
	}

	if err := s.deletions.Create(ctx, deletion); err != nil {
		return err
	}

	s.logger.Info().
		Str("user", user.Name).
		Int("files", len(candidates)).
		Time("time_delete", deletion.TimeDelete).
		Msg("scheduled deletion")

	// Уведомление best-effort: ошибка доставки не откатывает запись
	s.notifyScheduled(ctx, user, deletion)

	return nil
}

func (s *Scheduler) notifyScheduled(ctx context.Context, user *domain.User, deletion *domain.ScheduledDeletion) {
	if !user.Notify || user.Email == "" {
		return
	}

	volume, err := s.volumes.GetByID(ctx, user.VolumeID)
	if err != nil {
		s.logger.Error().Err(err).Str("user", user.Name).Msg("could not load volume for notification")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The following files will be deleted from the transfer cache on %s UTC\n\n",
		deletion.TimeDelete.UTC().Format("02 Jan 2006 15:04"))
	for i := range deletion.Files {
		b.WriteString(deletion.Files[i].FullPath(volume))
		b.WriteString("\n")
	}

	subject := "[XFC] - Notification of scheduled file deletion"
	if err := s.notifier.Send(ctx, user.Email, subject, b.String()); err != nil {
		s.logger.Error().Err(err).Str("user", user.Name).Msg("could not send notification")
	}
}
