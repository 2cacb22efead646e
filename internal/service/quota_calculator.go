package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"xfercache/internal/domain"
)

// QuotaCalculator пересчитывает производные значения пользователя из записей
// каталога: quota_used (байто-дни) и total_used (сырые байты).
type QuotaCalculator struct {
	files   FileCatalog
	users   UserCatalog
	volumes VolumeCatalog
	logger  zerolog.Logger

	now func() time.Time
}

func NewQuotaCalculator(files FileCatalog, users UserCatalog, volumes VolumeCatalog, logger zerolog.Logger) *QuotaCalculator {
	return &QuotaCalculator{
		files:   files,
		users:   users,
		volumes: volumes,
		logger:  logger.With().Str("component", "quota").Logger(),
		now:     time.Now,
	}
}

// Recompute пересчитывает quota_used = Σ size×(age_days+1) и total_used = Σ size
// по всем записям пользователя и записывает оба значения на аккаунт (и в
// переданную структуру).
func (c *QuotaCalculator) Recompute(ctx context.Context, user *domain.User) error {
	files, err := c.files.ListByUser(ctx, user.ID)
	if err != nil {
		return err
	}

	now := c.now().UTC()
	var quotaUsed, totalUsed int64
	for i := range files {
		quotaUsed += files[i].TemporalWeight(now)
		totalUsed += files[i].Size
	}

	if err := c.users.UpdateUsage(ctx, user.ID, quotaUsed, totalUsed); err != nil {
		return err
	}

	user.QuotaUsed = quotaUsed
	user.TotalUsed = totalUsed

	return nil
}

// RecomputeAndPropagate фиксирует старое total_used, пересчитывает значения и
// применяет знаковую разницу (new − old) как дельту к used_bytes тома.
// Независимый пересчёт агрегата тома здесь недопустим: параллельные проходы
// по разным пользователям двоили бы учёт.
func (c *QuotaCalculator) RecomputeAndPropagate(ctx context.Context, user *domain.User) error {
	oldTotal := user.TotalUsed

	if err := c.Recompute(ctx, user); err != nil {
		return err
	}

	delta := user.TotalUsed - oldTotal
	if delta == 0 {
		return nil
	}

	if err := c.volumes.ApplyUsedDelta(ctx, user.VolumeID, delta); err != nil {
		return err
	}

	c.logger.Debug().
		Str("user", user.Name).
		Int64("delta", delta).
		Int64("quota_used", user.QuotaUsed).
		Int64("total_used", user.TotalUsed).
		Msg("usage recomputed")

	return nil
}

// RepairAll пересчитывает всех пользователей и агрегаты всех томов с нуля.
// Ручная починка дрейфа агрегатов после сбоя между коммитами конвейера.
func (c *QuotaCalculator) RepairAll(ctx context.Context) error {
	users, err := c.users.List(ctx)
	if err != nil {
		return err
	}

	for i := range users {
		if err := c.Recompute(ctx, &users[i]); err != nil {
			return err
		}
	}

	volumes, err := c.volumes.List(ctx)
	if err != nil {
		return err
	}

	for i := range volumes {
		if err := c.volumes.RecalculateUsed(ctx, volumes[i].ID); err != nil {
			return err
		}
	}

	return nil
}
