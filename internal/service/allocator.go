package service

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"

	"xfercache/internal/domain"
)

// Allocator заводит нового пользователя: подбирает том со свободным
// невыделенным местом, создаёт его кэш-директорию и запись в каталоге.
type Allocator struct {
	users   UserCatalog
	volumes VolumeCatalog
	logger  zerolog.Logger

	defaultQuotaSize int64
	defaultHardLimit int64
}

func NewAllocator(users UserCatalog, volumes VolumeCatalog, defaultQuotaSize, defaultHardLimit int64, logger zerolog.Logger) *Allocator {
	return &Allocator{
		users:            users,
		volumes:          volumes,
		logger:           logger.With().Str("component", "allocator").Logger(),
		defaultQuotaSize: defaultQuotaSize,
		defaultHardLimit: defaultHardLimit,
	}
}

// CreateUser выбирает первый том, где hard limit помещается в невыделенный
// остаток, создаёт user_cache/<name> и возвращает созданного пользователя.
func (a *Allocator) CreateUser(ctx context.Context, name, email string, notify bool) (*domain.User, error) {
	volumes, err := a.volumes.List(ctx)
	if err != nil {
		return nil, err
	}

	var target *domain.CacheVolume
	for i := range volumes {
		if volumes[i].FreeBytes() > a.defaultHardLimit {
			target = &volumes[i]
			break
		}
	}
	if target == nil {
		return nil, domain.ErrNoFreeVolume
	}

	cachePath := path.Join("user_cache", name)

	// Общая область для всех пользователей, затем личная
	if err := os.MkdirAll(filepath.Join(target.Mountpoint, "user_cache"), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(target.Mountpoint, cachePath), 0o700); err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:          name,
		Email:         email,
		Notify:        notify,
		QuotaSize:     a.defaultQuotaSize,
		HardLimitSize: a.defaultHardLimit,
		CachePath:     cachePath,
		VolumeID:      target.ID,
	}

	if err := a.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := a.volumes.ApplyAllocatedDelta(ctx, target.ID, user.HardLimitSize); err != nil {
		return nil, err
	}

	a.logger.Info().
		Str("user", name).
		Str("mountpoint", target.Mountpoint).
		Int64("quota_size", user.QuotaSize).
		Int64("hard_limit", user.HardLimitSize).
		Msg("user created")

	return user, nil
}
