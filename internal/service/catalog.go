package service

import (
	"context"
	"time"

	"xfercache/internal/domain"
)

// Интерфейсы каталога объявлены на стороне потребителя и покрываются
// репозиториями из internal/repository. Сервисы не знают про SQL — каталог
// для них набор простых CRUD/filter операций.

type UserCatalog interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByName(ctx context.Context, name string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	UpdateUsage(ctx context.Context, id int64, quotaUsed, totalUsed int64) error
	TouchLastScanned(ctx context.Context, id int64, at time.Time) error
	GetOldestScanned(ctx context.Context) (*domain.User, error)
}

type FileCatalog interface {
	ListByUser(ctx context.Context, userID int64) ([]domain.CachedFile, error)
	ListByUserMatch(ctx context.Context, userID int64, match string) ([]domain.CachedFile, error)
	GetByPath(ctx context.Context, userID int64, path string) (*domain.CachedFile, error)
	Create(ctx context.Context, file *domain.CachedFile) error
	UpdateSize(ctx context.Context, id int64, size int64) error
	Delete(ctx context.Context, id int64) error
}

type VolumeCatalog interface {
	GetByID(ctx context.Context, id int64) (*domain.CacheVolume, error)
	List(ctx context.Context) ([]domain.CacheVolume, error)
	ApplyUsedDelta(ctx context.Context, id int64, deltaBytes int64) error
	ApplyAllocatedDelta(ctx context.Context, id int64, deltaBytes int64) error
	RecalculateUsed(ctx context.Context, id int64) error
}

type LockCatalog interface {
	TryAcquire(ctx context.Context, userID int64) (bool, error)
	IsLocked(ctx context.Context, userID int64) (bool, error)
	Release(ctx context.Context, userID int64) error
}

type DeletionCatalog interface {
	HasPending(ctx context.Context, userID int64) (bool, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.ScheduledDeletion, error)
	ListDue(ctx context.Context, userID int64, now time.Time) ([]domain.ScheduledDeletion, error)
	Create(ctx context.Context, deletion *domain.ScheduledDeletion) error
	Delete(ctx context.Context, id int64) error
}

// Notifier — граница уведомлений. Доставка best-effort: ошибка логируется
// и никогда не влияет на состояние конвейера.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}
