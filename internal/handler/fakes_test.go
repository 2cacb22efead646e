package handler

import (
	"context"
	"strings"
	"time"

	"xfercache/internal/domain"
)

// Компактные in-memory каталоги для HTTP-тестов. Параллельный доступ здесь не
// нужен, поэтому без мьютексов.

type memUsers struct {
	users  []domain.User
	nextID int64
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	for i := range m.users {
		if m.users[i].ID == id {
			cp := m.users[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUsers) GetByName(_ context.Context, name string) (*domain.User, error) {
	for i := range m.users {
		if m.users[i].Name == name {
			cp := m.users[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memUsers) List(_ context.Context) ([]domain.User, error) {
	return append([]domain.User(nil), m.users...), nil
}

func (m *memUsers) Create(_ context.Context, user *domain.User) error {
	for i := range m.users {
		if m.users[i].Name == user.Name {
			return domain.ErrUserExists
		}
	}
	m.nextID++
	user.ID = m.nextID
	m.users = append(m.users, *user)
	return nil
}

func (m *memUsers) UpdateUsage(_ context.Context, id int64, quotaUsed, totalUsed int64) error {
	for i := range m.users {
		if m.users[i].ID == id {
			m.users[i].QuotaUsed = quotaUsed
			m.users[i].TotalUsed = totalUsed
			return nil
		}
	}
	return domain.ErrUserNotFound
}

func (m *memUsers) TouchLastScanned(_ context.Context, id int64, at time.Time) error {
	for i := range m.users {
		if m.users[i].ID == id {
			m.users[i].LastScanned = &at
			return nil
		}
	}
	return domain.ErrUserNotFound
}

func (m *memUsers) GetOldestScanned(_ context.Context) (*domain.User, error) {
	if len(m.users) == 0 {
		return nil, domain.ErrUserNotFound
	}
	cp := m.users[0]
	return &cp, nil
}

type memFiles struct {
	files []domain.CachedFile
}

func (m *memFiles) ListByUser(_ context.Context, userID int64) ([]domain.CachedFile, error) {
	var out []domain.CachedFile
	for i := range m.files {
		if m.files[i].UserID == userID {
			out = append(out, m.files[i])
		}
	}
	return out, nil
}

func (m *memFiles) ListByUserMatch(ctx context.Context, userID int64, match string) ([]domain.CachedFile, error) {
	all, err := m.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if match == "" {
		return all, nil
	}
	var out []domain.CachedFile
	for i := range all {
		if strings.Contains(all[i].Path, match) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (m *memFiles) GetByPath(_ context.Context, userID int64, path string) (*domain.CachedFile, error) {
	for i := range m.files {
		if m.files[i].UserID == userID && m.files[i].Path == path {
			cp := m.files[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memFiles) Create(_ context.Context, file *domain.CachedFile) error {
	file.ID = int64(len(m.files) + 1)
	m.files = append(m.files, *file)
	return nil
}

func (m *memFiles) UpdateSize(_ context.Context, id int64, size int64) error {
	for i := range m.files {
		if m.files[i].ID == id {
			m.files[i].Size = size
			return nil
		}
	}
	return nil
}

func (m *memFiles) Delete(_ context.Context, id int64) error {
	for i := range m.files {
		if m.files[i].ID == id {
			m.files = append(m.files[:i], m.files[i+1:]...)
			return nil
		}
	}
	return nil
}

type memVolumes struct {
	volumes []domain.CacheVolume
}

func (m *memVolumes) GetByID(_ context.Context, id int64) (*domain.CacheVolume, error) {
	for i := range m.volumes {
		if m.volumes[i].ID == id {
			cp := m.volumes[i]
			return &cp, nil
		}
	}
	return nil, domain.ErrVolumeNotFound
}

func (m *memVolumes) List(_ context.Context) ([]domain.CacheVolume, error) {
	return append([]domain.CacheVolume(nil), m.volumes...), nil
}

func (m *memVolumes) ApplyUsedDelta(_ context.Context, id int64, delta int64) error {
	for i := range m.volumes {
		if m.volumes[i].ID == id {
			m.volumes[i].UsedBytes += delta
			return nil
		}
	}
	return domain.ErrVolumeNotFound
}

func (m *memVolumes) ApplyAllocatedDelta(_ context.Context, id int64, delta int64) error {
	for i := range m.volumes {
		if m.volumes[i].ID == id {
			m.volumes[i].AllocatedBytes += delta
			return nil
		}
	}
	return domain.ErrVolumeNotFound
}

func (m *memVolumes) RecalculateUsed(_ context.Context, _ int64) error {
	return nil
}

type memLocks struct {
	held map[int64]bool
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[int64]bool)}
}

func (m *memLocks) TryAcquire(_ context.Context, userID int64) (bool, error) {
	if m.held[userID] {
		return false, nil
	}
	m.held[userID] = true
	return true, nil
}

func (m *memLocks) IsLocked(_ context.Context, userID int64) (bool, error) {
	return m.held[userID], nil
}

func (m *memLocks) Release(_ context.Context, userID int64) error {
	delete(m.held, userID)
	return nil
}

type memDeletions struct {
	deletions []domain.ScheduledDeletion
}

func (m *memDeletions) HasPending(_ context.Context, userID int64) (bool, error) {
	for i := range m.deletions {
		if m.deletions[i].UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memDeletions) ListByUser(_ context.Context, userID int64) ([]domain.ScheduledDeletion, error) {
	var out []domain.ScheduledDeletion
	for i := range m.deletions {
		if m.deletions[i].UserID == userID {
			out = append(out, m.deletions[i])
		}
	}
	return out, nil
}

func (m *memDeletions) ListDue(_ context.Context, userID int64, now time.Time) ([]domain.ScheduledDeletion, error) {
	var out []domain.ScheduledDeletion
	for i := range m.deletions {
		if m.deletions[i].UserID == userID && !m.deletions[i].TimeDelete.After(now) {
			out = append(out, m.deletions[i])
		}
	}
	return out, nil
}

func (m *memDeletions) Create(_ context.Context, deletion *domain.ScheduledDeletion) error {
	deletion.ID = int64(len(m.deletions) + 1)
	m.deletions = append(m.deletions, *deletion)
	return nil
}

func (m *memDeletions) Delete(_ context.Context, id int64) error {
	for i := range m.deletions {
		if m.deletions[i].ID == id {
			m.deletions = append(m.deletions[:i], m.deletions[i+1:]...)
			return nil
		}
	}
	return nil
}
