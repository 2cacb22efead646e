package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"xfercache/internal/domain"
)

// Фейки каталога для тестов сервисов: та же семантика CRUD/filter, что у
// репозиториев, но в памяти и с подсчётом мутаций.

type fakeUsers struct {
	mu      sync.Mutex
	users   map[int64]*domain.User
	nextID  int64
	updates int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[int64]*domain.User), nextID: 1}
}

func (f *fakeUsers) add(u domain.User) *domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.nextID
	f.nextID++
	f.users[u.ID] = &u
	return &u
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByName(_ context.Context, name string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Name == name {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeUsers) List(_ context.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeUsers) Create(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Name == user.Name {
			return domain.ErrUserExists
		}
	}
	user.ID = f.nextID
	f.nextID++
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUsers) UpdateUsage(_ context.Context, id int64, quotaUsed, totalUsed int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.QuotaUsed = quotaUsed
	u.TotalUsed = totalUsed
	f.updates++
	return nil
}

func (f *fakeUsers) TouchLastScanned(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastScanned = &at
	return nil
}

func (f *fakeUsers) GetOldestScanned(_ context.Context) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *domain.User
	for _, u := range f.users {
		if oldest == nil {
			oldest = u
			continue
		}
		switch {
		case u.LastScanned == nil && oldest.LastScanned != nil:
			oldest = u
		case u.LastScanned != nil && oldest.LastScanned != nil && u.LastScanned.Before(*oldest.LastScanned):
			oldest = u
		}
	}
	if oldest == nil {
		return nil, domain.ErrUserNotFound
	}
	cp := *oldest
	return &cp, nil
}

type fakeFiles struct {
	mu      sync.Mutex
	files   map[int64]*domain.CachedFile
	nextID  int64
	creates int
	updates int
	deletes int
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: make(map[int64]*domain.CachedFile), nextID: 1}
}

func (f *fakeFiles) add(file domain.CachedFile) *domain.CachedFile {
	f.mu.Lock()
	defer f.mu.Unlock()
	file.ID = f.nextID
	f.nextID++
	f.files[file.ID] = &file
	return &file
}

func (f *fakeFiles) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates + f.updates + f.deletes
}

func (f *fakeFiles) ListByUser(_ context.Context, userID int64) ([]domain.CachedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CachedFile
	for _, file := range f.files {
		if file.UserID == userID {
			out = append(out, *file)
		}
	}
	// Порядок обнаружения, как в репозитории
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeFiles) ListByUserMatch(ctx context.Context, userID int64, match string) ([]domain.CachedFile, error) {
	all, err := f.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []domain.CachedFile
	for _, file := range all {
		if match == "" || strings.Contains(file.Path, match) {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *fakeFiles) GetByPath(_ context.Context, userID int64, path string) (*domain.CachedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, file := range f.files {
		if file.UserID == userID && file.Path == path {
			cp := *file
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeFiles) Create(_ context.Context, file *domain.CachedFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file.ID = f.nextID
	f.nextID++
	cp := *file
	f.files[file.ID] = &cp
	f.creates++
	return nil
}

func (f *fakeFiles) UpdateSize(_ context.Context, id int64, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return errors.New("file not found")
	}
	file.Size = size
	f.updates++
	return nil
}

func (f *fakeFiles) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, id)
	f.deletes++
	return nil
}

type fakeVolumes struct {
	mu      sync.Mutex
	volumes map[int64]*domain.CacheVolume
	nextID  int64
}

func newFakeVolumes() *fakeVolumes {
	return &fakeVolumes{volumes: make(map[int64]*domain.CacheVolume), nextID: 1}
}

func (f *fakeVolumes) add(v domain.CacheVolume) *domain.CacheVolume {
	f.mu.Lock()
	defer f.mu.Unlock()
	v.ID = f.nextID
	f.nextID++
	f.volumes[v.ID] = &v
	return &v
}

func (f *fakeVolumes) GetByID(_ context.Context, id int64) (*domain.CacheVolume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[id]
	if !ok {
		return nil, domain.ErrVolumeNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVolumes) List(_ context.Context) ([]domain.CacheVolume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CacheVolume, 0, len(f.volumes))
	for _, v := range f.volumes {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeVolumes) ApplyUsedDelta(_ context.Context, id int64, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[id]
	if !ok {
		return domain.ErrVolumeNotFound
	}
	v.UsedBytes += delta
	if v.UsedBytes < 0 {
		v.UsedBytes = 0
	}
	return nil
}

func (f *fakeVolumes) ApplyAllocatedDelta(_ context.Context, id int64, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[id]
	if !ok {
		return domain.ErrVolumeNotFound
	}
	v.AllocatedBytes += delta
	return nil
}

func (f *fakeVolumes) RecalculateUsed(_ context.Context, id int64) error {
	return nil
}

type fakeLocks struct {
	mu    sync.Mutex
	locks map[int64]bool
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{locks: make(map[int64]bool)}
}

func (f *fakeLocks) TryAcquire(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[userID] {
		return false, nil
	}
	f.locks[userID] = true
	return true, nil
}

func (f *fakeLocks) IsLocked(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locks[userID], nil
}

func (f *fakeLocks) Release(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, userID)
	return nil
}

type fakeDeletions struct {
	mu        sync.Mutex
	deletions map[int64]*domain.ScheduledDeletion
	nextID    int64
}

func newFakeDeletions() *fakeDeletions {
	return &fakeDeletions{deletions: make(map[int64]*domain.ScheduledDeletion), nextID: 1}
}

func (f *fakeDeletions) HasPending(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deletions {
		if d.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDeletions) ListByUser(_ context.Context, userID int64) ([]domain.ScheduledDeletion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ScheduledDeletion
	for _, d := range f.deletions {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeEntered.Before(out[j].TimeEntered) })
	return out, nil
}

func (f *fakeDeletions) ListDue(ctx context.Context, userID int64, now time.Time) ([]domain.ScheduledDeletion, error) {
	all, err := f.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []domain.ScheduledDeletion
	for _, d := range all {
		if !d.TimeDelete.After(now) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDeletions) Create(_ context.Context, deletion *domain.ScheduledDeletion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	deletion.ID = f.nextID
	f.nextID++
	cp := *deletion
	cp.Files = append([]domain.CachedFile(nil), deletion.Files...)
	f.deletions[deletion.ID] = &cp
	return nil
}

func (f *fakeDeletions) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.deletions, id)
	return nil
}

type sentMail struct {
	recipient string
	subject   string
	body      string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, recipient, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{recipient: recipient, subject: subject, body: body})
	return nil
}
