package service

import (
	"context"
	"fmt"

	"xfercache/internal/domain"
)

// LockManager — взаимное исключение по пользователю для независимых демонов.
// Не реентерабельный; захват никогда не блокируется — при контеншене стадия
// просто пропускает пользователя до следующего прохода.
//
// Известное ограничение: процесс, умерший с захваченной блокировкой, оставляет
// пользователя заблокированным до ручной очистки (DELETE /users/{name}/lock).
type LockManager struct {
	locks LockCatalog
}

func NewLockManager(locks LockCatalog) *LockManager {
	return &LockManager{locks: locks}
}

// TryLock атомарно создаёт запись блокировки, если её нет.
// Возвращает false, если блокировка уже удерживается.
func (m *LockManager) TryLock(ctx context.Context, user *domain.User) (bool, error) {
	acquired, err := m.locks.TryAcquire(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("try lock user %s: %w", user.Name, err)
	}

	return acquired, nil
}

func (m *LockManager) IsLocked(ctx context.Context, user *domain.User) (bool, error) {
	return m.locks.IsLocked(ctx, user.ID)
}

// Unlock идемпотентно снимает блокировку. Каждый захвативший обязан вызвать
// Unlock на всех путях выхода, включая ошибочные, до возврата ошибки наверх.
func (m *LockManager) Unlock(ctx context.Context, user *domain.User) error {
	if err := m.locks.Release(ctx, user.ID); err != nil {
		return fmt.Errorf("unlock user %s: %w", user.Name, err)
	}

	return nil
}
