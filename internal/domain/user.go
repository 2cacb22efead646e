package domain

import (
	"path"
	"time"
)

// User — пользователь кэш-области. quota_used и total_used — производные
// значения: они всегда пересчитываются из записей CachedFile и хранятся на
// пользователе только для дешёвого чтения.
type User struct {
	ID            int64      `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Email         string     `json:"email" db:"email"`
	Notify        bool       `json:"notify" db:"notify"`
	QuotaSize     int64      `json:"quota_size" db:"quota_size"`
	QuotaUsed     int64      `json:"quota_used" db:"quota_used"`
	HardLimitSize int64      `json:"hard_limit_size" db:"hard_limit_size"`
	TotalUsed     int64      `json:"total_used" db:"total_used"`
	CachePath     string     `json:"cache_path" db:"cache_path"`
	VolumeID      int64      `json:"volume_id" db:"volume_id"`
	LastScanned   *time.Time `json:"last_scanned,omitempty" db:"last_scanned"`
}

// CacheDir возвращает абсолютный путь к кэш-директории пользователя.
func (u *User) CacheDir(volume *CacheVolume) string {
	return path.Join(volume.Mountpoint, u.CachePath)
}

// QuotaInfo — снимок квоты пользователя для API.
type QuotaInfo struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Notify        bool   `json:"notify"`
	QuotaSize     int64  `json:"quota_size"`
	QuotaUsed     int64  `json:"quota_used"`
	HardLimitSize int64  `json:"hard_limit_size"`
	TotalUsed     int64  `json:"total_used"`
	Mountpoint    string `json:"mountpoint"`
	CachePath     string `json:"cache_path"`
}
