package domain

import (
	"path"
	"time"
)

// CachedFile — запись о файле в кэш-области пользователя.
// first_seen выставляется один раз при обнаружении и больше не обновляется.
type CachedFile struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Path      string    `json:"path" db:"path"`
	Size      int64     `json:"size" db:"size"`
	FirstSeen time.Time `json:"first_seen" db:"first_seen"`
}

// FullPath возвращает абсолютный путь к файлу на томе.
func (f *CachedFile) FullPath(volume *CacheVolume) string {
	return path.Join(volume.Mountpoint, f.Path)
}

// AgeDays возвращает возраст файла в полных днях на момент now.
func (f *CachedFile) AgeDays(now time.Time) int64 {
	d := now.Sub(f.FirstSeen)
	if d < 0 {
		return 0
	}
	return int64(d.Hours() / 24)
}

// TemporalWeight возвращает вклад файла во временную квоту: size × (age_days + 1).
// Файл занимает минимум один день квоты с момента обнаружения. Эта формула —
// единственная каноническая: её используют и пересчёт квоты, и планировщик,
// и предсказание.
func (f *CachedFile) TemporalWeight(now time.Time) int64 {
	return f.Size * (f.AgeDays(now) + 1)
}
