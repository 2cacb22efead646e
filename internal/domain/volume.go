package domain

// CacheVolume — выделенная область диска под кэш-файлы пользователей.
// used_bytes ведётся инкрементально (дельтами), а не пересчитывается с нуля,
// чтобы параллельная обработка разных пользователей не затирала агрегат.
type CacheVolume struct {
	ID             int64  `json:"id" db:"id"`
	Mountpoint     string `json:"mountpoint" db:"mountpoint"`
	SizeBytes      int64  `json:"size_bytes" db:"size_bytes"`
	AllocatedBytes int64  `json:"allocated_bytes" db:"allocated_bytes"`
	UsedBytes      int64  `json:"used_bytes" db:"used_bytes"`
}

// FreeBytes возвращает объём, который ещё можно выделить под квоты пользователей.
func (v *CacheVolume) FreeBytes() int64 {
	return v.SizeBytes - v.AllocatedBytes
}
