package domain

import "time"

// ScheduledDeletion — отложенное удаление набора файлов пользователя.
// time_delete = time_entered + grace-период; до этого момента пользователь
// может "потрогать" файл, и удаление этого файла будет отменено.
// У пользователя одновременно не более одной необработанной записи.
type ScheduledDeletion struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	TimeEntered time.Time `json:"time_entered" db:"time_entered"`
	TimeDelete  time.Time `json:"time_delete" db:"time_delete"`

	// Файлы-кандидаты; заполняется репозиторием отдельным запросом.
	Files []CachedFile `json:"files" db:"-"`
}

// Projection — прогноз следующего удаления, только для чтения.
type Projection struct {
	Name        string     `json:"name"`
	TimePredict *time.Time `json:"time_predict,omitempty"`
	OverQuota   int64      `json:"over_quota"`
	Mountpoint  string     `json:"mountpoint"`
	Files       []string   `json:"files"`
}
