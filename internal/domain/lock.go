package domain

// UserLock — advisory-блокировка пользователя. Существование записи означает
// "заблокирован": у пользователя одновременно может быть не более одной записи.
type UserLock struct {
	UserID int64 `json:"user_id" db:"user_id"`
}
