package queue

const (
	// Имена очередей совпадают с внешним сканером.
	RequestQueue = "scanner_request"
	ResultQueue  = "scanner_output"
)

// ScanRequest — задание внешнему сканеру на обход рабочей директории.
type ScanRequest struct {
	Username string `json:"username"`
	WorkDir  string `json:"work_dir"`
}

// ScanResult — итог обхода: сырые байты и байто-дни пользователя.
type ScanResult struct {
	Username           string `json:"username"`
	HardQuotaBytes     int64  `json:"hard_quota_bytes"`
	TemporalQuotaBytes int64  `json:"temporal_quota_bytes"`
}
