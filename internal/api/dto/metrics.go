package dto

// MetricsSnapshot summarises recent registration traffic for the admin
// dashboard.
type MetricsSnapshot struct {
	WindowHours     int              `json:"window_hours"`
	TotalAttempts   int64            `json:"total_attempts"`
	Successes       int64            `json:"successes"`
	CaptchaRequired int64            `json:"captcha_required"`
	AverageScore    float64          `json:"average_score"`
	Rejections      map[string]int64 `json:"rejections"`
	ActiveBlocks    int              `json:"active_blocks"`
	OpenAlerts      int              `json:"open_alerts"`
}
