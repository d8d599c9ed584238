package dto

import "time"

type AlertInfo struct {
	ID             uint64     `json:"id"`
	Pattern        string     `json:"pattern"`
	Description    string     `json:"description"`
	DetectedAt     time.Time  `json:"detected_at"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}
