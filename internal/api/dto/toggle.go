package dto

// ToggleRequest flips the registration kill-switch.
type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}
