package dto

import "time"

type DomainListRequest struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

type DomainEntryInfo struct {
	Domain   string    `json:"domain"`
	ListType string    `json:"list_type"`
	Reason   string    `json:"reason"`
	AddedBy  string    `json:"added_by"`
	AddedAt  time.Time `json:"added_at"`
}
