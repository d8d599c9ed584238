package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"gatehouse/internal/api/dto"
	"gatehouse/internal/auth"
	"gatehouse/internal/config"
	"gatehouse/internal/domain"
	"gatehouse/internal/protection/blockstore"
)

func getProtectionConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.GetConfig())
}

func saveProtectionConfig(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	config.SetConfig(newConfig)
	log.Info("Protection configuration updated", "by", auth.ActorFromRequest(r))

	writeJSON(w, http.StatusOK, config.GetConfig())
}

func toggleRegistration(w http.ResponseWriter, r *http.Request) {
	var request dto.ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	config.SetEnabled(request.Enabled)
	log.Warn("Registration kill-switch flipped", "enabled", request.Enabled, "by", auth.ActorFromRequest(r))

	writeJSON(w, http.StatusOK, map[string]bool{"enabled": request.Enabled})
}

func listBlocks(w http.ResponseWriter, r *http.Request) {
	active, err := blockRepo.ActiveBlocks(r.Context())
	if err != nil {
		writeError(w, "Failed to load blocks", http.StatusInternalServerError)
		return
	}

	infos := make([]dto.BlockedIPInfo, 0, len(active))
	for _, block := range active {
		infos = append(infos, dto.BlockedIPInfo{
			IPAddress: block.IPAddress,
			Reason:    block.Reason,
			BlockedBy: block.BlockedBy,
			BlockedAt: block.BlockedAt,
			ExpiresAt: block.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

func blockIP(w http.ResponseWriter, r *http.Request) {
	var request dto.BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if net.ParseIP(strings.TrimSpace(request.IPAddress)) == nil {
		writeError(w, "Invalid IP address", http.StatusBadRequest)
		return
	}

	duration := time.Duration(request.DurationMinutes) * time.Minute
	actor := auth.ActorFromRequest(r)

	if err := blocks.Block(r.Context(), strings.TrimSpace(request.IPAddress), duration, request.Reason, actor); err != nil {
		log.Error("Manual block failed", "ip", request.IPAddress, "error", err)
		writeError(w, "Failed to block IP", http.StatusInternalServerError)
		return
	}

	log.Info("IP blocked", "ip", request.IPAddress, "by", actor, "duration", duration)
	w.WriteHeader(http.StatusCreated)
}

func unblockIP(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")

	if err := blocks.Unblock(r.Context(), ip); err != nil {
		if errors.Is(err, blockstore.ErrNotFound) {
			writeError(w, "IP is not blocked", http.StatusNotFound)
			return
		}
		log.Error("Unblock failed", "ip", ip, "error", err)
		writeError(w, "Failed to unblock IP", http.StatusInternalServerError)
		return
	}

	log.Info("IP unblocked", "ip", ip, "by", auth.ActorFromRequest(r))
	w.WriteHeader(http.StatusNoContent)
}

func listDomains(w http.ResponseWriter, r *http.Request) {
	listType := r.URL.Query().Get("list")
	if listType != "" && listType != domain.ListTypeBlacklist && listType != domain.ListTypeWhitelist {
		writeError(w, "Unknown list type", http.StatusBadRequest)
		return
	}

	entries, err := blockRepo.ListDomains(r.Context(), listType)
	if err != nil {
		writeError(w, "Failed to load domain lists", http.StatusInternalServerError)
		return
	}

	infos := make([]dto.DomainEntryInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, dto.DomainEntryInfo{
			Domain:   entry.Domain,
			ListType: entry.ListType,
			Reason:   entry.Reason,
			AddedBy:  entry.AddedBy,
			AddedAt:  entry.AddedAt,
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

func blacklistDomain(w http.ResponseWriter, r *http.Request) {
	saveDomain(w, r, domain.ListTypeBlacklist)
}

func whitelistDomain(w http.ResponseWriter, r *http.Request) {
	saveDomain(w, r, domain.ListTypeWhitelist)
}

func saveDomain(w http.ResponseWriter, r *http.Request, listType string) {
	var request dto.DomainListRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	name := strings.ToLower(strings.TrimSpace(request.Domain))
	if name == "" || strings.ContainsAny(name, " @/") {
		writeError(w, "Invalid domain", http.StatusBadRequest)
		return
	}

	actor := auth.ActorFromRequest(r)

	var err error
	if listType == domain.ListTypeBlacklist {
		err = blocks.Blacklist(r.Context(), name, request.Reason, actor)
	} else {
		err = blocks.Whitelist(r.Context(), name, request.Reason, actor)
	}
	if err != nil {
		log.Error("Domain list update failed", "domain", name, "list", listType, "error", err)
		writeError(w, "Failed to update domain list", http.StatusInternalServerError)
		return
	}

	log.Info("Domain list updated", "domain", name, "list", listType, "by", actor)
	w.WriteHeader(http.StatusCreated)
}

func removeDomain(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(r.PathValue("domain"))

	if err := blocks.RemoveDomain(r.Context(), name); err != nil {
		if errors.Is(err, blockstore.ErrNotFound) {
			writeError(w, "Domain is not listed", http.StatusNotFound)
			return
		}
		log.Error("Domain removal failed", "domain", name, "error", err)
		writeError(w, "Failed to remove domain", http.StatusInternalServerError)
		return
	}

	log.Info("Domain removed from lists", "domain", name, "by", auth.ActorFromRequest(r))
	w.WriteHeader(http.StatusNoContent)
}

func listAttempts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := attemptFilterFromQuery(query)
	rows, total, err := attempts.List(r.Context(), filter)
	if err != nil {
		writeError(w, "Failed to load attempts", http.StatusInternalServerError)
		return
	}

	page := dto.AttemptPage{Total: total, Attempts: make([]dto.AttemptInfo, 0, len(rows))}
	for _, row := range rows {
		page.Attempts = append(page.Attempts, dto.AttemptInfo{
			ID:              row.ID,
			IPAddress:       row.IPAddress,
			Subnet:          row.Subnet,
			EmailDomain:     row.EmailDomain,
			Fingerprint:     row.Fingerprint,
			Success:         row.Success,
			SuspicionScore:  row.SuspicionScore,
			CaptchaRequired: row.CaptchaRequired,
			CaptchaVerified: row.CaptchaVerified,
			RejectionReason: row.RejectionReason,
			Reasons:         row.Reasons,
			CreatedAt:       row.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, page)
}

func getMetrics(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r.URL.Query(), "hours", 24)
	if hours <= 0 || hours > 24*31 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	stats, err := attempts.Stats(r.Context(), since)
	if err != nil {
		writeError(w, "Failed to compute metrics", http.StatusInternalServerError)
		return
	}

	snapshot := dto.MetricsSnapshot{
		WindowHours:     hours,
		TotalAttempts:   stats.Total,
		Successes:       stats.Successes,
		CaptchaRequired: stats.CaptchaRequired,
		AverageScore:    stats.AverageScore,
		Rejections:      stats.Rejections,
	}

	if active, err := blockRepo.ActiveBlocks(r.Context()); err == nil {
		snapshot.ActiveBlocks = len(active)
	}
	if open, err := alertsRepo.List(r.Context(), true, 500); err == nil {
		snapshot.OpenAlerts = len(open)
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func listAlerts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	onlyOpen := query.Get("open") == "true"
	limit := queryInt(query, "limit", 100)

	alerts, err := alertsRepo.List(r.Context(), onlyOpen, limit)
	if err != nil {
		writeError(w, "Failed to load alerts", http.StatusInternalServerError)
		return
	}

	infos := make([]dto.AlertInfo, 0, len(alerts))
	for _, alert := range alerts {
		infos = append(infos, dto.AlertInfo{
			ID:             alert.ID,
			Pattern:        alert.Pattern,
			Description:    alert.Description,
			DetectedAt:     alert.DetectedAt,
			Acknowledged:   alert.Acknowledged,
			AcknowledgedBy: alert.AcknowledgedBy,
			AcknowledgedAt: alert.AcknowledgedAt,
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

// scanPatterns runs a detector pass on demand so an operator can probe the
// current traffic without waiting for the next scheduled scan.
func scanPatterns(w http.ResponseWriter, r *http.Request) {
	report, err := patterns.Scan(r.Context())
	if err != nil {
		log.Error("On-demand pattern scan failed", "error", err)
		writeError(w, "Failed to scan for attack patterns", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, "Invalid alert id", http.StatusBadRequest)
		return
	}

	done, err := alertsRepo.Acknowledge(r.Context(), id, auth.ActorFromRequest(r), time.Now())
	if err != nil {
		writeError(w, "Failed to acknowledge alert", http.StatusInternalServerError)
		return
	}
	if !done {
		writeError(w, "Alert not found or already acknowledged", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
