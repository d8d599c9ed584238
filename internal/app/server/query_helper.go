package server

import (
	"net/url"
	"strconv"
	"time"

	"gatehouse/internal/database"
)

func queryInt(values url.Values, key string, fallback int) int {
	raw := values.Get(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func attemptFilterFromQuery(values url.Values) database.AttemptFilter {
	filter := database.AttemptFilter{
		IPAddress:   values.Get("ip"),
		EmailDomain: values.Get("domain"),
		Rejection:   values.Get("rejection"),
		OnlyFailed:  values.Get("failed") == "true",
		Limit:       queryInt(values, "limit", 100),
	}

	if hours := queryInt(values, "hours", 0); hours > 0 {
		filter.Since = time.Now().Add(-time.Duration(hours) * time.Hour)
	}

	page := queryInt(values, "page", 0)
	if page > 0 {
		filter.Offset = page * filter.Limit
	}

	return filter
}
