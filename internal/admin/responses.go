package admin

import (
	"auditd/pkg/platform/audit"
	"auditd/pkg/platform/audit/filter"
)

// FilterEntry is one realm/topic decision on the wire.
type FilterEntry struct {
	Realm   string `json:"realm"`
	Topic   string `json:"topic"`
	Enabled bool   `json:"enabled"`
}

// FiltersResponse lists every configured decision, sorted by realm then topic.
type FiltersResponse struct {
	Filters []FilterEntry `json:"filters"`
	Total   int           `json:"total"`
}

// UpdateFilterRequest is the body of PUT /admin/audit/filters.
type UpdateFilterRequest struct {
	Realm   string `json:"realm"`
	Topic   string `json:"topic"`
	Enabled *bool  `json:"enabled"`
}

// RecordsResponse wraps recent records, newest first.
type RecordsResponse struct {
	Records []audit.Record `json:"records"`
	Total   int            `json:"total"`
}

func toFilterEntry(key filter.Key, enabled bool) FilterEntry {
	return FilterEntry{Realm: key.Realm, Topic: string(key.Topic), Enabled: enabled}
}
