package collab

import (
	"context"
	"encoding/json"
)

// Capability names understood by the query engine.
const (
	CapSearchLogs        = "search_logs"
	CapValidateQuery     = "validate_query"
	CapGetSecurityEvents = "get_security_events"
	CapListLogSources    = "list_log_sources"
	CapDiscoverFields    = "discover_fields"
	CapGetStorageUsage   = "get_storage_usage"
	CapTestConnection    = "test_connection"
	CapGetDashboardStats = "get_dashboard_stats"
)

// SearchLogsArgs parameterizes a log search.
type SearchLogsArgs struct {
	Query             string `json:"query"`
	TimePeriodMinutes int    `json:"time_period_minutes,omitempty"`
	MaxCount          int    `json:"max_count,omitempty"`
	CompartmentID     string `json:"compartment_id,omitempty"`
}

// SecurityEventsArgs filters the security-event feed.
type SecurityEventsArgs struct {
	EventType         string `json:"event_type,omitempty"`
	Severity          string `json:"severity,omitempty"`
	TimePeriodMinutes int    `json:"time_period_minutes,omitempty"`
}

// LogSourcesArgs filters the log-source listing.
type LogSourcesArgs struct {
	TimePeriodMinutes int  `json:"time_period_minutes,omitempty"`
	ActiveOnly        bool `json:"active_only,omitempty"`
}

// DiscoverFieldsArgs filters field discovery.
type DiscoverFieldsArgs struct {
	FieldType         string `json:"field_type,omitempty"`
	IsSystem          *bool  `json:"is_system,omitempty"`
	UsedSourcesOnly   bool   `json:"used_sources_only,omitempty"`
	TimePeriodMinutes int    `json:"time_period_minutes,omitempty"`
}

// StorageUsageArgs scopes the storage-usage report.
type StorageUsageArgs struct {
	TimePeriodDays int `json:"time_period_days,omitempty"`
}

// DashboardStatsArgs scopes the dashboard statistics.
type DashboardStatsArgs struct {
	TimePeriodMinutes int `json:"time_period_minutes,omitempty"`
}

// SearchLogs executes a log query.
func (s *Session) SearchLogs(ctx context.Context, args SearchLogsArgs) (json.RawMessage, error) {
	return s.Call(ctx, CapSearchLogs, args)
}

// ValidateQuery checks query syntax without executing it.
func (s *Session) ValidateQuery(ctx context.Context, query string) (json.RawMessage, error) {
	return s.Call(ctx, CapValidateQuery, SearchLogsArgs{Query: query})
}

// GetSecurityEvents fetches recent security events.
func (s *Session) GetSecurityEvents(ctx context.Context, args SecurityEventsArgs) (json.RawMessage, error) {
	return s.Call(ctx, CapGetSecurityEvents, args)
}

// ListLogSources lists configured log sources.
func (s *Session) ListLogSources(ctx context.Context, args LogSourcesArgs) (json.RawMessage, error) {
	return s.Call(ctx, CapListLogSources, args)
}

// DiscoverFields lists known log fields.
func (s *Session) DiscoverFields(ctx context.Context, args DiscoverFieldsArgs) (json.RawMessage, error) {
	return s.Call(ctx, CapDiscoverFields, args)
}

// GetStorageUsage reports log storage consumption.
func (s *Session) GetStorageUsage(ctx context.Context, args StorageUsageArgs) (json.RawMessage, error) {
	return s.Call(ctx, CapGetStorageUsage, args)
}

// TestConnection verifies the query engine can reach its backend.
func (s *Session) TestConnection(ctx context.Context) (json.RawMessage, error) {
	return s.Call(ctx, CapTestConnection, nil)
}

// GetDashboardStats fetches aggregate dashboard statistics.
func (s *Session) GetDashboardStats(ctx context.Context, args DashboardStatsArgs) (json.RawMessage, error) {
	return s.Call(ctx, CapGetDashboardStats, args)
}
