package wire

import "fmt"

// SubscriptionKind identifies one live data feed a client can subscribe to.
type SubscriptionKind string

const (
	KindSecurityEvents SubscriptionKind = "security_events"
	KindQueryResults   SubscriptionKind = "query_results"
	KindHealthStatus   SubscriptionKind = "health_status"
	KindMetrics        SubscriptionKind = "metrics"
)

// Kinds lists every valid subscription kind.
func Kinds() []SubscriptionKind {
	return []SubscriptionKind{
		KindSecurityEvents,
		KindQueryResults,
		KindHealthStatus,
		KindMetrics,
	}
}

// ParseKind validates a client-supplied kind string.
func ParseKind(s string) (SubscriptionKind, error) {
	switch SubscriptionKind(s) {
	case KindSecurityEvents, KindQueryResults, KindHealthStatus, KindMetrics:
		return SubscriptionKind(s), nil
	}
	return "", fmt.Errorf("unknown subscription kind %q", s)
}

// UpdateType returns the outbound frame type carrying this kind's data.
func (k SubscriptionKind) UpdateType() string {
	return string(k) + "_update"
}
