package passwordless

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventTokenIssued         ActivityEventType = "token.issued"
	ActivityEventTokenInvalidated    ActivityEventType = "token.invalidated"
	ActivityEventTokenRedeemed       ActivityEventType = "token.redeemed"
	ActivityEventTokenDeliveryFailed ActivityEventType = "token.delivery_failed"
	ActivityEventAliasUnverified     ActivityEventType = "alias.unverified"
	ActivityEventAliasVerified       ActivityEventType = "alias.verified"
)

// ActivityEvent captures audit-friendly information about a token or alias change.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	AliasType  AliasKind
	TokenID    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity is best effort, sink failures end up as warnings.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil && logger != nil {
		logger.Warn("activity sink error", "error", err, "event", event.EventType)
	}
}
