package activitymap

import (
	"strings"
	"time"

	"github.com/goliatone/go-passwordless"
)

const (
	// MetadataKeyAliasType stores the alias kind the event refers to.
	MetadataKeyAliasType = "alias_type"
	// MetadataKeyUserID stores the owner when the object is a token.
	MetadataKeyUserID = "user_id"
)

const (
	defaultChannel = "passwordless"
	defaultActorID = "system"

	ObjectTypeUser          = "user"
	ObjectTypeCallbackToken = "callback_token"
)

// Normalized is a transport agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
}

// Normalize converts a passwordless.ActivityEvent into the normalized shape.
// Token events point at the token, alias events point at the user.
func Normalize(event passwordless.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	objectType, objectID := ObjectTypeUser, strings.TrimSpace(event.UserID)
	if tokenID := strings.TrimSpace(event.TokenID); tokenID != "" {
		objectType, objectID = ObjectTypeCallbackToken, tokenID
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.UserID), options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event, objectType),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the actor id used when the event has no user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func normalizeMetadata(event passwordless.ActivityEvent, objectType string) map[string]any {
	metadata := cloneMap(event.Metadata)

	if event.AliasType != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyAliasType] = string(event.AliasType)
	}

	if objectType == ObjectTypeCallbackToken && event.UserID != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyUserID]; !exists {
			metadata[MetadataKeyUserID] = event.UserID
		}
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
