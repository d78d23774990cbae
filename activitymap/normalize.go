package activitymap

import (
	"strings"
	"time"

	"github.com/google/uuid"
	auth "github.com/goliatone/go-growth-auth"
)

const (
	// MetadataKeyClientOrigin stores the best-effort network origin of the request.
	MetadataKeyClientOrigin = "client_origin"
	// MetadataKeyEntryID stores the activity entry id.
	MetadataKeyEntryID = "entry_id"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "account"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems
// and the account activity feed.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(*auth.ActivityLogEntry) string
	omitOrigin       bool
}

// Normalize converts an activity log entry into the normalized shape.
func Normalize(entry *auth.ActivityLogEntry, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	if entry == nil {
		return Normalized{
			ActorID:    options.actorFallback,
			ObjectType: options.objectType,
			Channel:    options.channel,
			OccurredAt: time.Now().UTC(),
		}
	}

	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(entry.SubjectID), options.actorFallback),
		Verb:       string(entry.Category),
		ObjectType: options.objectType,
		ObjectID:   resolveObjectID(entry, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(entry, options.omitOrigin),
		OccurredAt: occurredAt,
	}
}

// NormalizeAll maps a list keeping its order.
func NormalizeAll(entries []*auth.ActivityLogEntry, opts ...Option) []Normalized {
	out := make([]Normalized, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		out = append(out, Normalize(entry, opts...))
	}
	return out
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the default object type for normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction.
func WithObjectIDResolver(resolver func(*auth.ActivityLogEntry) string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the entry has no subject.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithoutClientOrigin drops the origin from metadata, e.g. for feeds shown
// outside the owner's session.
func WithoutClientOrigin() Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.omitOrigin = true
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(entry *auth.ActivityLogEntry, resolver func(*auth.ActivityLogEntry) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(entry))
	}
	return strings.TrimSpace(entry.SubjectID)
}

func normalizeMetadata(entry *auth.ActivityLogEntry, omitOrigin bool) map[string]any {
	metadata := cloneMap(entry.Detail)

	if origin := strings.TrimSpace(entry.ClientOrigin); origin != "" && !omitOrigin {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyClientOrigin]; !exists {
			metadata[MetadataKeyClientOrigin] = origin
		}
	}

	if entry.ID != uuid.Nil {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[MetadataKeyEntryID] = entry.ID.String()
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
