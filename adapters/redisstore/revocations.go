package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	auth "github.com/goliatone/go-growth-auth"
	"github.com/redis/go-redis/v9"
)

const revocationPrefix = "growth:revoked:"

// keepMaxScript stores ARGV[1] unless a later mark is already present.
var keepMaxScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
	if tonumber(ARGV[2]) > 0 then
		redis.call("EXPIRE", KEYS[1], ARGV[2])
	end
	return 0
end
if tonumber(ARGV[2]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1
`)

// Revocations is a RevocationStore holding unix second marks. With a
// retention set, marks expire once every token they void has expired anyway.
type Revocations struct {
	client    redis.UniversalClient
	retention time.Duration
}

var _ auth.RevocationStore = (*Revocations)(nil)

// NewRevocations builds the store. retention should be at least the longest
// token lifetime; zero keeps marks forever.
func NewRevocations(client redis.UniversalClient, retention time.Duration) *Revocations {
	return &Revocations{client: client, retention: retention}
}

func (r *Revocations) RevokeAll(ctx context.Context, subjectID string, at time.Time) error {
	return keepMaxScript.Run(ctx, r.client,
		[]string{revocationPrefix + subjectID},
		at.UTC().Unix(),
		int64(r.retention/time.Second),
	).Err()
}

func (r *Revocations) RevokedBefore(ctx context.Context, subjectID string) (time.Time, bool, error) {
	raw, err := r.client.Get(ctx, revocationPrefix+subjectID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(secs, 0).UTC(), true, nil
}
