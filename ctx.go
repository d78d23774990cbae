package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var claimCtxKey = &contextKey{"claim"}
var recordCtxKey = &contextKey{"record"}
var originCtxKey = &contextKey{"client_origin"}

type contextKey struct {
	name string
}

// LocalsClaimKey is the fiber locals key the bearer middleware stores the Claim under.
const LocalsClaimKey = "auth.claim"

// WithClaimContext sets the Claim in the given context
func WithClaimContext(ctx context.Context, claim *Claim) context.Context {
	return context.WithValue(ctx, claimCtxKey, claim)
}

// ClaimFromContext extracts the Claim from the standard context
func ClaimFromContext(ctx context.Context) (*Claim, bool) {
	raw, ok := ctx.Value(claimCtxKey).(*Claim)
	return raw, ok && raw != nil
}

// WithRecordContext sets the UserRecord in the given context
func WithRecordContext(ctx context.Context, record *UserRecord) context.Context {
	return context.WithValue(ctx, recordCtxKey, record)
}

// RecordFromContext finds the UserRecord from the context.
func RecordFromContext(ctx context.Context) (*UserRecord, bool) {
	raw, ok := ctx.Value(recordCtxKey).(*UserRecord)
	return raw, ok && raw != nil
}

// WithClientOrigin stores the best-effort network origin of the caller.
func WithClientOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originCtxKey, origin)
}

// ClientOriginFromContext returns the origin or "unknown".
func ClientOriginFromContext(ctx context.Context) string {
	if origin, ok := ctx.Value(originCtxKey).(string); ok && origin != "" {
		return origin
	}
	return "unknown"
}

// ClaimFromFiber extracts the Claim stored by the bearer middleware.
func ClaimFromFiber(c *fiber.Ctx) (*Claim, bool) {
	raw := c.Locals(LocalsClaimKey)
	if raw == nil {
		return nil, false
	}
	claim, ok := raw.(*Claim)
	return claim, ok && claim != nil
}

// ClientOrigin resolves the caller address: first X-Forwarded-For hop, then
// X-Real-IP, then the socket address.
func ClientOrigin(c *fiber.Ctx) string {
	if fwd := c.Get(fiber.HeaderXForwardedFor); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(c.Get("X-Real-IP")); real != "" {
		return real
	}
	return c.IP()
}

// RequestContext returns the request's user context carrying the client origin.
func RequestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if _, ok := ctx.Value(originCtxKey).(string); !ok {
		ctx = WithClientOrigin(ctx, ClientOrigin(c))
	}
	return ctx
}

// IdentityFromContext returns the record stored by RequireAccess behind the
// narrow Identity interface.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	record, ok := RecordFromContext(ctx)
	if !ok {
		return nil, false
	}
	return NewIdentityFromRecord(record), true
}
