package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-growth-auth/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use auth helpers directly.
type ValidationListener = jwtware.ValidationListener

// ClaimContextEnricher stores a verified *Claim in the standard context for
// handlers that only see context.Context.
func ClaimContextEnricher(c context.Context, claims any) context.Context {
	claim, ok := claims.(*Claim)
	if !ok {
		return c
	}
	return WithClaimContext(c, claim)
}

// RejectInactiveRecords refuses tokens whose local record is deactivated,
// which only happens while an account deletion is in flight. Subjects with
// no record pass so that a first sync can create one.
func RejectInactiveRecords(directory Directory) ValidationListener {
	return func(c *fiber.Ctx, claims any) error {
		claim, ok := claims.(*Claim)
		if !ok || directory == nil {
			return nil
		}

		record, err := directory.GetBySubject(c.UserContext(), claim.SubjectID)
		switch {
		case err == nil && !record.IsActive:
			return WithSource(ErrTokenInvalid, nil, map[string]any{
				"subject_id": claim.SubjectID,
				"reason":     "account deactivated",
			})
		case err != nil && !IsNotFound(err):
			return Unreachable(err, "directory.get_by_subject")
		}
		return nil
	}
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
