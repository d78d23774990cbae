package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AccountLinkKind selects which out of band link is requested.
type AccountLinkKind string

const (
	LinkPasswordReset     AccountLinkKind = "password_reset"
	LinkEmailVerification AccountLinkKind = "email_verification"
)

// RequestAccountLinkMessage asks the identity authority for an action link.
type RequestAccountLinkMessage struct {
	Kind       AccountLinkKind `json:"kind" example:"password_reset" doc:"Link kind."`
	Email      string          `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *RequestAccountLinkResponse)
}

func (m RequestAccountLinkMessage) Type() string { return "account." + string(m.Kind) }

// RequestAccountLinkResponse is never an indication of whether the email is
// known: Link is simply empty when it is not.
type RequestAccountLinkResponse struct {
	Kind    AccountLinkKind
	Link    string
	Success bool
}

// RequestAccountLinkHandler generates password reset and email verification links.
type RequestAccountLinkHandler struct {
	verifier  IdentityVerifier
	directory Directory
	activity  ActivityLog
	logger    Logger
	metrics   *Metrics
	now       func() time.Time
	timeout   time.Duration
}

// NewRequestAccountLinkHandler builds the handler. directory and activity
// are optional; without them no activity entry is written.
func NewRequestAccountLinkHandler(verifier IdentityVerifier, directory Directory, activity ActivityLog, logger Logger) *RequestAccountLinkHandler {
	return &RequestAccountLinkHandler{
		verifier:  verifier,
		directory: directory,
		activity:  normalizeActivityLog(activity),
		logger:    normalizeLogger(logger),
		now:       time.Now,
		timeout:   10 * time.Second,
	}
}

// WithMetrics sets the collectors.
func (h *RequestAccountLinkHandler) WithMetrics(metrics *Metrics) *RequestAccountLinkHandler {
	h.metrics = metrics
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *RequestAccountLinkHandler) WithClock(clock func() time.Time) *RequestAccountLinkHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *RequestAccountLinkHandler) Execute(ctx context.Context, event RequestAccountLinkMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account link request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestAccountLinkHandler) execute(ctx context.Context, event RequestAccountLinkMessage) error {
	req := EmailRequest{Email: NormalizeEmail(event.Email)}
	if err := req.Validate(); err != nil {
		return WithSource(ErrValidation, err, map[string]any{"reason": err.Error()})
	}

	var (
		category ActivityCategory
		generate func(context.Context, string) (string, error)
	)
	switch event.Kind {
	case LinkPasswordReset:
		category, generate = ActivityPasswordResetRequested, h.verifier.PasswordResetLink
	case LinkEmailVerification:
		category, generate = ActivityEmailVerificationRequested, h.verifier.EmailVerificationLink
	default:
		return WithSource(ErrValidation, nil, map[string]any{"kind": string(event.Kind)})
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resp := &RequestAccountLinkResponse{Kind: event.Kind}

	link, err := generate(ctx, req.Email)
	switch {
	case err == nil:
		resp.Link = link
	case IsSubjectNotFound(err):
		h.logger.Debug("account link requested for unknown email", "kind", string(event.Kind))
	default:
		return linkFailure(err, "verifier."+string(event.Kind))
	}

	if resp.Link != "" {
		h.recordRequest(ctx, req.Email, category)
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
	return nil
}

func (h *RequestAccountLinkHandler) recordRequest(ctx context.Context, email string, category ActivityCategory) {
	if h.directory == nil {
		return
	}
	record, err := h.directory.GetByEmail(ctx, email)
	if err != nil {
		if !IsNotFound(err) {
			h.logger.Warn("account link activity lookup failed", "category", string(category), "error", err)
		}
		return
	}
	entry := NewActivityEntry(record.SubjectID, category, ClientOriginFromContext(ctx), h.now(), nil)
	if err := h.activity.Append(ctx, entry); err != nil {
		h.metrics.ObserveActivityFailure(category)
		h.logger.Error("activity append failed", "category", string(category), "subject_id", record.SubjectID, "error", err)
	}
}

// linkFailure keeps validation and server-side kinds. Any other classified
// error from the provider becomes KindUnexpected so callers never see it as
// their own auth or lookup failure.
func linkFailure(err error, op string) error {
	switch ErrorKindOf(err) {
	case KindValidation, KindUnreachable:
		return err
	case KindUnexpected:
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return err
		}
		return Unreachable(err, op)
	default:
		return WithSource(ErrUnexpected, err, map[string]any{"operation": op})
	}
}
