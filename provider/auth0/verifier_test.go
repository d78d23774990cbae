package auth0

import (
	"context"
	"errors"
	"testing"
	"time"

	goauth0 "github.com/auth0/go-auth0"
	"github.com/auth0/go-auth0/management"
	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-growth-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockManagement struct {
	mock.Mock
}

func (m *mockManagement) ListUsersByEmail(ctx context.Context, email string) ([]*management.User, error) {
	args := m.Called(ctx, email)
	users, _ := args.Get(0).([]*management.User)
	return users, args.Error(1)
}

func (m *mockManagement) ChangePasswordTicket(ctx context.Context, ticket *management.Ticket) error {
	args := m.Called(ctx, ticket)
	if args.Error(0) == nil {
		ticket.Ticket = goauth0.String("https://tenant.auth0.test/lo/reset?ticket=abc")
	}
	return args.Error(0)
}

func (m *mockManagement) VerifyEmailTicket(ctx context.Context, ticket *management.Ticket) error {
	args := m.Called(ctx, ticket)
	if args.Error(0) == nil {
		ticket.Ticket = goauth0.String("https://tenant.auth0.test/u/email-verification?ticket=def")
	}
	return args.Error(0)
}

func newTestVerifier(t *testing.T, mgmt ManagementAPI, opts ...Option) (*Verifier, func(jwt.MapClaims) string, string) {
	t.Helper()

	privateKey, jwksJSON, kid := newTestJWKS(t)
	server := newJWKSServer(jwksJSON)
	t.Cleanup(server.Close)

	issuer := server.URL + "/"
	tokens, err := NewTokenValidator(Config{
		Issuer:    issuer,
		Audience:  []string{"https://api.test"},
		ResultURL: "https://app.test/auth",
	})
	require.NoError(t, err)

	sign := func(claims jwt.MapClaims) string {
		return signToken(t, privateKey, kid, claims)
	}
	return NewVerifier(tokens, mgmt, opts...), sign, issuer
}

func TestVerifier_RevokeSessions(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	clock := now
	v, sign, issuer := newTestVerifier(t, &mockManagement{}, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	token := sign(jwt.MapClaims{
		"iss":   issuer,
		"sub":   "auth0|user-1",
		"aud":   []string{"https://api.test"},
		"iat":   now.Add(-time.Minute).Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"email": "user@example.com",
	})

	claim, err := v.VerifyToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "auth0|user-1", claim.SubjectID)

	require.NoError(t, v.RevokeSessions(ctx, "auth0|user-1"))

	_, err = v.VerifyToken(ctx, token)
	require.Error(t, err)
	assert.Equal(t, auth.KindTokenInvalid, auth.ErrorKindOf(err))
}

func TestVerifier_EmptyToken(t *testing.T) {
	v, _, _ := newTestVerifier(t, &mockManagement{})

	_, err := v.VerifyToken(context.Background(), "")
	assert.Equal(t, auth.KindUnauthenticated, auth.ErrorKindOf(err))
}

func TestVerifier_PasswordResetLink(t *testing.T) {
	mgmt := &mockManagement{}
	v, _, _ := newTestVerifier(t, mgmt)
	ctx := context.Background()

	mgmt.On("ListUsersByEmail", ctx, "user@example.com").
		Return([]*management.User{{ID: goauth0.String("auth0|user-1")}}, nil).Once()
	mgmt.On("ChangePasswordTicket", ctx, mock.MatchedBy(func(t *management.Ticket) bool {
		return t.GetUserID() == "auth0|user-1" && t.GetResultURL() == "https://app.test/auth"
	})).Return(nil).Once()

	link, err := v.PasswordResetLink(ctx, " User@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "https://tenant.auth0.test/lo/reset?ticket=abc", link)
	mgmt.AssertExpectations(t)
}

func TestVerifier_EmailVerificationLink(t *testing.T) {
	mgmt := &mockManagement{}
	v, _, _ := newTestVerifier(t, mgmt, WithResultURL("https://app.test/verified"))
	ctx := context.Background()

	mgmt.On("ListUsersByEmail", ctx, "user@example.com").
		Return([]*management.User{{ID: goauth0.String("auth0|user-1")}}, nil).Once()
	mgmt.On("VerifyEmailTicket", ctx, mock.MatchedBy(func(t *management.Ticket) bool {
		return t.GetResultURL() == "https://app.test/verified"
	})).Return(nil).Once()

	link, err := v.EmailVerificationLink(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Contains(t, link, "email-verification")
	mgmt.AssertExpectations(t)
}

func TestVerifier_LinkForUnknownEmail(t *testing.T) {
	mgmt := &mockManagement{}
	v, _, _ := newTestVerifier(t, mgmt)
	ctx := context.Background()

	mgmt.On("ListUsersByEmail", ctx, "ghost@example.com").Return([]*management.User{}, nil).Once()

	_, err := v.PasswordResetLink(ctx, "ghost@example.com")
	require.Error(t, err)
	assert.True(t, auth.IsSubjectNotFound(err))
	mgmt.AssertNotCalled(t, "ChangePasswordTicket", mock.Anything, mock.Anything)
}

func TestVerifier_LinkManagementFailure(t *testing.T) {
	mgmt := &mockManagement{}
	v, _, _ := newTestVerifier(t, mgmt)
	ctx := context.Background()

	mgmt.On("ListUsersByEmail", ctx, "user@example.com").
		Return([]*management.User{{ID: goauth0.String("auth0|user-1")}}, nil).Once()
	mgmt.On("ChangePasswordTicket", ctx, mock.Anything).Return(errors.New("rate limited")).Once()

	_, err := v.PasswordResetLink(ctx, "user@example.com")
	require.Error(t, err)
	assert.Equal(t, auth.KindUnreachable, auth.ErrorKindOf(err))
	assert.Equal(t, 500, auth.StatusFor(err))
}
