package jwtverifier_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-growth-auth"
	"github.com/goliatone/go-growth-auth/provider/jwtverifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-signing-key-with-enough-bytes")

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type stubDirectory struct {
	auth.Directory
	records map[string]*auth.UserRecord
	err     error
}

func (d *stubDirectory) GetByEmail(_ context.Context, email string) (*auth.UserRecord, error) {
	if d.err != nil {
		return nil, d.err
	}
	if rec, ok := d.records[email]; ok {
		return rec, nil
	}
	return nil, auth.ErrNotFound
}

func newVerifier(t *testing.T, c *clock, opts ...jwtverifier.Option) *jwtverifier.Verifier {
	t.Helper()
	opts = append([]jwtverifier.Option{jwtverifier.WithClock(c.Now)}, opts...)
	v, err := jwtverifier.New(jwtverifier.Config{
		SigningKey:  testKey,
		Issuer:      "growth-test",
		Audience:    []string{"growth-app"},
		TokenTTL:    time.Hour,
		LinkBaseURL: "https://app.example.com/",
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(v.Close)
	return v
}

func mint(t *testing.T, v *jwtverifier.Verifier, subject string) string {
	t.Helper()
	token, err := v.Mint(jwtverifier.MintInput{
		SubjectID:     subject,
		Email:         "Ada@Example.com",
		EmailVerified: true,
		Name:          "Ada",
		Provider:      auth.ProviderGoogle,
	})
	require.NoError(t, err)
	return token
}

func TestNew_RequiresKeySource(t *testing.T) {
	_, err := jwtverifier.New(jwtverifier.Config{})
	require.Error(t, err)
}

func TestVerifyToken_RoundTrip(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	v := newVerifier(t, c)

	claim, err := v.VerifyToken(context.Background(), mint(t, v, "subject-1"))
	require.NoError(t, err)

	assert.Equal(t, "subject-1", claim.SubjectID)
	assert.Equal(t, "Ada@Example.com", claim.Email)
	assert.True(t, claim.EmailVerified)
	assert.Equal(t, "Ada", claim.DisplayName)
	assert.Equal(t, auth.ProviderGoogle, claim.Provider)
	assert.True(t, claim.IssuedAt.Equal(c.now))
	assert.True(t, claim.ExpiresAt.Equal(c.now.Add(time.Hour)))
}

func TestVerifyToken_Expired(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	v := newVerifier(t, c)
	token := mint(t, v, "subject-1")

	c.now = c.now.Add(2 * time.Hour)
	_, err := v.VerifyToken(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, auth.KindTokenExpired, auth.ErrorKindOf(err))
}

func TestVerifyToken_Invalid(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	v := newVerifier(t, c)

	other, err := jwtverifier.New(jwtverifier.Config{
		SigningKey: []byte("a-completely-different-signing-key"),
		Issuer:     "growth-test",
		Audience:   []string{"growth-app"},
	}, jwtverifier.WithClock(c.Now))
	require.NoError(t, err)

	wrongAudience, err := jwtverifier.New(jwtverifier.Config{
		SigningKey: testKey,
		Issuer:     "growth-test",
		Audience:   []string{"someone-else"},
	}, jwtverifier.WithClock(c.Now))
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":        "not-a-jwt",
		"wrong key":      mint(t, other, "subject-1"),
		"wrong audience": mint(t, wrongAudience, "subject-1"),
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.VerifyToken(context.Background(), token)
			require.Error(t, err)
			assert.Equal(t, auth.KindTokenInvalid, auth.ErrorKindOf(err))
		})
	}
}

func TestVerifyToken_Empty(t *testing.T) {
	v := newVerifier(t, &clock{now: time.Now()})

	_, err := v.VerifyToken(context.Background(), "  ")
	assert.Equal(t, auth.KindUnauthenticated, auth.ErrorKindOf(err))
}

func TestRevokeSessions(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	v := newVerifier(t, c)
	ctx := context.Background()

	old := mint(t, v, "subject-1")
	other := mint(t, v, "subject-2")

	c.now = c.now.Add(time.Minute)
	require.NoError(t, v.RevokeSessions(ctx, "subject-1"))

	_, err := v.VerifyToken(ctx, old)
	require.Error(t, err)
	assert.Equal(t, auth.KindTokenInvalid, auth.ErrorKindOf(err))

	_, err = v.VerifyToken(ctx, other)
	assert.NoError(t, err, "other subjects are unaffected")

	sameSecond := mint(t, v, "subject-1")
	_, err = v.VerifyToken(ctx, sameSecond)
	require.Error(t, err, "tokens issued in the revocation second are revoked")
	assert.Equal(t, auth.KindTokenInvalid, auth.ErrorKindOf(err))

	c.now = c.now.Add(time.Second)
	fresh := mint(t, v, "subject-1")
	_, err = v.VerifyToken(ctx, fresh)
	assert.NoError(t, err)
}

func TestActionLinks(t *testing.T) {
	dir := &stubDirectory{records: map[string]*auth.UserRecord{
		"ada@example.com": {SubjectID: "subject-1", Email: "ada@example.com"},
	}}
	v := newVerifier(t, &clock{now: time.Now()}, jwtverifier.WithDirectory(dir))
	ctx := context.Background()

	link, err := v.PasswordResetLink(ctx, "ada@example.com")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", u.Host)
	assert.Equal(t, "/auth/action", u.Path)
	assert.Equal(t, jwtverifier.ModeResetPassword, u.Query().Get("mode"))
	assert.NotEmpty(t, u.Query().Get("oobCode"))

	link, err = v.EmailVerificationLink(ctx, "ada@example.com")
	require.NoError(t, err)
	u, err = url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, jwtverifier.ModeVerifyEmail, u.Query().Get("mode"))

	_, err = v.PasswordResetLink(ctx, "nobody@example.com")
	assert.True(t, auth.IsSubjectNotFound(err))

	dir.err = assert.AnError
	_, err = v.PasswordResetLink(ctx, "ada@example.com")
	assert.Equal(t, auth.KindUnreachable, auth.ErrorKindOf(err))
}

func TestActionLinks_WithoutDirectory(t *testing.T) {
	v := newVerifier(t, &clock{now: time.Now()})

	_, err := v.PasswordResetLink(context.Background(), "ada@example.com")
	assert.Equal(t, auth.KindUnexpected, auth.ErrorKindOf(err))
}

func TestMint_RequiresSigningKey(t *testing.T) {
	srv, _ := newJWKSServer(t)

	v, err := jwtverifier.New(jwtverifier.Config{JWKSURLs: []string{srv.URL}})
	require.NoError(t, err)
	defer v.Close()

	_, err = v.Mint(jwtverifier.MintInput{SubjectID: "s"})
	assert.Error(t, err)
}

func TestVerifyToken_JWKS(t *testing.T) {
	srv, key := newJWKSServer(t)

	c := &clock{now: time.Now().Truncate(time.Second)}
	v, err := jwtverifier.New(jwtverifier.Config{
		JWKSURLs: []string{srv.URL},
		Issuer:   "https://issuer.example.com/",
	}, jwtverifier.WithClock(c.Now))
	require.NoError(t, err)
	defer v.Close()

	claims := jwtverifier.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://issuer.example.com/",
			Subject:   "subject-rsa",
			IssuedAt:  jwt.NewNumericDate(c.now),
			ExpiresAt: jwt.NewNumericDate(c.now.Add(time.Hour)),
		},
		Email:    "rsa@example.com",
		Firebase: &jwtverifier.FirebaseClaims{SignInProvider: "google.com"},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-kid"
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	claim, err := v.VerifyToken(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "subject-rsa", claim.SubjectID)
	assert.Equal(t, auth.ProviderGoogle, claim.Provider)

	hmac := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err = hmac.SignedString(testKey)
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), signed)
	assert.Equal(t, auth.KindTokenInvalid, auth.ErrorKindOf(err), "hmac is rejected without a signing key")
}

func newJWKSServer(t *testing.T) (*httptest.Server, *rsa.PrivateKey) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwks := map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": "test-kid",
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(srv.Close)
	return srv, key
}
