package main

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-growth-auth"
	"github.com/goliatone/go-growth-auth/provider/auth0"
	"github.com/goliatone/go-growth-auth/provider/jwtverifier"
)

func newVerifier(ctx context.Context, cfg *Config, st *stores, logger auth.Logger) (auth.IdentityVerifier, error) {
	if strings.ToLower(cfg.Verifier) == "auth0" {
		return newAuth0Verifier(ctx, cfg, st, logger)
	}

	v, err := jwtverifier.New(jwtverifier.Config{
		SigningKey:  []byte(cfg.JWTSigningKey),
		JWKSURLs:    cfg.JWKSURLs,
		Issuer:      cfg.JWTIssuer,
		Audience:    cfg.JWTAudience,
		LinkBaseURL: cfg.LinkBaseURL,
	},
		jwtverifier.WithRevocations(st.revocations),
		jwtverifier.WithDirectory(st.directory),
		jwtverifier.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	st.onClose(func(context.Context) error {
		v.Close()
		return nil
	})
	return v, nil
}

func newAuth0Verifier(ctx context.Context, cfg *Config, st *stores, logger auth.Logger) (auth.IdentityVerifier, error) {
	acfg := auth0.DefaultConfig(cfg.Auth0Domain, cfg.Auth0Audience)
	acfg.ClientID = cfg.Auth0ClientID
	acfg.ClientSecret = cfg.Auth0ClientSecret
	acfg.ResultURL = cfg.Auth0ResultURL

	tokens, err := auth0.NewTokenValidator(acfg)
	if err != nil {
		return nil, err
	}

	mgmt, err := auth0.NewManagementClient(ctx, acfg)
	if err != nil {
		return nil, err
	}

	return auth0.NewVerifier(tokens, mgmt,
		auth0.WithRevocations(st.revocations),
		auth0.WithResultURL(cfg.Auth0ResultURL),
		auth0.WithLogger(logger),
	), nil
}
