// Package auth0 verifies Auth0-issued tokens and implements the identity
// verifier on top of the Auth0 JWKS endpoint and Management API.
//
// Tokens are validated against the tenant key set, mapped to auth.Claim and
// checked against a local revocation mark. Password reset and email
// verification links are Management API tickets.
package auth0
