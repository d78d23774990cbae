package auth0

import (
	"context"
	"fmt"
	"strings"

	goauth0 "github.com/auth0/go-auth0"
	"github.com/auth0/go-auth0/management"
)

// ManagementAPI is the narrow slice of the Auth0 Management API the
// verifier uses.
type ManagementAPI interface {
	ListUsersByEmail(ctx context.Context, email string) ([]*management.User, error)
	ChangePasswordTicket(ctx context.Context, ticket *management.Ticket) error
	VerifyEmailTicket(ctx context.Context, ticket *management.Ticket) error
}

// ManagementClient wraps the Auth0 management API client.
type ManagementClient struct {
	client *management.Management
}

var _ ManagementAPI = (*ManagementClient)(nil)

// NewManagementClient creates a client using M2M client credentials.
func NewManagementClient(ctx context.Context, cfg Config) (*ManagementClient, error) {
	domain := cfg.managementDomain()
	if domain == "" {
		return nil, fmt.Errorf("auth0 management: domain is required")
	}

	client, err := management.New(
		domain,
		management.WithClientCredentials(ctx, cfg.ClientID, cfg.ClientSecret),
	)
	if err != nil {
		return nil, fmt.Errorf("auth0 management: failed to create client: %w", err)
	}

	return &ManagementClient{client: client}, nil
}

// NewManagementClientFrom wraps an existing client.
func NewManagementClientFrom(client *management.Management) *ManagementClient {
	return &ManagementClient{client: client}
}

func (m *ManagementClient) ListUsersByEmail(ctx context.Context, email string) ([]*management.User, error) {
	if m == nil || m.client == nil {
		return nil, fmt.Errorf("auth0 management: client not initialized")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("auth0 management: email is required")
	}
	return m.client.User.ListByEmail(ctx, email)
}

func (m *ManagementClient) ChangePasswordTicket(ctx context.Context, ticket *management.Ticket) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("auth0 management: client not initialized")
	}
	return m.client.Ticket.ChangePassword(ctx, ticket)
}

func (m *ManagementClient) VerifyEmailTicket(ctx context.Context, ticket *management.Ticket) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("auth0 management: client not initialized")
	}
	return m.client.Ticket.VerifyEmail(ctx, ticket)
}

// RawClient exposes the underlying management client.
func (m *ManagementClient) RawClient() *management.Management {
	if m == nil {
		return nil
	}
	return m.client
}

func newTicket(userID, resultURL string) *management.Ticket {
	t := &management.Ticket{UserID: goauth0.String(userID)}
	if resultURL != "" {
		t.ResultURL = goauth0.String(resultURL)
	}
	return t
}
