// ABOUTME: Google People API service construction
// ABOUTME: Wraps an OAuth token into an authenticated people/v1 client
package gcontacts

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	people "google.golang.org/api/people/v1"
)

// NewPeopleService creates an authenticated People API client from a token
// obtained through the device flow.
func (a *Authorizer) NewPeopleService(ctx context.Context, token *oauth2.Token) (*people.Service, error) {
	if token == nil {
		return nil, fmt.Errorf("token cannot be nil")
	}

	client := a.conf.Client(a.httpContext(ctx), token)
	service, err := people.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create People service: %w", err)
	}
	return service, nil
}
