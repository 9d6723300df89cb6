package remote

import (
	"context"
	"errors"
	"net/http"

	"medigate/internal/identity"
	dErrors "medigate/pkg/domain-errors"
)

// ProfileClient fetches the identity behind a bearer token.
type ProfileClient struct {
	*Client
}

func NewProfileClient(baseURL string, opts ...Option) (*ProfileClient, error) {
	c, err := newClient("profile", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &ProfileClient{Client: c}, nil
}

// FetchCurrentUser resolves the profile for an access token. A 401 means the
// token is no longer honored.
func (c *ProfileClient) FetchCurrentUser(ctx context.Context, accessToken string) (identity.Identity, error) {
	var ident identity.Identity
	err := c.doJSON(ctx, http.MethodGet, "/v1/users/me", bearer(accessToken), nil, &ident)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			if se.status == http.StatusUnauthorized {
				return identity.Identity{}, dErrors.New(dErrors.CodeNotAuthenticated, "access token rejected")
			}
			return identity.Identity{}, serverOrNetwork(se)
		}
		return identity.Identity{}, err
	}
	if err := ident.Validate(); err != nil {
		return identity.Identity{}, dErrors.Wrap(err, dErrors.CodeServer, "profile service returned an unusable identity")
	}
	return ident, nil
}
