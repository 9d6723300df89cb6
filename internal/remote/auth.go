package remote

import (
	"context"
	"errors"
	"net/http"

	dErrors "medigate/pkg/domain-errors"
)

// AuthClient speaks to the auth service.
type AuthClient struct {
	*Client
}

func NewAuthClient(baseURL string, opts ...Option) (*AuthClient, error) {
	c, err := newClient("auth", baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &AuthClient{Client: c}, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// Authenticate exchanges credentials for a bearer token. A 401 means the
// credentials were wrong; any other failure is the backend's problem, not the
// caller's.
func (c *AuthClient) Authenticate(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/auth/login", nil,
		loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			if se.status == http.StatusUnauthorized {
				return "", dErrors.New(dErrors.CodeInvalidCredentials, "username or password is incorrect")
			}
			return "", serverOrNetwork(se)
		}
		return "", err
	}
	if resp.AccessToken == "" {
		return "", dErrors.New(dErrors.CodeServer, "auth service returned no token")
	}
	return resp.AccessToken, nil
}
