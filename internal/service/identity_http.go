package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"admin-auth-service/internal/models"
)

// HTTPIdentityProvider verifies credentials against the identity service's
// internal endpoint. A 401 from the provider means bad credentials; every
// other non-200 is an infrastructure failure.
type HTTPIdentityProvider struct {
	url    string
	client *http.Client
}

func NewHTTPIdentityProvider(url string, timeout time.Duration) *HTTPIdentityProvider {
	return &HTTPIdentityProvider{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type identityRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type identityResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *HTTPIdentityProvider) Authenticate(ctx context.Context, email, password string) (*models.AdminIdentity, error) {
	payload, err := json.Marshal(identityRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal identity request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusNotFound:
		return nil, ErrInvalidCredentials
	default:
		return nil, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var body identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode identity response: %w", err)
	}

	role, err := models.ParseRole(body.Role)
	if err != nil {
		return nil, fmt.Errorf("identity provider returned unknown role: %w", err)
	}

	return &models.AdminIdentity{
		UserID:    body.UserID,
		Email:     body.Email,
		Role:      role,
		IsActive:  body.IsActive,
		CreatedAt: body.CreatedAt,
	}, nil
}
