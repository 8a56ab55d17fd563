package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// TokenProvider returns a bearer credential for the completion endpoint.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed API key, for endpoints without a token exchange.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("no API key configured")
	}
	return string(t), nil
}

// OAuthTokens exchanges a Basic authorization key for an access token.
// Every call performs a fresh exchange.
type OAuthTokens struct {
	url     string
	authKey string
	scope   string
	client  *http.Client
}

// NewOAuthTokens creates a token provider. authKey is the base64 "id:secret" credential.
func NewOAuthTokens(authURL, authKey, scope string, client *http.Client) *OAuthTokens {
	if client == nil {
		client = http.DefaultClient
	}
	return &OAuthTokens{url: authURL, authKey: authKey, scope: scope, client: client}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Token performs the client-credentials exchange.
func (p *OAuthTokens) Token(ctx context.Context) (string, error) {
	form := url.Values{"scope": {p.scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("RqUID", uuid.NewString())
	req.Header.Set("Authorization", "Basic "+p.authKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &APIError{Op: "token", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Op: "token", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{Op: "token", StatusCode: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token response has no access_token")
	}
	return tr.AccessToken, nil
}
