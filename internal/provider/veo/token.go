package veo

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/reelqueue/reelqueue/internal/provider"
	"go.uber.org/zap"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	jwtBearerGrant     = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime  = time.Hour
	// tokens are renewed this long before they expire
	tokenRefreshMargin = 5 * time.Minute
)

type serviceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	TokenURI     string `json:"token_uri"`
}

func parseServiceAccount(data []byte) (*serviceAccount, *rsa.PrivateKey, error) {
	var sa serviceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, nil, fmt.Errorf("failed to parse service account: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, nil, errors.New("service account is missing client_email or private_key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse service account private key: %w", err)
	}
	return &sa, key, nil
}

type tokenCache struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
}

func (c *tokenCache) get(now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" || !now.Add(tokenRefreshMargin).Before(c.expiry) {
		return "", false
	}
	return c.token, true
}

func (c *tokenCache) set(token string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = token
	c.expiry = expiry
}

// TokenSource exchanges a self signed service account assertion for an
// OAuth access token and keeps it until shortly before it expires.
type TokenSource struct {
	account  *serviceAccount
	key      *rsa.PrivateKey
	tokenURL string
	http     *provider.HTTPClient
	now      func() time.Time
	cache    tokenCache
}

func NewTokenSource(credentials []byte, tokenURL string, timeout time.Duration) (*TokenSource, error) {
	sa, key, err := parseServiceAccount(credentials)
	if err != nil {
		return nil, err
	}
	if tokenURL == "" {
		tokenURL = sa.TokenURI
	}
	return &TokenSource{
		account:  sa,
		key:      key,
		tokenURL: tokenURL,
		http:     provider.NewHTTPClient("veo", timeout),
		now:      time.Now,
	}, nil
}

func (t *TokenSource) Token(ctx context.Context) (string, error) {
	if token, ok := t.cache.get(t.now()); ok {
		return token, nil
	}

	assertion, err := t.assertion()
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := t.http.Do(req, "token")
	if err != nil {
		return "", err
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", t.http.NewErrMalformedResponse("token", err)
	}
	if resp.AccessToken == "" {
		return "", t.http.NewErrMalformedResponse("token", errors.New("missing access_token"))
	}

	expiry := t.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	t.cache.set(resp.AccessToken, expiry)

	zap.S().Named("veo").Debugw("access token refreshed", "client_email", t.account.ClientEmail, "expiry", expiry)
	return resp.AccessToken, nil
}

func (t *TokenSource) assertion() (string, error) {
	now := t.now()
	claims := jwt.MapClaims{
		"iss":   t.account.ClientEmail,
		"scope": cloudPlatformScope,
		"aud":   t.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if t.account.PrivateKeyID != "" {
		token.Header["kid"] = t.account.PrivateKeyID
	}
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign service account assertion: %w", err)
	}
	return signed, nil
}
