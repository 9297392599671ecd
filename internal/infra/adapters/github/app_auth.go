package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// appTokenSource mints installation tokens on demand. App authentication is
// two hops: a short-lived RS256 app JWT proves who the app is, then GitHub
// issues an installation token good for about an hour. The token is cached
// and refreshed one minute before expiry.
type appTokenSource struct {
	appID          int64
	installationID int64
	key            *rsa.PrivateKey
	apiBase        string
	client         *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

func newAppTokenSource(appID, installationID int64, privateKeyPath, apiBase string, client *http.Client) (*appTokenSource, error) {
	raw, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read app key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("parse app key: %w", err)
	}
	return &appTokenSource{
		appID:          appID,
		installationID: installationID,
		key:            key,
		apiBase:        apiBase,
		client:         client,
	}, nil
}

// appJWT is backdated 60s against clock skew; GitHub caps exp at 10 minutes.
func (s *appTokenSource) appJWT(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iat": now.Add(-60 * time.Second).Unix(),
		"exp": now.Add(9 * time.Minute).Unix(),
		"iss": strconv.FormatInt(s.appID, 10),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
}

func (s *appTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && time.Until(s.expires) > time.Minute {
		return s.token, nil
	}

	appJWT, err := s.appJWT(time.Now())
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", s.apiBase, s.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("Authorization", "Bearer "+appJWT)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("installation token http %d", resp.StatusCode)
	}
	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("installation token response empty")
	}
	s.token, s.expires = out.Token, out.ExpiresAt
	return s.token, nil
}
