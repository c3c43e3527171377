// services/twitter_client.go
package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"bones-api/config"
	"bones-api/models"
	"bones-api/utils"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// TwitterClient wraps every outbound call to the Twitter v2 API. It owns the
// token lifecycle: a 401 on any read triggers one refresh-token exchange,
// the new pair is persisted on the user row, and the original call is
// retried exactly once. There is no second retry — a platform that keeps
// answering 401 must not put us in a loop.
type TwitterClient struct {
	DB         *gorm.DB
	Config     *config.Config
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

func NewTwitterClient(db *gorm.DB, cfg *config.Config) *TwitterClient {
	return &TwitterClient{
		DB:         db,
		Config:     cfg,
		HTTPClient: utils.HTTPClient,
		// Twitter's per-app read buckets are small; 5 rps with burst 10
		// keeps a burst of verify calls under them.
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// APIResponse is the raw outcome of one API call. Strategies inspect the
// status code themselves: a non-2xx here is a verification failure, never an
// application error.
type APIResponse struct {
	StatusCode int
	Body       []byte
}

func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *APIResponse) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// TokenPair is the result of an OAuth2 token-endpoint exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Profile is the authenticated user's own profile from /2/users/me.
type Profile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Get issues an authenticated GET for the given user. On 401 it refreshes
// the stored token once and retries; a failed refresh returns the original
// 401 response so the caller records a normal verification failure.
func (c *TwitterClient) Get(ctx context.Context, user *models.User, path string, query url.Values) (*APIResponse, error) {
	if user.TwitterAccessToken == nil || *user.TwitterAccessToken == "" {
		return nil, fmt.Errorf("user %d has no twitter access token", user.ID)
	}

	resp, err := c.do(ctx, *user.TwitterAccessToken, path, query)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	newToken, refreshErr := c.refreshAccessToken(ctx, user)
	if refreshErr != nil {
		log.Printf("Twitter token refresh failed for user %d: %v", user.ID, refreshErr)
		return resp, nil
	}

	return c.do(ctx, newToken, path, query)
}

// EnsureTwitterUserID returns the user's numeric Twitter id, resolving and
// persisting it on first use.
func (c *TwitterClient) EnsureTwitterUserID(ctx context.Context, user *models.User) (string, error) {
	if user.TwitterID != nil && *user.TwitterID != "" {
		return *user.TwitterID, nil
	}

	resp, err := c.Get(ctx, user, "/2/users/me", nil)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("profile lookup returned status %d: %s", resp.StatusCode, truncateBody(resp.Body))
	}

	var payload struct {
		Data Profile `json:"data"`
	}
	if err := resp.Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode profile response: %w", err)
	}
	if payload.Data.ID == "" {
		return "", fmt.Errorf("profile response carried no user id")
	}

	if err := c.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Update("twitter_id", payload.Data.ID).Error; err != nil {
		return "", fmt.Errorf("failed to persist twitter id: %w", err)
	}
	id := payload.Data.ID
	user.TwitterID = &id
	return id, nil
}

// ExchangeCode swaps an authorization code for a token pair (OAuth callback
// path, PKCE).
func (c *TwitterClient) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*TokenPair, error) {
	form := url.Values{
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"client_id":     {c.Config.TwitterClientID},
		"redirect_uri":  {redirectURI},
		"code_verifier": {codeVerifier},
	}
	return c.tokenRequest(ctx, form)
}

// FetchProfile loads /2/users/me with a raw bearer token (used before a User
// row exists).
func (c *TwitterClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	resp, err := c.do(ctx, accessToken, "/2/users/me", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("user info fetch returned status %d: %s", resp.StatusCode, truncateBody(resp.Body))
	}
	var payload struct {
		Data Profile `json:"data"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}
	return &payload.Data, nil
}

// refreshAccessToken exchanges the stored refresh token for a new pair and
// persists it. Returns the new access token.
func (c *TwitterClient) refreshAccessToken(ctx context.Context, user *models.User) (string, error) {
	if user.TwitterRefreshToken == nil || *user.TwitterRefreshToken == "" {
		return "", fmt.Errorf("no refresh token stored for user %d", user.ID)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {*user.TwitterRefreshToken},
		"client_id":     {c.Config.TwitterClientID},
	}
	pair, err := c.tokenRequest(ctx, form)
	if err != nil {
		return "", err
	}

	if err := c.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"twitter_access_token":  pair.AccessToken,
		"twitter_refresh_token": pair.RefreshToken,
	}).Error; err != nil {
		return "", fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}
	user.TwitterAccessToken = &pair.AccessToken
	user.TwitterRefreshToken = &pair.RefreshToken

	log.Printf("🔄 Refreshed Twitter tokens for user %d", user.ID)
	return pair.AccessToken, nil
}

func (c *TwitterClient) tokenRequest(ctx context.Context, form url.Values) (*TokenPair, error) {
	endpoint := c.Config.TwitterAPIBaseURL + "/2/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// Confidential clients must authenticate the token endpoint call.
	if c.Config.TwitterClientSecret != "" {
		req.SetBasicAuth(c.Config.TwitterClientID, c.Config.TwitterClientSecret)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint call failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var pair TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}
	return &pair, nil
}

func (c *TwitterClient) do(ctx context.Context, accessToken, path string, query url.Values) (*APIResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.Config.TwitterAPIBaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitter api call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read twitter api response: %w", err)
	}

	return &APIResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
