// Package verify looks up since when an account carries its verification badge. The lookup uses
// the host's guest API: a guest token is activated first, then the user is queried by screen name.
// It is a diagnostic helper and never called while scoring.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/go-pkgz/repeater"
)

// HTTPClient is the subset of http.Client used by Client
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config defines lookup parameters
type Config struct {
	APIURL     string        // base url of v1 api, guest token activation
	GraphQLURL string        // base url of graphql api
	QueryID    string        // id of UserByScreenName query
	Token      string        // bearer token of the web client
	Retries    int           // number of attempts
	RetryDelay time.Duration // delay between attempts
	CacheTTL   time.Duration // ttl of cached results
	CacheSize  int           // max number of cached results
}

// defaults for Config
const (
	DefaultAPIURL     = "https://api.twitter.com/1.1"
	DefaultGraphQLURL = "https://twitter.com/i/api/graphql"
	DefaultQueryID    = "k5XapwcSikNsEsILW5FvgA"
)

// ErrNotVerified is returned if the account has no verification timestamp
var ErrNotVerified = errors.New("account is not verified")

// Client looks up verification timestamps, thread-safe
type Client struct {
	Config
	http  HTTPClient
	cache cache.Cache[string, time.Time]
}

// features sent with UserByScreenName query
var userFeatures = map[string]bool{
	"hidden_profile_likes_enabled":                                      false,
	"hidden_profile_subscriptions_enabled":                              false,
	"responsive_web_graphql_exclude_directive_enabled":                  true,
	"verified_phone_label_enabled":                                      false,
	"subscriptions_verification_info_is_identity_verified_enabled":      false,
	"subscriptions_verification_info_verified_since_enabled":            true,
	"highlights_tweets_tab_ui_enabled":                                  false,
	"responsive_web_twitter_article_notes_tab_enabled":                  false,
	"creator_subscriptions_tweet_preview_api_enabled":                   false,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled": false,
	"responsive_web_graphql_timeline_navigation_enabled":                false,
}

// New makes a Client. Zero config values are replaced by defaults.
func New(cfg Config, client HTTPClient) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.GraphQLURL == "" {
		cfg.GraphQLURL = DefaultGraphQLURL
	}
	if cfg.QueryID == "" {
		cfg.QueryID = DefaultQueryID
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		Config: cfg,
		http:   client,
		cache:  cache.NewCache[string, time.Time]().WithMaxKeys(cfg.CacheSize).WithTTL(cfg.CacheTTL),
	}
}

// VerifiedSince returns the time the account got verified. Returns ErrNotVerified if the account
// has no verification timestamp. Failed requests are retried, results are cached.
func (c *Client) VerifiedSince(ctx context.Context, screenName string) (time.Time, error) {
	if screenName == "" {
		return time.Time{}, fmt.Errorf("empty screen name")
	}
	if c.Token == "" {
		return time.Time{}, fmt.Errorf("bearer token is not set")
	}
	if ts, ok := c.cache.Get(screenName); ok {
		return ts, nil
	}

	var msec string
	err := repeater.NewDefault(c.Retries, c.RetryDelay).Do(ctx, func() error {
		token, err := c.guestToken(ctx)
		if err != nil {
			return err
		}
		msec, err = c.verifiedSince(ctx, token, screenName)
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to look up %s: %w", screenName, err)
	}
	if msec == "" {
		return time.Time{}, fmt.Errorf("%s: %w", screenName, ErrNotVerified)
	}

	ms, err := strconv.ParseInt(msec, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid verified_since_msec %q: %w", msec, err)
	}
	ts := time.UnixMilli(ms).UTC()
	c.cache.Set(screenName, ts, 0)
	log.Printf("[DEBUG] %s verified since %s", screenName, ts.Format(time.RFC3339))
	return ts, nil
}

func (c *Client) guestToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/guest/activate.json", http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to make guest token request: %w", err)
	}
	var resp struct {
		GuestToken string `json:"guest_token"`
	}
	if err := c.call(req, &resp); err != nil {
		return "", fmt.Errorf("failed to activate guest token: %w", err)
	}
	if resp.GuestToken == "" {
		return "", fmt.Errorf("empty guest token")
	}
	return resp.GuestToken, nil
}

// verifiedSince returns verified_since_msec of the user, empty if absent
func (c *Client) verifiedSince(ctx context.Context, guestToken, screenName string) (string, error) {
	variables, err := json.Marshal(map[string]string{"screen_name": screenName})
	if err != nil {
		return "", fmt.Errorf("failed to marshal variables: %w", err)
	}
	features, err := json.Marshal(userFeatures)
	if err != nil {
		return "", fmt.Errorf("failed to marshal features: %w", err)
	}
	params := url.Values{}
	params.Set("variables", string(variables))
	params.Set("features", string(features))

	u := fmt.Sprintf("%s/%s/UserByScreenName?%s", c.GraphQLURL, c.QueryID, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to make user request: %w", err)
	}
	req.Header.Set("x-guest-token", guestToken)
	req.Header.Set("x-twitter-active-user", "yes")

	var resp struct {
		Data struct {
			User struct {
				Result struct {
					VerificationInfo struct {
						Reason struct {
							VerifiedSinceMsec string `json:"verified_since_msec"`
						} `json:"reason"`
					} `json:"verification_info"`
				} `json:"result"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := c.call(req, &resp); err != nil {
		return "", fmt.Errorf("failed to query user: %w", err)
	}
	return resp.Data.User.Result.VerificationInfo.Reason.VerifiedSinceMsec, nil
}

// call sends the request with auth headers and decodes json response
func (c *Client) call(req *http.Request, v any) error {
	req.Header.Set("authorization", "Bearer "+c.Token)
	req.Header.Set("content-type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
