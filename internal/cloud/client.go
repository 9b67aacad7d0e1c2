package cloud

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"aromabridge/internal/logger"
)

// Vendor endpoint paths, all relative to the configured base URL.
const (
	pathLogin           = "/v1/app/user/newLogin"
	pathToken           = "/v2/app/token"
	pathTokenRefresh    = "/v2/app/token/refresh"
	pathDeviceList      = "/v1/app/device/listAll/%d"
	pathSwitchPower     = "/v1/app/data/newSwitch"
	pathSwitchFan       = "/v1/app/data/switch"
	pathScheduleWrite   = "/v1/app/data/workSetApp"
	pathActivate        = "/v1/app/device/newWork/%s"
	pathScheduleRequest = "/v1/app/device/newWorkTime/%s"
)

// Headers the vendor backend expects on authenticated calls. The mobile
// app's user agent is required; the server rejects unknown clients on
// some endpoints.
const (
	headerAccessToken = "access_token"
	vendorUserAgent   = "KeRuiMa/1.1.3"
	vendorVersion     = "1"
)

const (
	defaultHTTPTimeout   = 15 * time.Second
	maxResponseBodyBytes = 1 << 16 // 64 KB
)

var (
	// ErrAuthFailed covers bad credentials and expired refresh tokens.
	ErrAuthFailed = errors.New("cloud: authentication failed")
	// ErrRemoteRejection is a non-200 status on an otherwise well-formed call.
	ErrRemoteRejection = errors.New("cloud: request rejected")
)

// Config carries the vendor account and endpoints.
type Config struct {
	BaseURL  string
	Username string
	Password string
}

// Client talks to the vendor REST API. The token pair may be refreshed
// concurrently by multiple device sessions; the last writer wins and every
// call re-reads the pair under the lock, which keeps that race benign.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	username    string
	passwordMD5 string
	log         *logger.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	userID       int64
}

// NewClient builds a Client. An httpClient of nil gets a default with a
// request timeout; hosts can supply their own to share a connection pool.
func NewClient(cfg Config, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		log:        log,
	}
	if cfg.Password != "" {
		sum := md5.Sum([]byte(cfg.Password))
		c.passwordMD5 = hex.EncodeToString(sum[:])
	}
	return c
}

// UserID returns the account id obtained at login (0 before login).
func (c *Client) UserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) accessTokenValue() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// tokenResponse is the shared shape of the token and refresh endpoints.
type tokenResponse struct {
	Code int `json:"code"`
	Data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ID           int64  `json:"id"`
	} `json:"data"`
}

// Login authenticates with username and MD5-hashed password, then obtains
// the access/refresh token pair and the account id.
func (c *Client) Login(ctx context.Context) error {
	if c.passwordMD5 == "" {
		return fmt.Errorf("%w: no password configured", ErrAuthFailed)
	}
	form := url.Values{
		"userName": {c.username},
		"password": {c.passwordMD5},
	}

	resp, err := c.postForm(ctx, pathLogin, form, false)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login status %d", ErrAuthFailed, resp.StatusCode)
	}

	resp, err = c.postForm(ctx, pathToken, form, false)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	defer drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: token status %d", ErrAuthFailed, resp.StatusCode)
	}

	var tr tokenResponse
	if err := decodeBody(resp, &tr); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if tr.Data.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}

	c.mu.Lock()
	c.accessToken = tr.Data.AccessToken
	c.refreshToken = tr.Data.RefreshToken
	c.userID = tr.Data.ID
	c.mu.Unlock()

	if c.log != nil {
		c.log.Infow("cloud_login_ok", "user_id", tr.Data.ID)
	}
	return nil
}

// Refresh exchanges the refresh token for a fresh pair. Safe to call from
// multiple sessions; an in-flight refresh losing the race simply gets
// overwritten by a newer pair.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return fmt.Errorf("%w: no refresh token", ErrAuthFailed)
	}

	form := url.Values{"refreshToken": {refresh}}
	resp, err := c.postForm(ctx, pathTokenRefresh, form, false)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	defer drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: refresh status %d", ErrAuthFailed, resp.StatusCode)
	}

	var tr tokenResponse
	if err := decodeBody(resp, &tr); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if tr.Code != http.StatusOK || tr.Data.AccessToken == "" {
		return fmt.Errorf("%w: refresh response code %d", ErrAuthFailed, tr.Code)
	}

	c.mu.Lock()
	c.accessToken = tr.Data.AccessToken
	if tr.Data.RefreshToken != "" {
		c.refreshToken = tr.Data.RefreshToken
	}
	c.mu.Unlock()

	if c.log != nil {
		c.log.Debugw("cloud_token_refreshed")
	}
	return nil
}

// postForm posts URL-encoded form data. When authed is true the current
// access token is attached.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, authed bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setVendorHeaders(req, authed)
	return c.httpClient.Do(req)
}

// postJSON posts a JSON body with the access token attached.
func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	var buf strings.Builder
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(buf.String()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setVendorHeaders(req, true)
	return c.httpClient.Do(req)
}

// get performs an authenticated GET with optional query parameters.
func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.setVendorHeaders(req, true)
	return c.httpClient.Do(req)
}

func (c *Client) setVendorHeaders(req *http.Request, authed bool) {
	req.Header.Set("User-Agent", vendorUserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("version", vendorVersion)
	if authed {
		req.Header.Set(headerAccessToken, c.accessTokenValue())
	}
}

func decodeBody(resp *http.Response, dst any) error {
	body := io.LimitReader(resp.Body, maxResponseBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))
	_ = resp.Body.Close()
}
