package glpi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mesa-ayuda/helpdesk-service/internal/config"
)

// Client is a minimal GLPI REST API client. It only covers the session
// handshake used by the connectivity check; ticket sync stays in GLPI.
type Client struct {
	apiURL     string
	appToken   string
	userToken  string
	httpClient *http.Client
}

// SessionInfo carries the fields returned by initSession.
type SessionInfo struct {
	SessionToken string `json:"session_token"`
	GlpiID       int    `json:"glpiID"`
	GlpiName     string `json:"glpiname"`
	GlpiRealName string `json:"glpirealname"`
}

// ErrNotConfigured indicates missing GLPI credentials.
var ErrNotConfigured = errors.New("glpi credentials not configured")

// NewClient builds a client from config. Returns ErrNotConfigured when any
// credential is missing.
func NewClient(cfg config.GlpiConfig) (*Client, error) {
	if cfg.APIURL == "" || cfg.AppToken == "" || cfg.UserToken == "" {
		return nil, ErrNotConfigured
	}
	return &Client{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		appToken:   cfg.AppToken,
		userToken:  cfg.UserToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// InitSession opens a GLPI session and returns its metadata.
func (c *Client) InitSession(ctx context.Context) (*SessionInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/initSession", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("App-Token", c.appToken)
	req.Header.Set("Authorization", "user_token "+c.userToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("glpi initSession: unexpected status %d", resp.StatusCode)
	}

	var info SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("glpi initSession: decode response: %w", err)
	}
	if info.SessionToken == "" {
		return nil, errors.New("glpi initSession: empty session token")
	}
	return &info, nil
}

// KillSession closes a previously opened session.
func (c *Client) KillSession(ctx context.Context, sessionToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/killSession", nil)
	if err != nil {
		return err
	}
	req.Header.Set("App-Token", c.appToken)
	req.Header.Set("Session-Token", sessionToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("glpi killSession: unexpected status %d", resp.StatusCode)
	}
	return nil
}
