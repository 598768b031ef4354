// Package feed manages the upstream tick stream: connecting with the
// configured auth strategy, subscribing the watchlist, decoding frames,
// and reconnecting after any transport failure.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tickwatch/tickwatch/internal/config"
)

// Conn is one established upstream connection.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer establishes an upstream connection. The auth handshake lives
// entirely behind this interface; the supervisor never branches on it.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// NewDialer selects the dial strategy from the feed configuration.
func NewDialer(cfg config.FeedConfig) (Dialer, error) {
	switch cfg.AuthMode {
	case "token":
		return &TokenDialer{
			WebsocketURL: cfg.WebsocketURL,
			APIKey:       cfg.APIKey,
			AccessToken:  cfg.AccessToken,
		}, nil
	case "redirect":
		return &RedirectDialer{
			LoginURL: cfg.LoginURL,
			APIKey:   cfg.APIKey,
			client:   &http.Client{Timeout: 30 * time.Second},
		}, nil
	default:
		return nil, fmt.Errorf("unknown feed auth mode: %s", cfg.AuthMode)
	}
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteJSON(v any) error {
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// TokenDialer connects directly, passing the API key and access token as
// query parameters on the websocket URL.
type TokenDialer struct {
	WebsocketURL string
	APIKey       string
	AccessToken  string
}

func (d *TokenDialer) Dial(ctx context.Context) (Conn, error) {
	u, err := url.Parse(d.WebsocketURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("api_key", d.APIKey)
	q.Set("access_token", d.AccessToken)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

// RedirectDialer first fetches the session websocket URL from the login
// endpoint, then connects to the returned address.
type RedirectDialer struct {
	LoginURL string
	APIKey   string
	client   *http.Client
}

type loginResponse struct {
	SocketURL string `json:"socket_url"`
}

func (d *RedirectDialer) Dial(ctx context.Context) (Conn, error) {
	u, err := url.Parse(d.LoginURL)
	if err != nil {
		return nil, fmt.Errorf("invalid login URL: %w", err)
	}
	q := u.Query()
	q.Set("api_key", d.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login request returned status %d", resp.StatusCode)
	}

	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	if login.SocketURL == "" {
		return nil, fmt.Errorf("login response missing socket URL")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, login.SocketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &wsConn{conn: conn}, nil
}
