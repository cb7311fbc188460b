package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/salini0110200/lockbot/internal/chat"
)

const (
	DefaultCallTimeout  = 30 * time.Second
	DefaultPingInterval = 30 * time.Second
)

var ErrNoURL = errors.New("bridge: url is required")

type Options struct {
	URL string
	// Header is sent with the websocket handshake, e.g. an Authorization
	// token for the bridge.
	Header       map[string]string
	CallTimeout  time.Duration
	PingInterval time.Duration
	Logger       *slog.Logger
}

// Client dials a fresh websocket for every Login.
type Client struct {
	url          string
	header       map[string]string
	callTimeout  time.Duration
	pingInterval time.Duration
	logger       *slog.Logger
}

func New(opts Options) (*Client, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, ErrNoURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	ping := opts.PingInterval
	if ping <= 0 {
		ping = DefaultPingInterval
	}
	return &Client{
		url:          url,
		header:       opts.Header,
		callTimeout:  timeout,
		pingInterval: ping,
		logger:       logger,
	}, nil
}

func (c *Client) Login(ctx context.Context, credentials json.RawMessage) (chat.Session, error) {
	dialer := *websocket.DefaultDialer
	hdr := http.Header{}
	for k, v := range c.header {
		hdr.Set(k, v)
	}
	conn, _, err := dialer.DialContext(ctx, c.url, hdr)
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}
	sess := newSession(conn, c.callTimeout, c.pingInterval, c.logger)

	var res loginResult
	if err := sess.call(ctx, opLogin, loginArgs{Credentials: credentials}, &res); err != nil {
		_ = sess.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	if strings.TrimSpace(res.UserID) == "" {
		_ = sess.Close()
		return nil, fmt.Errorf("login: bridge returned empty user id")
	}
	sess.userID = res.UserID
	return sess, nil
}
