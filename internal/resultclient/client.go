// Package resultclient maintains the push subscription to the
// classifier for the currently active post (spec §4.5). It is grounded
// on the teacher pack's WebSocket client
// (Livepeer-FrameWorks-monorepo/pkg/clients/signalman/client.go), but
// adapted to the subscribe-once-await-one-message-then-close semantics
// spec §4.5 and §6 describe, rather than a persistent reconnecting feed.
package resultclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/postlens/agent/internal/types"
)

// Client dials the classifier's per-post analysis WebSocket.
type Client struct {
	baseURL string
}

// New builds a result delivery client against the classifier's base URL
// (e.g. "http://127.0.0.1:8000"; translated to ws:// internally).
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL}
}

// Subscription represents one open push subscription for exactly one
// base post id, per the §4.5 invariant that only one subscription is
// open at a time.
type Subscription struct {
	BaseID  string
	results chan types.DetectionVerdict

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Results delivers at most one verdict, then closes. If the underlying
// stream closes without a message, Results also closes without ever
// sending — the caller (the session) remains in Capturing, per spec §4.5.
func (s *Subscription) Results() <-chan types.DetectionVerdict {
	return s.results
}

// Close closes the underlying socket. Safe to call multiple times and
// safe to call concurrently with an in-flight read.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Subscribe opens a push subscription for baseID. The caller must Close
// it (directly, or by letting Results drain) before subscribing to a
// different base id — arming for a new base id closes any prior
// subscription first (spec §4.5).
func (c *Client) Subscribe(ctx context.Context, baseID string) (*Subscription, error) {
	wsURL, err := toWebSocketURL(c.baseURL, baseID)
	if err != nil {
		return nil, fmt.Errorf("resultclient: %w", err)
	}

	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("resultclient: dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("resultclient: dial failed: %w", err)
	}

	sub := &Subscription{
		BaseID:  baseID,
		results: make(chan types.DetectionVerdict, 1),
		conn:    conn,
	}

	go sub.readOne()
	return sub, nil
}

func (s *Subscription) readOne() {
	defer close(s.results)
	defer s.Close()

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		slog.Warn("resultclient: subscription closed without a message", "post_id", s.BaseID, "error", err)
		return
	}

	var payload struct {
		IsAI       bool     `json:"is_ai"`
		Confidence float64  `json:"confidence"`
		Severity   string   `json:"severity"`
		Reasons    []string `json:"reasons"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("resultclient: malformed verdict payload", "post_id", s.BaseID, "error", err)
		return
	}

	verdict := types.NewVerdict(s.BaseID, payload.IsAI, payload.Confidence, types.Severity(payload.Severity), payload.Reasons)

	select {
	case s.results <- verdict:
	default:
	}
}

// toWebSocketURL builds ws://.../ws/analysis/<baseID> from an http(s)
// base URL.
func toWebSocketURL(baseURL, baseID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid classifier base url %q: %w", baseURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already a websocket scheme
	default:
		return "", fmt.Errorf("unsupported classifier scheme %q", u.Scheme)
	}

	u.Path = fmt.Sprintf("/ws/analysis/%s", baseID)
	return u.String(), nil
}
