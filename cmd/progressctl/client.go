package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/sitegen/pkg/models"
)

const defaultWSPath = "/api/v1/ws"

// frame is any message the progress server pushes to a subscriber.
type frame struct {
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	JobID   string          `json:"jobId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// wsURL accepts ws(s) and http(s) server addresses and returns the websocket
// endpoint. A bare host gets the default path.
func wsURL(server string) (string, error) {
	if !strings.Contains(server, "://") {
		server = "ws://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server address: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server address %q has no host", server)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultWSPath
	}
	return u.String(), nil
}

type client struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func dial(ctx context.Context, server string, timeout time.Duration) (*client, error) {
	endpoint, err := wsURL(server)
	if err != nil {
		return nil, err
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = timeout
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	return &client{conn: conn, timeout: timeout}, nil
}

func (c *client) close() error {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *client) send(msgType, jobID string) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	return c.conn.WriteJSON(models.ControlMessage{Type: msgType, JobID: jobID})
}

// next reads one frame. A zero timeout waits indefinitely.
func (c *client) next(timeout time.Duration) (frame, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	c.conn.SetReadDeadline(deadline)

	var f frame
	if err := c.conn.ReadJSON(&f); err != nil {
		return frame{}, err
	}
	return f, nil
}

// request sends one control message and returns the first reply of the
// expected type. Progress pushes for earlier subscriptions are skipped.
func (c *client) request(msgType, jobID, replyType string) (frame, error) {
	if err := c.send(msgType, jobID); err != nil {
		return frame{}, fmt.Errorf("send %s: %w", msgType, err)
	}
	for {
		f, err := c.next(c.timeout)
		if err != nil {
			return frame{}, fmt.Errorf("await %s reply: %w", replyType, err)
		}
		if f.Type == replyType {
			return f, nil
		}
	}
}
