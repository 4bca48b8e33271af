package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// LEDLink pushes rendered frames to an RGB controller over WebSocket.
//
// Wire format, one text frame per change:
//
//	{"type":"frame","leds":[[index,r,g,b],...]}
//
// The link is driven from the daemon loop at tick rate, so it never blocks on
// reconnects: while disconnected it retries at most once per retryInterval and
// drops frames in between.
type LEDLink struct {
	mu   sync.Mutex
	conn *websocket.Conn
	url  string

	logger        *slog.Logger
	retryInterval time.Duration
	lastAttempt   time.Time
	last          []LEDColor
}

const (
	ledLinkHandshakeTimeout = 500 * time.Millisecond
	ledLinkWriteTimeout     = 50 * time.Millisecond
	ledLinkRetryInterval    = 2 * time.Second
)

type ledFrameMessage struct {
	Type string   `json:"type"`
	LEDs [][4]int `json:"leds"`
}

func NewLEDLink(wsURL string, logger *slog.Logger) (*LEDLink, error) {
	if _, err := url.Parse(wsURL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	return &LEDLink{
		url:           wsURL,
		logger:        logger,
		retryInterval: ledLinkRetryInterval,
	}, nil
}

func encodeLEDFrame(frame []LEDColor) ([]byte, error) {
	msg := ledFrameMessage{Type: "frame", LEDs: make([][4]int, 0, len(frame))}
	for _, c := range frame {
		msg.LEDs = append(msg.LEDs, [4]int{c.Index, int(c.R), int(c.G), int(c.B)})
	}
	return json.Marshal(msg)
}

// SetLEDs sends frame unless it equals the last frame delivered.
func (l *LEDLink) SetLEDs(frame []LEDColor) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil && slices.Equal(frame, l.last) {
		return nil
	}
	if err := l.ensureConnectedLocked(); err != nil {
		return err
	}

	payload, err := encodeLEDFrame(frame)
	if err != nil {
		return fmt.Errorf("marshal led frame: %w", err)
	}

	_ = l.conn.SetWriteDeadline(time.Now().Add(ledLinkWriteTimeout))
	if err := l.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		_ = l.conn.Close()
		l.conn = nil // mark connection as broken
		return fmt.Errorf("write led frame: %w", err)
	}
	l.last = slices.Clone(frame)
	return nil
}

func (l *LEDLink) ensureConnectedLocked() error {
	if l.conn != nil {
		return nil
	}
	now := time.Now()
	if !l.lastAttempt.IsZero() && now.Sub(l.lastAttempt) < l.retryInterval {
		return fmt.Errorf("led controller not connected")
	}
	l.lastAttempt = now

	d := websocket.Dialer{HandshakeTimeout: ledLinkHandshakeTimeout}
	conn, _, err := d.Dial(l.url, nil)
	if err != nil {
		return fmt.Errorf("dial led controller: %w", err)
	}
	l.conn = conn
	l.last = nil
	l.logger.Info("connected to LED controller", "url", l.url)
	return nil
}

func (l *LEDLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		_ = l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err := l.conn.Close()
		l.conn = nil
		return err
	}
	return nil
}
