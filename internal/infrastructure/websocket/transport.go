// Package websocket implements the realtime notification channel: one authenticated,
// persistent connection per session that streams newly created notifications.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
)

// Transport names, in default preference order.
const (
	TransportWebSocket = "websocket"
	TransportSSE       = "sse"
)

// Default transport configuration constants.
const (
	defaultReadBufferSize   = 1024
	defaultWriteBufferSize  = 1024
	defaultPingInterval     = 25 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultMaxMessageSize   = 65536
)

// Event is one message received from the realtime endpoint.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Stream is an established realtime connection.
type Stream interface {
	// Next blocks until the next event arrives or the connection fails.
	Next() (Event, error)

	// Close tears the connection down. Safe to call more than once and concurrently with Next.
	Close() error
}

// Transport opens realtime streams. The token travels in the handshake, never in a message body.
type Transport interface {
	Name() string
	Connect(ctx context.Context, token string) (Stream, error)
}

// TransportConfig holds websocket connection tuning.
type TransportConfig struct {
	// ReadBufferSize is the size of the read buffer.
	ReadBufferSize int

	// WriteBufferSize is the size of the write buffer.
	WriteBufferSize int

	// PingInterval is the interval for sending ping messages.
	PingInterval time.Duration

	// PongWait is the maximum time to wait for any traffic (pong or message) from the server.
	PongWait time.Duration

	// WriteWait is the maximum time to wait for a write operation.
	WriteWait time.Duration

	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration

	// MaxMessageSize is the maximum allowed message size.
	MaxMessageSize int64
}

// DefaultTransportConfig returns sensible default configuration.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ReadBufferSize:   defaultReadBufferSize,
		WriteBufferSize:  defaultWriteBufferSize,
		PingInterval:     defaultPingInterval,
		PongWait:         defaultPongWait,
		WriteWait:        defaultWriteWait,
		HandshakeTimeout: defaultHandshakeTimeout,
		MaxMessageSize:   defaultMaxMessageSize,
	}
}

// WebSocketTransport dials the realtime endpoint with gorilla/websocket.
type WebSocketTransport struct {
	url    string
	dialer *websocket.Dialer
	config TransportConfig
	logger *slog.Logger
}

// NewWebSocketTransport creates the primary transport.
func NewWebSocketTransport(url string, config TransportConfig, logger *slog.Logger) *WebSocketTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketTransport{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
			ReadBufferSize:   config.ReadBufferSize,
			WriteBufferSize:  config.WriteBufferSize,
		},
		config: config,
		logger: logger,
	}
}

// Name implements Transport.
func (t *WebSocketTransport) Name() string { return TransportWebSocket }

// Connect implements Transport.
func (t *WebSocketTransport) Connect(ctx context.Context, token string) (Stream, error) {
	if t.url == "" {
		return nil, errors.New("websocket url not configured")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("websocket handshake: %w", errs.ErrAuth)
		}
		return nil, fmt.Errorf("websocket dial: %w: %w", errs.ErrTransport, err)
	}

	s := &wsStream{
		conn:   conn,
		config: t.config,
		logger: t.logger,
		done:   make(chan struct{}),
	}
	if startErr := s.start(); startErr != nil {
		_ = conn.Close()
		return nil, startErr
	}

	return s, nil
}

// wsStream is a websocket connection with a keepalive pinger.
type wsStream struct {
	conn   *websocket.Conn
	config TransportConfig
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *wsStream) start() error {
	if s.config.MaxMessageSize > 0 {
		s.conn.SetReadLimit(s.config.MaxMessageSize)
	}

	if err := s.extendReadDeadline(); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	s.conn.SetPongHandler(func(string) error {
		return s.extendReadDeadline()
	})
	s.conn.SetPingHandler(func(data string) error {
		if err := s.extendReadDeadline(); err != nil {
			return err
		}
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.config.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	if s.config.PingInterval > 0 {
		s.wg.Add(1)
		go s.pingLoop()
	}

	return nil
}

func (s *wsStream) extendReadDeadline() error {
	if s.config.PongWait <= 0 {
		return nil
	}
	return s.conn.SetReadDeadline(time.Now().Add(s.config.PongWait))
}

func (s *wsStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteWait)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("websocket ping failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// Next implements Stream.
func (s *wsStream) Next() (Event, error) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read error", slog.String("error", err.Error()))
			}
			return Event{}, fmt.Errorf("%w: %w", errs.ErrTransport, err)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var evt Event
		if unmarshalErr := json.Unmarshal(data, &evt); unmarshalErr != nil {
			s.logger.Warn("invalid realtime message", slog.String("error", unmarshalErr.Error()))
			continue
		}
		return evt, nil
	}
}

// Close implements Stream.
func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(s.config.WriteWait),
		)
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}
