package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
)

// SSETransport is the fallback transport: a long-lived server-sent events request.
// It gets through intermediaries that refuse websocket upgrades.
type SSETransport struct {
	url        string
	httpClient *http.Client
}

// NewSSETransport creates the fallback transport. The client must not set a
// total request timeout, since the response body stays open for the whole session.
func NewSSETransport(url string, httpClient *http.Client) *SSETransport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &SSETransport{url: url, httpClient: httpClient}
}

// Name implements Transport.
func (t *SSETransport) Name() string { return TransportSSE }

// Connect implements Transport.
func (t *SSETransport) Connect(ctx context.Context, token string) (Stream, error) {
	if t.url == "" {
		return nil, errors.New("events url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create events request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("events request: %w: %w", errs.ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("events handshake: %w", errs.ErrAuth)
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("events request: %w: status %d", errs.ErrTransport, resp.StatusCode)
	}

	return &sseStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

type sseStream struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	closeOnce sync.Once
}

// Next implements Stream. It accumulates "event:" and "data:" fields until a blank line.
func (s *sseStream) Next() (Event, error) {
	var (
		name string
		data strings.Builder
	)

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return Event{}, fmt.Errorf("%w: %w", errs.ErrTransport, err)
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if data.Len() == 0 {
				name = ""
				continue
			}
			if evt, ok := decodeSSE(name, data.String()); ok {
				return evt, nil
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment / heartbeat
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}

// decodeSSE maps an SSE frame to an Event. Named frames carry the payload directly;
// unnamed frames carry the same {type,data} envelope as the websocket transport.
func decodeSSE(name, data string) (Event, bool) {
	if name != "" && name != "message" {
		return Event{Type: name, Data: json.RawMessage(data)}, true
	}

	var evt Event
	if err := json.Unmarshal([]byte(data), &evt); err != nil || evt.Type == "" {
		return Event{}, false
	}
	return evt, true
}

// Close implements Stream.
func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
