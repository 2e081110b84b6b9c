// Package session carries the authenticated client context shared by the gateway,
// the realtime channel and the push manager. It replaces process-wide client and
// token globals so several sessions can coexist (and tests stay isolated).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
)

const defaultHTTPTimeout = 30 * time.Second

// TokenSource supplies the current session token.
// Refreshing the token is the auth subsystem's job, not ours.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(_ context.Context) (string, error) {
	if t == "" {
		return "", errs.ErrSessionRequired
	}
	return string(t), nil
}

// FileToken reads the token from a file on every call, so an external
// refresher can rotate it in place.
type FileToken string

// Token implements TokenSource.
func (f FileToken) Token(_ context.Context) (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("%w: read token file: %w", errs.ErrSessionRequired, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", errs.ErrSessionRequired
	}
	return token, nil
}

// AuthHandler is notified when the backend rejects the session token.
// It decides between refreshing the token and forcing a logout.
type AuthHandler interface {
	Unauthorized(ctx context.Context, err error)
}

// AuthHandlerFunc adapts a function to AuthHandler.
type AuthHandlerFunc func(ctx context.Context, err error)

// Unauthorized implements AuthHandler.
func (f AuthHandlerFunc) Unauthorized(ctx context.Context, err error) { f(ctx, err) }

// Config describes the backend endpoints of a session.
type Config struct {
	// BaseURL is the REST API root; notification routes live under BaseURL + "/notifications".
	BaseURL string

	// RealtimeURL is the websocket endpoint (ws:// or wss://).
	RealtimeURL string

	// EventsURL is the server-sent events endpoint used as realtime fallback.
	EventsURL string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// Claims are the token claims the sync layer cares about.
type Claims struct {
	UserID    string
	ExpiresAt time.Time
}

// Session is an authenticated client context.
type Session struct {
	config      Config
	tokens      TokenSource
	authHandler AuthHandler
	httpClient  *http.Client
	logger      *slog.Logger
	now         func() time.Time

	mu           sync.Mutex
	unauthorized int
}

// Option configures a Session.
type Option func(*Session)

// WithAuthHandler sets the handler notified on 401 responses.
func WithAuthHandler(h AuthHandler) Option {
	return func(s *Session) {
		s.authHandler = h
	}
}

// WithLogger sets the logger for the session.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithClock overrides the clock used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New creates a session.
func New(config Config, tokens TokenSource, opts ...Option) *Session {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	s := &Session{
		config: Config{
			BaseURL:     strings.TrimSuffix(config.BaseURL, "/"),
			RealtimeURL: config.RealtimeURL,
			EventsURL:   config.EventsURL,
		},
		tokens:     tokens,
		httpClient: httpClient,
		logger:     slog.Default(),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// BaseURL returns the REST API root without a trailing slash.
func (s *Session) BaseURL() string { return s.config.BaseURL }

// RealtimeURL returns the websocket endpoint.
func (s *Session) RealtimeURL() string { return s.config.RealtimeURL }

// EventsURL returns the SSE fallback endpoint.
func (s *Session) EventsURL() string { return s.config.EventsURL }

// HTTPClient returns the HTTP client shared by the session's components.
func (s *Session) HTTPClient() *http.Client { return s.httpClient }

// Token returns the current session token.
func (s *Session) Token(ctx context.Context) (string, error) {
	if s.tokens == nil {
		return "", errs.ErrSessionRequired
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrSessionRequired, err)
	}
	if token == "" {
		return "", errs.ErrSessionRequired
	}
	return token, nil
}

// Claims extracts the claims of the current token without verifying its signature.
// The backend verifies tokens; the client only needs the subject and expiry.
func (s *Session) Claims(ctx context.Context) (Claims, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return Claims{}, err
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: malformed token: %w", errs.ErrSessionRequired, err)
	}

	var claims Claims
	if sub, subErr := parsed.Claims.GetSubject(); subErr == nil {
		claims.UserID = sub
	}
	if exp, expErr := parsed.Claims.GetExpirationTime(); expErr == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims, nil
}

// Validate reports whether the session holds a usable token: present, well-formed
// and not expired. Tokens without an exp claim are accepted.
func (s *Session) Validate(ctx context.Context) error {
	claims, err := s.Claims(ctx)
	if err != nil {
		return err
	}
	if !claims.ExpiresAt.IsZero() && !s.now().Before(claims.ExpiresAt) {
		return fmt.Errorf("%w: token expired at %s", errs.ErrSessionRequired, claims.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// ReportUnauthorized delegates a 401 to the auth handler.
func (s *Session) ReportUnauthorized(ctx context.Context, err error) {
	s.mu.Lock()
	s.unauthorized++
	s.mu.Unlock()

	s.logger.WarnContext(ctx, "backend rejected session token",
		slog.String("error", err.Error()),
	)

	if s.authHandler != nil {
		s.authHandler.Unauthorized(ctx, err)
	}
}

// UnauthorizedCount returns how many 401s were reported in this session.
func (s *Session) UnauthorizedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unauthorized
}
