package platform

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
	"github.com/lllypuk/inboxsync/internal/domain/notification"
	"github.com/lllypuk/inboxsync/internal/domain/uuid"
)

const (
	authSecretSize  = 16
	stateFileMode   = 0o600
	stateDirMode    = 0o700
	permissionQuery = "Allow inboxsync to show notifications on this device?"
)

// LocalConfig configures the local platform.
type LocalConfig struct {
	Capabilities Capabilities

	// Permission is the initial permission; PermissionDefault means the user is prompted.
	Permission Permission

	// Endpoint is the push service base URL subscriptions are created under.
	Endpoint string

	// StateFile persists the push subscription between runs. Empty keeps it in memory.
	StateFile string

	// MaxShown bounds how many tags are remembered for coalescing. Zero uses DefaultMaxShown.
	MaxShown int
}

// DefaultMaxShown is the number of remembered tags when LocalConfig.MaxShown is unset.
const DefaultMaxShown = 256

// subscriptionState is the on-disk form of the local push subscription.
type subscriptionState struct {
	ApplicationServerKey string    `yaml:"application_server_key"`
	Endpoint             string    `yaml:"endpoint"`
	P256dh               string    `yaml:"p256dh"`
	Auth                 string    `yaml:"auth"`
	PrivateKey           string    `yaml:"private_key"`
	CreatedAt            time.Time `yaml:"created_at"`
}

// Local implements the platform services for a desktop/terminal process.
type Local struct {
	config   LocalConfig
	prompter Prompter
	out      io.Writer
	logger   *slog.Logger

	mu         sync.Mutex
	permission Permission
	state      *subscriptionState
	loaded     bool
	shown      map[string]struct{}
	shownOrder []string
}

// LocalOption configures Local.
type LocalOption func(*Local)

// WithPrompter sets the permission prompter.
func WithPrompter(p Prompter) LocalOption {
	return func(l *Local) {
		l.prompter = p
	}
}

// WithOutput sets where native notifications are rendered.
func WithOutput(w io.Writer) LocalOption {
	return func(l *Local) {
		l.out = w
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		l.logger = logger
	}
}

// NewLocal creates the local platform.
func NewLocal(config LocalConfig, opts ...LocalOption) *Local {
	permission := config.Permission
	if permission == "" {
		permission = PermissionDefault
	}
	if config.MaxShown <= 0 {
		config.MaxShown = DefaultMaxShown
	}

	l := &Local{
		config:     config,
		out:        os.Stdout,
		logger:     slog.Default(),
		permission: permission,
		shown:      make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Capabilities returns what this platform supports.
func (l *Local) Capabilities() Capabilities {
	return l.config.Capabilities
}

// Permission returns the current notification permission.
func (l *Local) Permission() Permission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.permission
}

// RequestPermission prompts the user unless permission was fixed by configuration.
func (l *Local) RequestPermission(ctx context.Context) (Permission, error) {
	if l.config.Permission == PermissionGranted || l.config.Permission == PermissionDenied {
		return l.config.Permission, nil
	}
	if l.prompter == nil {
		return l.Permission(), errors.New("no permission prompter configured")
	}

	ok, err := l.prompter.Prompt(ctx, permissionQuery)
	if err != nil {
		return l.Permission(), fmt.Errorf("permission prompt: %w", err)
	}

	result := PermissionDenied
	if ok {
		result = PermissionGranted
	}

	l.mu.Lock()
	l.permission = result
	l.mu.Unlock()

	return result, nil
}

// Subscription returns the existing push subscription, or nil.
func (l *Local) Subscription(_ context.Context) (*Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadLocked(); err != nil {
		return nil, err
	}
	if l.state == nil {
		return nil, nil //nolint:nilnil // no subscription is not an error
	}
	return l.state.subscription(), nil
}

// Subscribe creates a push subscription bound to applicationServerKey (base64url P-256 point).
func (l *Local) Subscribe(_ context.Context, applicationServerKey string) (*Subscription, error) {
	if !l.config.Capabilities.Push {
		return nil, errs.ErrPlatformUnsupported
	}
	if l.Permission() != PermissionGranted {
		return nil, errs.ErrPermissionDenied
	}
	if _, err := decodeApplicationServerKey(applicationServerKey); err != nil {
		return nil, err
	}

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate subscription key: %w", err)
	}
	secret := make([]byte, authSecretSize)
	if _, err = rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate auth secret: %w", err)
	}

	state := &subscriptionState{
		ApplicationServerKey: applicationServerKey,
		Endpoint:             strings.TrimSuffix(l.config.Endpoint, "/") + "/" + uuid.NewUUID().String(),
		P256dh:               base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		Auth:                 base64.RawURLEncoding.EncodeToString(secret),
		PrivateKey:           base64.RawURLEncoding.EncodeToString(priv.Bytes()),
		CreatedAt:            time.Now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err = l.saveLocked(state); err != nil {
		return nil, err
	}
	l.state = state
	l.loaded = true

	return state.subscription(), nil
}

// Unsubscribe cancels the push subscription. Missing subscriptions are not an error.
func (l *Local) Unsubscribe(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = nil
	l.loaded = true

	if l.config.StateFile == "" {
		return nil
	}
	if err := os.Remove(l.config.StateFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove push subscription state: %w", err)
	}
	return nil
}

// ShowNotification renders a native notification. A notification whose tag was
// already shown replaces the earlier one instead of stacking a second entry.
// Only the most recent MaxShown tags are remembered; older ones render again.
func (l *Local) ShowNotification(ctx context.Context, n notification.NativeNotification) error {
	if !l.config.Capabilities.LocalNotifications {
		return errs.ErrPlatformUnsupported
	}
	if l.Permission() != PermissionGranted {
		return errs.ErrPermissionDenied
	}

	l.mu.Lock()
	seen := l.rememberLocked(n.Tag)
	l.mu.Unlock()

	if seen {
		l.logger.DebugContext(ctx, "native notification coalesced", slog.String("tag", n.Tag))
		return nil
	}

	_, err := fmt.Fprintf(l.out, "[%s] %s: %s\n", n.Tag, n.Title, n.Body)
	return err
}

// Shown returns how many distinct tags are currently remembered as displayed.
func (l *Local) Shown() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.shown)
}

// rememberLocked records tag and reports whether it was already shown.
// The oldest tag is forgotten once MaxShown is exceeded.
func (l *Local) rememberLocked(tag string) bool {
	if _, ok := l.shown[tag]; ok {
		return true
	}

	l.shown[tag] = struct{}{}
	l.shownOrder = append(l.shownOrder, tag)
	if len(l.shownOrder) > l.config.MaxShown {
		oldest := l.shownOrder[0]
		l.shownOrder[0] = ""
		l.shownOrder = l.shownOrder[1:]
		delete(l.shown, oldest)
	}
	return false
}

func (l *Local) loadLocked() error {
	if l.loaded {
		return nil
	}
	l.loaded = true

	if l.config.StateFile == "" {
		return nil
	}

	data, err := os.ReadFile(l.config.StateFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read push subscription state: %w", err)
	}

	var state subscriptionState
	if unmarshalErr := yaml.Unmarshal(data, &state); unmarshalErr != nil {
		l.logger.Warn("discarding unreadable push subscription state",
			slog.String("file", l.config.StateFile),
			slog.String("error", unmarshalErr.Error()),
		)
		return nil
	}
	if state.Endpoint == "" {
		return nil
	}

	l.state = &state
	return nil
}

func (l *Local) saveLocked(state *subscriptionState) error {
	if l.config.StateFile == "" {
		return nil
	}

	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode push subscription state: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(l.config.StateFile), stateDirMode); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	if err = os.WriteFile(l.config.StateFile, data, stateFileMode); err != nil {
		return fmt.Errorf("failed to write push subscription state: %w", err)
	}
	return nil
}

func (s *subscriptionState) subscription() *Subscription {
	return &Subscription{
		PushSubscription: notification.PushSubscription{
			Endpoint: s.Endpoint,
			Keys: notification.PushKeys{
				P256dh: s.P256dh,
				Auth:   s.Auth,
			},
		},
		ApplicationServerKey: s.ApplicationServerKey,
	}
}

// decodeApplicationServerKey validates a VAPID public key: an uncompressed P-256
// point, base64url encoded with or without padding.
func decodeApplicationServerKey(key string) (*ecdh.PublicKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(key, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: application server key is not base64url: %w", errs.ErrInvalidInput, err)
	}
	pub, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: application server key is not a P-256 point: %w", errs.ErrInvalidInput, err)
	}
	return pub, nil
}
