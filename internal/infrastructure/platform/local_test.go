package platform_test

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
	"github.com/lllypuk/inboxsync/internal/domain/notification"
	"github.com/lllypuk/inboxsync/internal/infrastructure/platform"
)

func vapidKey(t *testing.T) string {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes())
}

func allCapabilities() platform.Capabilities {
	return platform.Capabilities{BackgroundAgent: true, Push: true, LocalNotifications: true}
}

type stubPrompter struct {
	answer bool
	asked  int
}

func (p *stubPrompter) Prompt(context.Context, string) (bool, error) {
	p.asked++
	return p.answer, nil
}

func TestParsePermission(t *testing.T) {
	assert.Equal(t, platform.PermissionGranted, platform.ParsePermission("granted"))
	assert.Equal(t, platform.PermissionDenied, platform.ParsePermission(" DENIED "))
	assert.Equal(t, platform.PermissionDefault, platform.ParsePermission("prompt"))
	assert.Equal(t, platform.PermissionDefault, platform.ParsePermission(""))
}

func TestLocal_RequestPermission(t *testing.T) {
	t.Run("prompts and records the answer", func(t *testing.T) {
		prompter := &stubPrompter{answer: true}
		local := platform.NewLocal(platform.LocalConfig{Capabilities: allCapabilities()}, platform.WithPrompter(prompter))

		assert.Equal(t, platform.PermissionDefault, local.Permission())

		perm, err := local.RequestPermission(context.Background())

		require.NoError(t, err)
		assert.Equal(t, platform.PermissionGranted, perm)
		assert.Equal(t, platform.PermissionGranted, local.Permission())
		assert.Equal(t, 1, prompter.asked)
	})

	t.Run("declined prompt means denied", func(t *testing.T) {
		local := platform.NewLocal(platform.LocalConfig{}, platform.WithPrompter(&stubPrompter{answer: false}))

		perm, err := local.RequestPermission(context.Background())

		require.NoError(t, err)
		assert.Equal(t, platform.PermissionDenied, perm)
	})

	t.Run("configured permission skips the prompt", func(t *testing.T) {
		prompter := &stubPrompter{answer: true}
		local := platform.NewLocal(platform.LocalConfig{Permission: platform.PermissionDenied}, platform.WithPrompter(prompter))

		perm, err := local.RequestPermission(context.Background())

		require.NoError(t, err)
		assert.Equal(t, platform.PermissionDenied, perm)
		assert.Equal(t, 0, prompter.asked)
	})
}

func TestLocal_SubscribeLifecycle(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "push", "subscription.yaml")
	config := platform.LocalConfig{
		Capabilities: allCapabilities(),
		Permission:   platform.PermissionGranted,
		Endpoint:     "https://push.local/send/",
		StateFile:    stateFile,
	}
	key := vapidKey(t)

	local := platform.NewLocal(config)

	existing, err := local.Subscription(context.Background())
	require.NoError(t, err)
	assert.Nil(t, existing)

	sub, err := local.Subscribe(context.Background(), key)
	require.NoError(t, err)
	require.NoError(t, sub.Validate())
	assert.True(t, strings.HasPrefix(sub.Endpoint, "https://push.local/send/"))
	assert.Equal(t, key, sub.ApplicationServerKey)

	p256dh, err := base64.RawURLEncoding.DecodeString(sub.Keys.P256dh)
	require.NoError(t, err)
	assert.Len(t, p256dh, 65)
	auth, err := base64.RawURLEncoding.DecodeString(sub.Keys.Auth)
	require.NoError(t, err)
	assert.Len(t, auth, 16)

	// a new process sees the persisted subscription
	reloaded := platform.NewLocal(config)
	persisted, err := reloaded.Subscription(context.Background())
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, sub.Endpoint, persisted.Endpoint)
	assert.Equal(t, sub.Keys, persisted.Keys)

	require.NoError(t, reloaded.Unsubscribe(context.Background()))
	require.NoError(t, reloaded.Unsubscribe(context.Background()))

	gone, err := platform.NewLocal(config).Subscription(context.Background())
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestLocal_SubscribeErrors(t *testing.T) {
	key := vapidKey(t)

	t.Run("push unsupported", func(t *testing.T) {
		local := platform.NewLocal(platform.LocalConfig{Permission: platform.PermissionGranted})

		_, err := local.Subscribe(context.Background(), key)
		require.ErrorIs(t, err, errs.ErrPlatformUnsupported)
	})

	t.Run("permission not granted", func(t *testing.T) {
		local := platform.NewLocal(platform.LocalConfig{Capabilities: allCapabilities()})

		_, err := local.Subscribe(context.Background(), key)
		require.ErrorIs(t, err, errs.ErrPermissionDenied)
	})

	t.Run("invalid application server key", func(t *testing.T) {
		local := platform.NewLocal(platform.LocalConfig{Capabilities: allCapabilities(), Permission: platform.PermissionGranted})

		_, err := local.Subscribe(context.Background(), "not a key")
		require.ErrorIs(t, err, errs.ErrInvalidInput)

		_, err = local.Subscribe(context.Background(), base64.RawURLEncoding.EncodeToString([]byte("short")))
		require.ErrorIs(t, err, errs.ErrInvalidInput)
	})

	t.Run("padded key is accepted", func(t *testing.T) {
		local := platform.NewLocal(platform.LocalConfig{Capabilities: allCapabilities(), Permission: platform.PermissionGranted})

		padded := base64.URLEncoding.EncodeToString(mustDecode(t, key))
		_, err := local.Subscribe(context.Background(), padded)
		require.NoError(t, err)
	})
}

func mustDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.RawURLEncoding.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestLocal_ShowNotification(t *testing.T) {
	var out bytes.Buffer
	local := platform.NewLocal(
		platform.LocalConfig{Capabilities: allCapabilities(), Permission: platform.PermissionGranted},
		platform.WithOutput(&out),
	)

	n := notification.NativeFrom(notification.Notification{ID: "n9", Title: "X", Message: "hello"})

	require.NoError(t, local.ShowNotification(context.Background(), n))
	require.NoError(t, local.ShowNotification(context.Background(), n))

	assert.Equal(t, "[n9] X: hello\n", out.String())
	assert.Equal(t, 1, local.Shown())
}

func TestLocal_ShowNotification_ForgetsOldestTag(t *testing.T) {
	var out bytes.Buffer
	local := platform.NewLocal(
		platform.LocalConfig{Capabilities: allCapabilities(), Permission: platform.PermissionGranted, MaxShown: 2},
		platform.WithOutput(&out),
	)

	show := func(tag string) {
		require.NoError(t, local.ShowNotification(context.Background(), notification.NativeNotification{Tag: tag, Title: "T", Body: tag}))
	}

	show("a")
	show("b")
	show("c")
	assert.Equal(t, 2, local.Shown())

	// c is still remembered, a was evicted.
	show("c")
	show("a")

	assert.Equal(t, "[a] T: a\n[b] T: b\n[c] T: c\n[a] T: a\n", out.String())
	assert.Equal(t, 2, local.Shown())
}

func TestLocal_ShowNotification_Refused(t *testing.T) {
	n := notification.NativeNotification{Tag: "n1"}

	unsupported := platform.NewLocal(platform.LocalConfig{Permission: platform.PermissionGranted})
	require.ErrorIs(t, unsupported.ShowNotification(context.Background(), n), errs.ErrPlatformUnsupported)

	notPermitted := platform.NewLocal(platform.LocalConfig{Capabilities: allCapabilities()})
	require.ErrorIs(t, notPermitted.ShowNotification(context.Background(), n), errs.ErrPermissionDenied)
}

func TestTerminalPrompter(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		prompter := platform.NewTerminalPrompter(strings.NewReader(tt.input), &out)

		ok, err := prompter.Prompt(context.Background(), "Allow?")

		require.NoError(t, err)
		assert.Equal(t, tt.expected, ok, "input %q", tt.input)
		assert.Equal(t, "Allow? [y/N]: ", out.String())
	}
}

func TestTerminalPrompter_AbandonedPromptKeepsSingleReader(t *testing.T) {
	in, answers := io.Pipe()
	t.Cleanup(func() { _ = answers.Close() })
	prompter := platform.NewTerminalPrompter(in, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := prompter.Prompt(ctx, "Allow?")
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)

	go func() { _, _ = answers.Write([]byte("y\n")) }()

	ok, err = prompter.Prompt(context.Background(), "Allow?")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTerminalPrompter_ClosedInput(t *testing.T) {
	prompter := platform.NewTerminalPrompter(strings.NewReader(""), io.Discard)

	ok, err := prompter.Prompt(context.Background(), "Allow?")
	require.ErrorIs(t, err, io.EOF)
	assert.False(t, ok)

	ok, err = prompter.Prompt(context.Background(), "Allow?")
	require.ErrorIs(t, err, io.EOF)
	assert.False(t, ok)
}
