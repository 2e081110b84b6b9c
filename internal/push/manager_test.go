package push_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/inboxsync/internal/domain/errs"
	"github.com/lllypuk/inboxsync/internal/domain/notification"
	"github.com/lllypuk/inboxsync/internal/infrastructure/platform"
	"github.com/lllypuk/inboxsync/internal/push"
)

type fakeGateway struct {
	key           string
	keyErr        error
	registerErr   error
	unregisterErr error

	registered   []notification.PushSubscription
	unregistered int
}

func (g *fakeGateway) VapidPublicKey(context.Context) (string, error) {
	return g.key, g.keyErr
}

func (g *fakeGateway) RegisterPushSubscription(_ context.Context, sub notification.PushSubscription) error {
	if g.registerErr != nil {
		return g.registerErr
	}
	g.registered = append(g.registered, sub)
	return nil
}

func (g *fakeGateway) UnregisterPushSubscription(context.Context) error {
	g.unregistered++
	return g.unregisterErr
}

type fakePlatform struct {
	caps        platform.Capabilities
	permission  platform.Permission
	answer      platform.Permission
	prompts     int
	sub         *platform.Subscription
	created     int
	cancelled   int
	cancelErr   error
	subscribeFn func(key string) (*platform.Subscription, error)
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		caps:       platform.Capabilities{BackgroundAgent: true, Push: true, LocalNotifications: true},
		permission: platform.PermissionDefault,
		answer:     platform.PermissionGranted,
	}
}

func (p *fakePlatform) Capabilities() platform.Capabilities { return p.caps }

func (p *fakePlatform) Permission() platform.Permission { return p.permission }

func (p *fakePlatform) RequestPermission(context.Context) (platform.Permission, error) {
	p.prompts++
	p.permission = p.answer
	return p.answer, nil
}

func (p *fakePlatform) Subscription(context.Context) (*platform.Subscription, error) {
	return p.sub, nil
}

func (p *fakePlatform) Subscribe(_ context.Context, key string) (*platform.Subscription, error) {
	if p.subscribeFn != nil {
		return p.subscribeFn(key)
	}
	p.created++
	p.sub = &platform.Subscription{
		PushSubscription: notification.PushSubscription{
			Endpoint: "https://push.example.com/" + key,
			Keys:     notification.PushKeys{P256dh: "p256dh", Auth: "auth"},
		},
		ApplicationServerKey: key,
	}
	return p.sub, nil
}

func (p *fakePlatform) Unsubscribe(context.Context) error {
	p.cancelled++
	if p.cancelErr != nil {
		return p.cancelErr
	}
	p.sub = nil
	return nil
}

func TestManager_Subscribe(t *testing.T) {
	gw := &fakeGateway{key: "key-1"}
	pf := newFakePlatform()
	m := push.NewManager(gw, pf)

	ok := m.Subscribe(context.Background())

	require.True(t, ok)
	assert.Equal(t, 1, pf.prompts)
	assert.Equal(t, 1, pf.created)
	require.Len(t, gw.registered, 1)
	assert.Equal(t, "https://push.example.com/key-1", gw.registered[0].Endpoint)

	state := m.State()
	assert.True(t, state.Supported)
	assert.Equal(t, platform.PermissionGranted, state.Permission)
	require.NotNil(t, state.Subscription)
	assert.Equal(t, "https://push.example.com/key-1", state.Subscription.Endpoint)
	assert.NoError(t, state.Err)
}

func TestManager_Subscribe_ReusesSubscriptionForSameKey(t *testing.T) {
	gw := &fakeGateway{key: "key-1"}
	pf := newFakePlatform()
	pf.permission = platform.PermissionGranted
	m := push.NewManager(gw, pf)

	require.True(t, m.Subscribe(context.Background()))
	require.True(t, m.Subscribe(context.Background()))

	assert.Equal(t, 0, pf.prompts)
	assert.Equal(t, 1, pf.created)
	assert.Equal(t, 0, pf.cancelled)
	assert.Len(t, gw.registered, 2)
}

func TestManager_Subscribe_ReplacesStaleSubscription(t *testing.T) {
	gw := &fakeGateway{key: "key-2"}
	pf := newFakePlatform()
	pf.permission = platform.PermissionGranted
	pf.sub = &platform.Subscription{
		PushSubscription:     notification.PushSubscription{Endpoint: "https://push.example.com/key-1"},
		ApplicationServerKey: "key-1",
	}
	m := push.NewManager(gw, pf)

	require.True(t, m.Subscribe(context.Background()))

	assert.Equal(t, 1, pf.cancelled)
	assert.Equal(t, 1, pf.created)
	require.Len(t, gw.registered, 1)
	assert.Equal(t, "https://push.example.com/key-2", gw.registered[0].Endpoint)
}

func TestManager_Subscribe_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		caps platform.Capabilities
	}{
		{"no background agent", platform.Capabilities{Push: true}},
		{"no push manager", platform.Capabilities{BackgroundAgent: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{key: "key-1"}
			pf := newFakePlatform()
			pf.caps = tt.caps
			m := push.NewManager(gw, pf)

			assert.False(t, m.Subscribe(context.Background()))
			assert.False(t, m.RequestPermission(context.Background()))

			assert.Equal(t, 0, pf.prompts, "user must never be prompted")
			assert.Empty(t, gw.registered)

			state := m.State()
			assert.False(t, state.Supported)
			assert.ErrorIs(t, state.Err, errs.ErrPlatformUnsupported)
		})
	}
}

func TestManager_UnsupportedStaysDisabled(t *testing.T) {
	pf := newFakePlatform()
	pf.caps = platform.Capabilities{}
	m := push.NewManager(&fakeGateway{key: "k"}, pf)

	assert.False(t, m.CheckSupport())

	pf.caps = platform.Capabilities{BackgroundAgent: true, Push: true}
	assert.False(t, m.CheckSupport())
	assert.False(t, m.Subscribe(context.Background()))
}

func TestManager_Subscribe_PermissionDenied(t *testing.T) {
	gw := &fakeGateway{key: "key-1"}
	pf := newFakePlatform()
	pf.answer = platform.PermissionDenied
	m := push.NewManager(gw, pf)

	assert.False(t, m.Subscribe(context.Background()))

	state := m.State()
	assert.Equal(t, platform.PermissionDenied, state.Permission)
	assert.ErrorIs(t, state.Err, errs.ErrPermissionDenied)
	assert.Nil(t, state.Subscription)
	assert.Equal(t, 0, pf.created)
	assert.Empty(t, gw.registered)
}

func TestManager_Subscribe_GatewayFailures(t *testing.T) {
	t.Run("public key fetch fails", func(t *testing.T) {
		gw := &fakeGateway{keyErr: errs.ErrTransport}
		pf := newFakePlatform()
		m := push.NewManager(gw, pf)

		assert.False(t, m.Subscribe(context.Background()))
		assert.ErrorIs(t, m.State().Err, errs.ErrTransport)
		assert.Equal(t, 0, pf.created)
	})

	t.Run("registration fails", func(t *testing.T) {
		gw := &fakeGateway{key: "key-1", registerErr: errs.ErrAuth}
		pf := newFakePlatform()
		m := push.NewManager(gw, pf)

		assert.False(t, m.Subscribe(context.Background()))
		assert.ErrorIs(t, m.State().Err, errs.ErrAuth)

		gw.registerErr = nil
		assert.True(t, m.Subscribe(context.Background()))
		assert.Equal(t, 1, pf.created, "platform subscription is reused on retry")
		assert.NoError(t, m.State().Err)
	})

	t.Run("platform subscribe fails", func(t *testing.T) {
		gw := &fakeGateway{key: "key-1"}
		pf := newFakePlatform()
		pf.subscribeFn = func(string) (*platform.Subscription, error) {
			return nil, errors.New("push service unavailable")
		}
		m := push.NewManager(gw, pf)

		assert.False(t, m.Subscribe(context.Background()))
		assert.Empty(t, gw.registered)
		assert.Error(t, m.State().Err)
	})
}

func TestManager_Unsubscribe(t *testing.T) {
	t.Run("no subscription is a no-op", func(t *testing.T) {
		gw := &fakeGateway{}
		pf := newFakePlatform()
		m := push.NewManager(gw, pf)

		assert.True(t, m.Unsubscribe(context.Background()))
		assert.Equal(t, 0, pf.cancelled)
		assert.Equal(t, 0, gw.unregistered)
	})

	t.Run("removes platform and server records", func(t *testing.T) {
		gw := &fakeGateway{key: "key-1"}
		pf := newFakePlatform()
		m := push.NewManager(gw, pf)
		require.True(t, m.Subscribe(context.Background()))

		assert.True(t, m.Unsubscribe(context.Background()))
		assert.Equal(t, 1, pf.cancelled)
		assert.Equal(t, 1, gw.unregistered)
		assert.Nil(t, m.State().Subscription)
	})

	t.Run("server failure still cancels platform subscription", func(t *testing.T) {
		gw := &fakeGateway{key: "key-1", unregisterErr: errs.ErrTransport}
		pf := newFakePlatform()
		m := push.NewManager(gw, pf)
		require.True(t, m.Subscribe(context.Background()))

		assert.False(t, m.Unsubscribe(context.Background()))
		assert.Equal(t, 1, pf.cancelled)
		assert.Nil(t, pf.sub)
		assert.Nil(t, m.State().Subscription)
		assert.ErrorIs(t, m.State().Err, errs.ErrTransport)
	})

	t.Run("platform failure still unregisters on server", func(t *testing.T) {
		gw := &fakeGateway{key: "key-1"}
		pf := newFakePlatform()
		m := push.NewManager(gw, pf)
		require.True(t, m.Subscribe(context.Background()))
		pf.cancelErr = errors.New("cancel failed")

		assert.False(t, m.Unsubscribe(context.Background()))
		assert.Equal(t, 1, gw.unregistered)
		assert.NotNil(t, m.State().Subscription)
	})
}

func TestManager_Restore(t *testing.T) {
	pf := newFakePlatform()
	pf.permission = platform.PermissionGranted
	pf.sub = &platform.Subscription{
		PushSubscription:     notification.PushSubscription{Endpoint: "https://push.example.com/old"},
		ApplicationServerKey: "key-1",
	}
	m := push.NewManager(&fakeGateway{}, pf)

	m.Restore(context.Background())

	state := m.State()
	assert.Equal(t, 0, pf.prompts)
	assert.Equal(t, platform.PermissionGranted, state.Permission)
	require.NotNil(t, state.Subscription)
	assert.Equal(t, "https://push.example.com/old", state.Subscription.Endpoint)
}
