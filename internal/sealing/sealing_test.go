package sealing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testAddr = "0x52908400098527886E0F7030069857D2E4169EE7"

func newTestAEAD(t *testing.T, cfg AEADConfig) *AEADProvider {
	t.Helper()
	if cfg.Secret == nil {
		cfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	}
	p, err := NewAEADProvider(cfg)
	require.NoError(t, err)
	return p
}

func TestAEADRoundTrip(t *testing.T) {
	p := newTestAEAD(t, AEADConfig{})
	ctx := context.Background()
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Uint32().Draw(t, "v")
		h, err := p.Seal(ctx, v)
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		got, err := p.Unseal(ctx, h)
		if err != nil {
			t.Fatalf("unseal: %v", err)
		}
		if got != v {
			t.Fatalf("round trip: got %d want %d", got, v)
		}
	})
}

func TestAEADHandlesAreOpaqueAndDistinct(t *testing.T) {
	p := newTestAEAD(t, AEADConfig{})
	ctx := context.Background()
	a, err := p.Seal(ctx, 4)
	require.NoError(t, err)
	b, err := p.Seal(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, SchemeAEAD, a.Scheme())
	assert.False(t, a.Equal(b), "fresh nonces must give distinct handles")
	assert.True(t, a.Equal(a))
}

func TestAEADRejectsForeignHandles(t *testing.T) {
	ctx := context.Background()
	p := newTestAEAD(t, AEADConfig{})
	other := newTestAEAD(t, AEADConfig{Secret: []byte("another secret of sufficient length")})

	h, err := other.Seal(ctx, 8)
	require.NoError(t, err)
	_, err = p.Unseal(ctx, h)
	assert.ErrorIs(t, err, ErrUnsealFailure)

	mh, err := NewMockProvider().Seal(ctx, 8)
	require.NoError(t, err)
	_, err = p.Unseal(ctx, mh)
	assert.ErrorIs(t, err, ErrUnsealFailure)

	_, err = p.Unseal(ctx, Handle{})
	assert.ErrorIs(t, err, ErrUnsealFailure)
}

func TestAEADShortSecret(t *testing.T) {
	_, err := NewAEADProvider(AEADConfig{Secret: []byte("short")})
	assert.Error(t, err)
}

func TestAEADAuthorize(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := newTestAEAD(t, AEADConfig{
		Environments: []string{"testnet"},
		MaxPermit:    time.Hour,
		Now:          func() time.Time { return now },
	})
	ctx := context.Background()

	t.Run("issues signed permit", func(t *testing.T) {
		permit, err := p.Authorize(ctx, testAddr, AuthOptions{Environment: "testnet", Expiry: 30 * time.Minute})
		require.NoError(t, err)
		assert.Equal(t, testAddr, permit.Identity)
		assert.Equal(t, now.Add(30*time.Minute), permit.ExpiresAt)
		assert.NotEmpty(t, permit.Token)

		var claims permitClaims
		_, err = jwt.ParseWithClaims(permit.Token, &claims, func(*jwt.Token) (interface{}, error) {
			return p.permitKey, nil
		}, jwt.WithTimeFunc(func() time.Time { return now }))
		require.NoError(t, err)
		assert.Equal(t, "testnet", claims.Environment)
		assert.Equal(t, testAddr, claims.Subject)

		got, err := p.VerifyPermit(permit.Token)
		require.NoError(t, err)
		assert.Equal(t, permit.ExpiresAt, got.ExpiresAt)
	})

	t.Run("defaults expiry to max", func(t *testing.T) {
		permit, err := p.Authorize(ctx, testAddr, AuthOptions{Environment: "testnet"})
		require.NoError(t, err)
		assert.Equal(t, now.Add(time.Hour), permit.ExpiresAt)
	})

	rejections := map[string]struct {
		identity string
		opts     AuthOptions
	}{
		"bad identity":     {"alice", AuthOptions{Environment: "testnet"}},
		"unknown env":      {testAddr, AuthOptions{Environment: "mainnet"}},
		"expiry too large": {testAddr, AuthOptions{Environment: "testnet", Expiry: 2 * time.Hour}},
	}
	for name, tc := range rejections {
		t.Run(name, func(t *testing.T) {
			_, err := p.Authorize(ctx, tc.identity, tc.opts)
			assert.ErrorIs(t, err, ErrAuthorizationFailed)
		})
	}
}

func TestMockProviderIsTransparent(t *testing.T) {
	ctx := context.Background()
	m := NewMockProvider()
	for _, v := range []uint32{0, 2, 4, 2048, 1 << 31} {
		h, err := m.Seal(ctx, v)
		require.NoError(t, err)
		got, err := m.Unseal(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	a, _ := m.Seal(ctx, 2)
	b, _ := m.Seal(ctx, 2)
	assert.True(t, a.Equal(b))

	_, err := m.Unseal(ctx, Handle{scheme: SchemeMock, payload: []byte{0xff}})
	assert.ErrorIs(t, err, ErrUnsealFailure)

	_, err = m.Authorize(ctx, " ", AuthOptions{})
	assert.ErrorIs(t, err, ErrAuthorizationFailed)
}

type slowProvider struct {
	MockProvider
	delay time.Duration
}

func (s *slowProvider) Unseal(ctx context.Context, h Handle) (uint32, error) {
	time.Sleep(s.delay) // ignores ctx on purpose
	return s.MockProvider.Unseal(context.Background(), h)
}

func TestWithDeadlineBoundsIgnoringProviders(t *testing.T) {
	p := WithDeadline(&slowProvider{delay: 200 * time.Millisecond}, 20*time.Millisecond)
	h, err := p.Seal(context.Background(), 2)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Unseal(context.Background(), h)
	assert.ErrorIs(t, err, ErrOperationTimeout)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestAwaitParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Await(ctx, time.Second, "op", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrOperationTimeout))
}

func TestLoaderLifecycle(t *testing.T) {
	l := NewLoader()
	assert.False(t, l.Attached())
	assert.Equal(t, AvailabilityPending, l.Availability())
	assert.Nil(t, l.Sealer())

	l.Start(context.Background(), 0, time.Second, func(context.Context) (Provider, error) {
		return NewMockProvider(), nil
	})
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loader did not finish")
	}
	assert.True(t, l.Attached())
	assert.Equal(t, AvailabilityLoaded, l.Availability())
	assert.NotNil(t, l.Sealer())
	assert.NotNil(t, l.Authorizer())
	assert.NoError(t, l.Err())
}

func TestLoaderFailure(t *testing.T) {
	l := NewLoader()
	l.Start(context.Background(), 0, 0, func(context.Context) (Provider, error) {
		return nil, errors.New("boom")
	})
	<-l.Done()
	assert.False(t, l.Attached())
	assert.Equal(t, AvailabilityFailed, l.Availability())
	assert.ErrorIs(t, l.Err(), ErrProviderUnavailable)
	assert.Nil(t, l.Authorizer())
}

func TestBootOff(t *testing.T) {
	l := Boot(context.Background(), BootOptions{Mode: "off"})
	assert.False(t, l.Attached())
	assert.Equal(t, AvailabilityPending, l.Availability())
}

func TestLoaderVerifyPermit(t *testing.T) {
	now := time.Now()
	p := newTestAEAD(t, AEADConfig{})
	l := Ready(p)
	permit, err := p.Authorize(context.Background(), testAddr, AuthOptions{Expiry: time.Hour})
	require.NoError(t, err)

	assert.NoError(t, l.VerifyPermit(permit, now))

	forged := permit
	forged.Identity = "0x0000000000000000000000000000000000000001"
	assert.ErrorIs(t, l.VerifyPermit(forged, now), ErrAuthorizationRequired)
	assert.ErrorIs(t, l.VerifyPermit(permit, permit.ExpiresAt), ErrAuthorizationRequired)
}

func TestDispatcherRoutesBySchemeAndMode(t *testing.T) {
	ctx := context.Background()
	real := newTestAEAD(t, AEADConfig{})
	active := false
	d := NewDispatcher(func() Sealer { return real }, func() bool { return active })

	mh, err := d.Seal(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, SchemeMock, mh.Scheme())
	assert.False(t, d.Sealed())

	active = true
	ah, err := d.Seal(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, SchemeAEAD, ah.Scheme())
	assert.True(t, d.Sealed())

	active = false
	v, err := d.Unseal(ctx, ah)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), v)
	v, err = d.Unseal(ctx, mh)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v)

	gone := NewDispatcher(func() Sealer { return nil }, func() bool { return true })
	_, err = gone.Unseal(ctx, ah)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	h, err := gone.Seal(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, SchemeMock, h.Scheme())
}

func TestIsAddress(t *testing.T) {
	assert.True(t, IsAddress(testAddr))
	assert.False(t, IsAddress("0x123"))
	assert.False(t, IsAddress("1x52908400098527886E0F7030069857D2E4169EE7"))
	assert.False(t, IsAddress("0x52908400098527886E0F7030069857D2E4169EEZ"))
}
