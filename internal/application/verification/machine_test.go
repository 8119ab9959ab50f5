package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wave-api/internal/application/country"
	"github.com/wave-api/internal/domain"
	redisinfra "github.com/wave-api/internal/infrastructure/redis"
)

type fakeProvider struct {
	mu         sync.Mutex
	dispatched []string
	exchanged  [][2]string
	dispatch   func(ctx context.Context, phone string) (string, error)
	exchange   func(ctx context.Context, handle, code string) (*domain.Credential, error)
}

func (p *fakeProvider) DispatchOTP(ctx context.Context, phone string) (string, error) {
	p.mu.Lock()
	p.dispatched = append(p.dispatched, phone)
	fn := p.dispatch
	p.mu.Unlock()
	if fn == nil {
		return "H1", nil
	}
	return fn(ctx, phone)
}

func (p *fakeProvider) ExchangeCode(ctx context.Context, handle, code string) (*domain.Credential, error) {
	p.mu.Lock()
	p.exchanged = append(p.exchanged, [2]string{handle, code})
	fn := p.exchange
	p.mu.Unlock()
	if fn == nil {
		return nil, errors.New("no exchange configured")
	}
	return fn(ctx, handle, code)
}

func (p *fakeProvider) dispatchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dispatched)
}

func (p *fakeProvider) exchangeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.exchanged)
}

func acceptCode(phone string) func(context.Context, string, string) (*domain.Credential, error) {
	return func(_ context.Context, handle, code string) (*domain.Credential, error) {
		return &domain.Credential{
			Token:   "tok-" + handle,
			Session: &domain.Session{UserID: "u1", PhoneNumber: phone},
		}, nil
	}
}

func testCatalog(t *testing.T) *country.Catalog {
	t.Helper()
	c, err := country.Load(strings.NewReader(`[
		{"name":"United States","code":"+1","iso":"US","emoji":"🇺🇸"},
		{"name":"India","code":"+91","iso":"IN","emoji":"🇮🇳"}
	]`))
	require.NoError(t, err)
	return c
}

func newTestMachine(t *testing.T, p *fakeProvider) *Machine {
	return NewMachine(MachineDeps{
		DeviceID:  "dev1",
		Provider:  p,
		Countries: testCatalog(t),
		Hints:     redisinfra.NewMemoryHintStore(time.Minute),
	})
}

func digits(code string) []string {
	return strings.Split(code, "")
}

func TestRequestCode_RejectsMalformedNumbersLocally(t *testing.T) {
	for _, number := range []string{"", "   ", "15551234567", "5551234", "+", "+1", "+123", " +12 "} {
		t.Run(fmt.Sprintf("%q", number), func(t *testing.T) {
			p := &fakeProvider{}
			m := newTestMachine(t, p)

			err := m.RequestCode(context.Background(), number)

			require.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, 0, p.dispatchCount())
			snap := m.Snapshot()
			assert.Equal(t, StateIdle, snap.State)
			assert.Equal(t, msgBadFormat, snap.Error)
		})
	}
}

func TestSubmitCode_RejectsLocally(t *testing.T) {
	t.Run("no handle", func(t *testing.T) {
		p := &fakeProvider{}
		m := newTestMachine(t, p)

		err := m.SubmitCode(context.Background(), digits("123456"))

		require.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, 0, p.exchangeCount())
		assert.Equal(t, msgMissingCode, m.Snapshot().Error)
	})

	t.Run("empty code", func(t *testing.T) {
		p := &fakeProvider{}
		m := newTestMachine(t, p)
		require.NoError(t, m.RequestCode(context.Background(), "+15551234567"))

		for _, code := range [][]string{nil, {}, {"", "", "", "", "", ""}} {
			err := m.SubmitCode(context.Background(), code)
			require.ErrorIs(t, err, domain.ErrValidation)
		}
		assert.Equal(t, 0, p.exchangeCount())
		assert.Equal(t, StateAwaitingCode, m.Snapshot().State)
	})

	t.Run("bad digits", func(t *testing.T) {
		p := &fakeProvider{exchange: acceptCode("+15551234567")}
		m := newTestMachine(t, p)
		require.NoError(t, m.RequestCode(context.Background(), "+15551234567"))

		for _, code := range [][]string{
			{"1", "2", "x", "4", "5", "6"},
			{"1", "2", "3", "4", "5", "6", "7"},
		} {
			err := m.SubmitCode(context.Background(), code)
			require.ErrorIs(t, err, domain.ErrValidation)
			assert.Equal(t, msgBadDigit, m.Snapshot().Error)
		}
		assert.Equal(t, 0, p.exchangeCount())
		assert.Equal(t, StateAwaitingCode, m.Snapshot().State)
		assert.ErrorIs(t, m.SetCode([]string{"1", "2", "3", "4", "5", "6", "7"}), domain.ErrValidation)
	})
}

func TestRegistry_DetectsRegionFromCatalog(t *testing.T) {
	r := NewRegistry(&fakeProvider{}, testCatalog(t), nil, time.Minute)

	snap := r.Get("dev1", "IN").Snapshot()

	require.NotNil(t, snap.Country)
	assert.Equal(t, domain.CountryCode{Name: "India", DialCode: "+91", ISO: "IN", Emoji: "🇮🇳"}, *snap.Country)
}

func TestDetectRegion_KeepsUserSelection(t *testing.T) {
	m := newTestMachine(t, &fakeProvider{})
	require.NoError(t, m.SelectCountry("us"))

	assert.False(t, m.DetectRegion("IN"))
	assert.Equal(t, "US", m.Snapshot().Country.ISO)
	assert.ErrorIs(t, m.SelectCountry("XX"), domain.ErrValidation)
}

func TestEndToEnd_Authenticates(t *testing.T) {
	p := &fakeProvider{exchange: acceptCode("+15551234567")}
	m := newTestMachine(t, p)
	updates, cancel := m.Subscribe()
	defer cancel()
	assert.Equal(t, StateIdle, (<-updates).State)

	require.NoError(t, m.RequestCode(context.Background(), "+15551234567"))
	snap := m.Snapshot()
	assert.Equal(t, StateAwaitingCode, snap.State)
	require.NotNil(t, snap.Pending)
	assert.Equal(t, "H1", snap.Pending.Handle)
	assert.Equal(t, "+15551234567", snap.Pending.PhoneNumber)

	require.NoError(t, m.SubmitCode(context.Background(), digits("123456")))

	assert.Equal(t, [][2]string{{"H1", "123456"}}, p.exchanged)
	snap = m.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	require.NotNil(t, snap.Session)
	assert.Equal(t, "+15551234567", snap.Session.PhoneNumber)
	assert.Nil(t, snap.Pending)
	assert.Equal(t, "tok-H1", m.Credential().Token)

	// the subscriber keeps only the newest snapshot
	last := <-updates
	assert.Equal(t, StateAuthenticated, last.State)
	assert.Equal(t, snap.Version, last.Version)
}

func TestRequestCode_NewestRequestWins(t *testing.T) {
	release := []chan struct{}{make(chan struct{}), make(chan struct{})}
	var calls int32
	p := &fakeProvider{
		dispatch: func(_ context.Context, _ string) (string, error) {
			i := atomic.AddInt32(&calls, 1) - 1
			<-release[i]
			return fmt.Sprintf("H%d", i+1), nil
		},
		exchange: acceptCode("+15551234567"),
	}
	m := newTestMachine(t, p)
	ctx := context.Background()

	first := make(chan error, 1)
	second := make(chan error, 1)
	go func() { first <- m.RequestCode(ctx, "+15551234567") }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	go func() { second <- m.RequestCode(ctx, "+15551234567") }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, time.Millisecond)

	close(release[1])
	require.NoError(t, <-second)
	close(release[0])
	assert.ErrorIs(t, <-first, ErrSuperseded)

	assert.Equal(t, "H2", m.Snapshot().Pending.Handle)
	require.NoError(t, m.SubmitCode(ctx, digits("123456")))
	assert.Equal(t, "H2", p.exchanged[0][0])
}

func TestResendCode_KeepsPartialCodeUntilNewHandle(t *testing.T) {
	release := make(chan struct{})
	var calls int32
	p := &fakeProvider{
		dispatch: func(_ context.Context, _ string) (string, error) {
			if atomic.AddInt32(&calls, 1) == 2 {
				<-release
				return "H2", nil
			}
			return "H1", nil
		},
	}
	m := newTestMachine(t, p)
	ctx := context.Background()
	require.NoError(t, m.RequestCode(ctx, "+15551234567"))
	require.NoError(t, m.SetCode([]string{"1", "2", "3"}))

	done := make(chan error, 1)
	go func() { done <- m.ResendCode(ctx) }()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, StateAwaitingCode, snap.State)
	assert.Equal(t, "H1", snap.Pending.Handle)
	assert.Equal(t, [domain.CodeLength]string{"1", "2", "3"}, snap.Pending.Code)

	close(release)
	require.NoError(t, <-done)
	snap = m.Snapshot()
	assert.Equal(t, "H2", snap.Pending.Handle)
	assert.Equal(t, [domain.CodeLength]string{}, snap.Pending.Code)
	assert.Equal(t, []string{"+15551234567", "+15551234567"}, p.dispatched)
}

func TestResendCode_NothingRequested(t *testing.T) {
	p := &fakeProvider{}
	m := newTestMachine(t, p)
	assert.ErrorIs(t, m.ResendCode(context.Background()), domain.ErrValidation)
	assert.Equal(t, 0, p.dispatchCount())
}

func TestSubmitCode_FailureIsRetryable(t *testing.T) {
	attempt := 0
	p := &fakeProvider{
		exchange: func(ctx context.Context, handle, code string) (*domain.Credential, error) {
			attempt++
			if attempt == 1 {
				return nil, domain.NewProviderError("Invalid verification code.")
			}
			return acceptCode("+15551234567")(ctx, handle, code)
		},
	}
	m := newTestMachine(t, p)
	ctx := context.Background()
	require.NoError(t, m.RequestCode(ctx, "+15551234567"))

	err := m.SubmitCode(ctx, digits("000000"))
	require.ErrorIs(t, err, domain.ErrProvider)
	snap := m.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "Invalid verification code.", snap.Error)
	assert.Equal(t, "H1", snap.Pending.Handle)

	require.NoError(t, m.SubmitCode(ctx, digits("123456")))
	assert.Equal(t, StateAuthenticated, m.Snapshot().State)
}

func TestRequestCode_ProviderErrorSurfacedVerbatim(t *testing.T) {
	fail := true
	p := &fakeProvider{
		dispatch: func(context.Context, string) (string, error) {
			if fail {
				return "", domain.NewRateLimitError("Too many verification requests. Try again later.")
			}
			return "H1", nil
		},
	}
	m := newTestMachine(t, p)
	ctx := context.Background()

	err := m.RequestCode(ctx, "+15551234567")
	require.ErrorIs(t, err, domain.ErrRateLimited)
	snap := m.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "Too many verification requests. Try again later.", snap.Error)

	fail = false
	require.NoError(t, m.RequestCode(ctx, "+15551234567"))
	assert.Equal(t, StateAwaitingCode, m.Snapshot().State)
	assert.Empty(t, m.Snapshot().Error)
}

func TestRequestCode_InfrastructureErrorHidden(t *testing.T) {
	p := &fakeProvider{dispatch: func(context.Context, string) (string, error) {
		return "", errors.New("dial tcp: connection refused")
	}}
	m := newTestMachine(t, p)

	require.Error(t, m.RequestCode(context.Background(), "+15551234567"))
	assert.Equal(t, msgInternal, m.Snapshot().Error)
}

func TestRequestCodeForInput(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		p := &fakeProvider{}
		m := newTestMachine(t, p)
		require.ErrorIs(t, m.RequestCodeForInput(context.Background()), domain.ErrValidation)
		assert.Equal(t, msgEmptyNumber, m.Snapshot().Error)
		assert.Equal(t, 0, p.dispatchCount())
	})

	t.Run("no country", func(t *testing.T) {
		p := &fakeProvider{}
		m := newTestMachine(t, p)
		m.SetPhoneInput("5551234567")
		require.ErrorIs(t, m.RequestCodeForInput(context.Background()), domain.ErrValidation)
		assert.Equal(t, msgNoCountry, m.Snapshot().Error)
		assert.Equal(t, 0, p.dispatchCount())
	})

	t.Run("typed dial code selects country", func(t *testing.T) {
		p := &fakeProvider{}
		m := newTestMachine(t, p)
		m.SetPhoneInput("+919876543210")

		snap := m.Snapshot()
		assert.Equal(t, "IN", snap.Country.ISO)
		assert.Equal(t, "9876543210", snap.PhoneInput)

		require.NoError(t, m.RequestCodeForInput(context.Background()))
		assert.Equal(t, []string{"+919876543210"}, p.dispatched)
	})
}

func TestCancel_DiscardsInFlightRequest(t *testing.T) {
	release := make(chan struct{})
	p := &fakeProvider{dispatch: func(context.Context, string) (string, error) {
		<-release
		return "H1", nil
	}}
	m := newTestMachine(t, p)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- m.RequestCode(ctx, "+15551234567") }()
	require.Eventually(t, func() bool { return p.dispatchCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateCodeRequested, m.Snapshot().State)

	m.Cancel(ctx)
	close(release)

	assert.ErrorIs(t, <-done, ErrSuperseded)
	snap := m.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Pending)
}

func TestResume_AdoptsPersistedHandle(t *testing.T) {
	hints := redisinfra.NewMemoryHintStore(time.Minute)
	p := &fakeProvider{}
	ctx := context.Background()

	first := NewMachine(MachineDeps{DeviceID: "dev1", Provider: p, Hints: hints})
	require.NoError(t, first.RequestCode(ctx, "+15551234567"))

	second := NewMachine(MachineDeps{DeviceID: "dev1", Provider: p, Hints: hints})
	ok, err := second.Resume(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	snap := second.Snapshot()
	assert.Equal(t, StateAwaitingCode, snap.State)
	assert.Equal(t, "H1", snap.Pending.Handle)

	second.Cancel(ctx)
	third := NewMachine(MachineDeps{DeviceID: "dev1", Provider: p, Hints: hints})
	ok, err = third.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset_SignsOut(t *testing.T) {
	p := &fakeProvider{exchange: acceptCode("+15551234567")}
	m := newTestMachine(t, p)
	ctx := context.Background()
	require.NoError(t, m.RequestCode(ctx, "+15551234567"))
	require.NoError(t, m.SubmitCode(ctx, digits("123456")))
	assert.ErrorIs(t, m.RequestCode(ctx, "+15551234567"), domain.ErrValidation)

	m.Reset(ctx)

	snap := m.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Session)
	assert.Nil(t, m.Credential())
	require.NoError(t, m.RequestCode(ctx, "+15551234567"))
}

func TestSetDigit(t *testing.T) {
	m := newTestMachine(t, &fakeProvider{})

	require.NoError(t, m.SetDigit(0, "7"))
	require.NoError(t, m.SetDigit(1, "45"))
	assert.ErrorIs(t, m.SetDigit(6, "1"), domain.ErrValidation)
	assert.ErrorIs(t, m.SetDigit(2, "a"), domain.ErrValidation)
	require.NoError(t, m.SetDigit(0, ""))

	assert.Equal(t, "5", m.code[1])
	assert.Equal(t, "", m.code[0])
}

func TestRegistry_SweepEvictsIdleMachines(t *testing.T) {
	r := NewRegistry(&fakeProvider{}, nil, nil, time.Minute)
	idle := r.Get("idle", "")
	busy := r.Get("busy", "")
	_, cancel := busy.Subscribe()
	defer cancel()
	updates, _ := idle.Subscribe()

	past := time.Now().Add(-2 * time.Minute)
	idle.mu.Lock()
	idle.lastActive = past
	idle.mu.Unlock()
	busy.mu.Lock()
	busy.lastActive = past
	busy.mu.Unlock()

	// an open subscription keeps a machine alive
	r.sweep(time.Now())
	assert.Equal(t, 2, r.Len())

	idle.closeSubscribers()
	r.sweep(time.Now())
	assert.Equal(t, 1, r.Len())
	assert.Same(t, busy, r.Get("busy", ""))

	<-updates
	_, open := <-updates
	assert.False(t, open)
}
