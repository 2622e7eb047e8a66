package proctor

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCounterStore is an in-memory CounterStore for tests.
type memCounterStore struct {
	counts map[string]int
}

func newMemCounterStore() *memCounterStore {
	return &memCounterStore{counts: make(map[string]int)}
}

func (s *memCounterStore) Get(_ context.Context, key string) (int, error) {
	return s.counts[key], nil
}

func (s *memCounterStore) Set(_ context.Context, key string, count int) error {
	s.counts[key] = count
	return nil
}

func (s *memCounterStore) Delete(_ context.Context, key string) error {
	delete(s.counts, key)
	return nil
}

type capture struct {
	warnings    []int // exit counts at each warning
	secures     int
	autoSubmits []int // violation counts at each auto-submit
}

func (c *capture) callbacks() Callbacks {
	return Callbacks{
		OnWarning:    func(exitCount, _, _ int) { c.warnings = append(c.warnings, exitCount) },
		OnSecure:     func() { c.secures++ },
		OnAutoSubmit: func(violations int) { c.autoSubmits = append(c.autoSubmits, violations) },
	}
}

func alwaysActive() bool { return true }

func newTestMonitor(store CounterStore, active func() bool, cap *capture) *Monitor {
	return NewMonitor(store, "violations:test", active, cap.callbacks(), zerolog.Nop())
}

func TestEnteringSecureModeDoesNotCount(t *testing.T) {
	ctx := context.Background()
	cap := &capture{}
	m := newTestMonitor(newMemCounterStore(), alwaysActive, cap)

	// The first report after page load flips both flags at once.
	m.Report(ctx, true, true)

	assert.Equal(t, 0, m.ExitCount())
	assert.Empty(t, cap.warnings)
	assert.True(t, m.Secure())
}

func TestViolationIsEdgeTriggered(t *testing.T) {
	ctx := context.Background()
	cap := &capture{}
	m := newTestMonitor(newMemCounterStore(), alwaysActive, cap)
	m.Report(ctx, true, true)

	m.Report(ctx, false, true)
	assert.Equal(t, 1, m.ExitCount())

	// Further flapping while still insecure must not count again.
	m.Report(ctx, false, false)
	m.Report(ctx, false, true)
	assert.Equal(t, 1, m.ExitCount())
	assert.Len(t, cap.warnings, 1)
}

func TestSimultaneousSignalFlipsCountOnce(t *testing.T) {
	ctx := context.Background()
	cap := &capture{}
	m := newTestMonitor(newMemCounterStore(), alwaysActive, cap)
	m.Report(ctx, true, true)

	// Leaving full screen usually also fires a visibility change; the
	// merged condition must produce one violation, not two.
	m.Report(ctx, false, false)

	assert.Equal(t, 1, m.ExitCount())
	assert.Len(t, cap.warnings, 1)
}

func TestReturningSecureCancelsCountdownAndRearms(t *testing.T) {
	ctx := context.Background()
	cap := &capture{}
	m := newTestMonitor(newMemCounterStore(), alwaysActive, cap)
	m.Report(ctx, true, true)

	m.Report(ctx, true, false)
	require.True(t, m.CountdownActive())

	m.Report(ctx, true, true)
	assert.False(t, m.CountdownActive())
	assert.Equal(t, 1, cap.secures)

	// A fresh exit after re-securing counts as a new violation.
	m.Report(ctx, true, false)
	assert.Equal(t, 2, m.ExitCount())
	assert.Empty(t, cap.autoSubmits)
}

func TestCountdownExpiryAutoSubmits(t *testing.T) {
	ctx := context.Background()
	cap := &capture{}
	m := newTestMonitor(newMemCounterStore(), alwaysActive, cap)
	m.Report(ctx, true, true)

	m.Report(ctx, false, true)
	require.True(t, m.CountdownActive())
	assert.Equal(t, CountdownSeconds, m.CountdownRemaining())

	for i := 0; i < CountdownSeconds-1; i++ {
		m.Tick()
		assert.Empty(t, cap.autoSubmits)
	}
	m.Tick()

	require.Len(t, cap.autoSubmits, 1)
	assert.Equal(t, 1, cap.autoSubmits[0])
	assert.False(t, m.CountdownActive())
}

func TestExitBeyondCeilingAutoSubmitsImmediately(t *testing.T) {
	ctx := context.Background()
	cap := &capture{}
	m := newTestMonitor(newMemCounterStore(), alwaysActive, cap)
	m.Report(ctx, true, true)

	for i := 0; i < MaxExits; i++ {
		m.Report(ctx, true, false)
		m.Report(ctx, true, true)
	}
	require.Len(t, cap.warnings, MaxExits)
	require.Empty(t, cap.autoSubmits)

	// The exit after the last allowed one skips the countdown entirely.
	m.Report(ctx, true, false)

	require.Len(t, cap.autoSubmits, 1)
	assert.Equal(t, MaxExits+1, cap.autoSubmits[0])
	assert.False(t, m.CountdownActive())
	assert.Len(t, cap.warnings, MaxExits)
}

func TestInactiveSessionSuppressesEscalation(t *testing.T) {
	ctx := context.Background()
	cap := &capture{}
	active := false
	m := newTestMonitor(newMemCounterStore(), func() bool { return active }, cap)
	m.Report(ctx, true, true)

	m.Report(ctx, false, true)

	assert.Equal(t, 0, m.ExitCount())
	assert.Empty(t, cap.warnings)
	assert.False(t, m.CountdownActive())
}

func TestTickCancelsCountdownWhenSessionEnds(t *testing.T) {
	ctx := context.Background()
	cap := &capture{}
	active := true
	m := newTestMonitor(newMemCounterStore(), func() bool { return active }, cap)
	m.Report(ctx, true, true)

	m.Report(ctx, false, true)
	require.True(t, m.CountdownActive())

	active = false
	m.Tick()

	assert.False(t, m.CountdownActive())
	assert.Empty(t, cap.autoSubmits)
}

func TestCounterPersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	store := newMemCounterStore()
	cap := &capture{}
	m := newTestMonitor(store, alwaysActive, cap)
	m.Report(ctx, true, true)

	m.Report(ctx, true, false)
	m.Report(ctx, true, true)
	m.Report(ctx, true, false)
	require.Equal(t, 2, m.ExitCount())

	// A reload builds a new monitor over the same store.
	reloaded := newTestMonitor(store, alwaysActive, &capture{})
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 2, reloaded.ExitCount())
}

func TestClearRemovesPersistedCounter(t *testing.T) {
	ctx := context.Background()
	store := newMemCounterStore()
	cap := &capture{}
	m := newTestMonitor(store, alwaysActive, cap)
	m.Report(ctx, true, true)
	m.Report(ctx, true, false)

	require.NoError(t, m.Clear(ctx))

	fresh := newTestMonitor(store, alwaysActive, &capture{})
	require.NoError(t, fresh.Load(ctx))
	assert.Equal(t, 0, fresh.ExitCount())
}
