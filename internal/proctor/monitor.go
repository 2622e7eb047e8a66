package proctor

import (
	"context"

	"github.com/rs/zerolog"
)

const (
	// MaxExits is the violation ceiling: the exit after this one (the
	// sixth) forces an immediate auto-submit.
	MaxExits = 5
	// CountdownSeconds is how long the student has to return to secure
	// mode before the exam is auto-submitted.
	CountdownSeconds = 30
)

// Callbacks surface monitor escalations to the hosting session.
type Callbacks struct {
	// OnWarning is invoked on each counted violation below the ceiling.
	// remaining is the number of chances left before auto-submit.
	OnWarning func(exitCount, remaining, countdownSeconds int)
	// OnAutoSubmit is invoked when the ceiling is exceeded or the
	// countdown reaches zero. violations is the count at that moment.
	OnAutoSubmit func(violations int)
	// OnSecure is invoked when secure mode returns during a countdown.
	OnSecure func()
}

// Monitor watches the combined secure condition (full-screen AND page
// visible) and drives escalating consequences. Violations are edge-triggered:
// a latch prevents re-counting while still insecure, and full-screen and
// visibility flips are merged into one condition so simultaneous flips count
// once. Not safe for concurrent use; the owning controller serializes calls.
type Monitor struct {
	store      CounterStore
	counterKey string
	log        zerolog.Logger
	cb         Callbacks

	// active reports whether the exam is started and not finished;
	// escalation is suppressed outside that window.
	active func() bool

	isFullscreen  bool
	isPageVisible bool
	warningIssued bool
	exitCount     int
	countdown     int // seconds remaining; -1 when inactive
}

// NewMonitor creates a monitor persisting its exit counter under counterKey.
func NewMonitor(store CounterStore, counterKey string, active func() bool, cb Callbacks, log zerolog.Logger) *Monitor {
	return &Monitor{
		store:      store,
		counterKey: counterKey,
		log:        log.With().Str("component", "proctor_monitor").Logger(),
		cb:         cb,
		active:     active,
		// The environment reports its real state before the exam starts;
		// assume insecure until told otherwise.
		countdown: -1,
	}
}

// Load reads the persisted exit count at session start so violations survive
// a full page reload.
func (m *Monitor) Load(ctx context.Context) error {
	count, err := m.store.Get(ctx, m.counterKey)
	if err != nil {
		return err
	}
	m.exitCount = count
	return nil
}

// ExitCount returns the current violation count.
func (m *Monitor) ExitCount() int {
	return m.exitCount
}

// CountdownActive reports whether an auto-submit countdown is running.
func (m *Monitor) CountdownActive() bool {
	return m.countdown >= 0
}

// CountdownRemaining returns the seconds left on the auto-submit countdown,
// or -1 when no countdown is running.
func (m *Monitor) CountdownRemaining() int {
	return m.countdown
}

// Secure reports the combined secure condition.
func (m *Monitor) Secure() bool {
	return m.isFullscreen && m.isPageVisible
}

// Report feeds the current full-screen and visibility flags from the
// environment. Both flags are applied before the secure condition is
// re-evaluated; evaluating between them would see a half-applied transition
// and miscount a simultaneous flip.
func (m *Monitor) Report(ctx context.Context, fullscreen, visible bool) {
	m.isFullscreen = fullscreen
	m.isPageVisible = visible
	m.evaluate(ctx)
}

// evaluate applies the edge-triggered violation rule after any signal change.
func (m *Monitor) evaluate(ctx context.Context) {
	if m.Secure() {
		// Returning to secure cancels the countdown and clears the
		// latch so the next exit re-triggers from scratch.
		if m.countdown >= 0 || m.warningIssued {
			m.countdown = -1
			m.warningIssued = false
			if m.cb.OnSecure != nil {
				m.cb.OnSecure()
			}
		}
		return
	}

	// Signals are still observed outside the running window, but produce
	// no count, warning, or auto-submit.
	if !m.active() {
		return
	}

	if m.warningIssued {
		return // still insecure from the same exit
	}
	m.warningIssued = true
	m.exitCount++

	if err := m.store.Set(ctx, m.counterKey, m.exitCount); err != nil {
		m.log.Error().Err(err).Msg("Failed to persist violation count")
	}

	if m.exitCount > MaxExits {
		m.log.Warn().Int("violations", m.exitCount).Msg("Violation ceiling exceeded, auto-submitting")
		m.countdown = -1
		if m.cb.OnAutoSubmit != nil {
			m.cb.OnAutoSubmit(m.exitCount)
		}
		return
	}

	m.countdown = CountdownSeconds
	m.log.Warn().
		Int("violations", m.exitCount).
		Int("remaining", MaxExits-m.exitCount+1).
		Msg("Proctoring violation")
	if m.cb.OnWarning != nil {
		m.cb.OnWarning(m.exitCount, MaxExits-m.exitCount+1, m.countdown)
	}
}

// Tick advances the auto-submit countdown by one second. Driven by the same
// one-second clock as the exam timer.
func (m *Monitor) Tick() {
	if m.countdown < 0 {
		return
	}
	if !m.active() {
		m.countdown = -1
		return
	}
	m.countdown--
	if m.countdown <= 0 {
		m.countdown = -1
		if m.cb.OnAutoSubmit != nil {
			m.cb.OnAutoSubmit(m.exitCount)
		}
	}
}

// Clear deletes the persisted counter after exam completion so a later
// attempt or a different exam is unaffected.
func (m *Monitor) Clear(ctx context.Context) error {
	return m.store.Delete(ctx, m.counterKey)
}
