package clientpath

import (
	"sync"
	"time"
)

// RefreshRateProbe reads the attached display's maximum refresh rate,
// an external collaborator (platform display APIs) this package polls
// but does not implement.
type RefreshRateProbe func() (hz int, err error)

// RefreshRateOverrideHandler receives the resolved override value
// whenever it changes: 60, 90 (devices whose only supported high rate
// is 90), or 120.
type RefreshRateOverrideHandler func(override int)

const refreshRatePollInterval = 3 * time.Second

// RefreshRateMonitor polls the display's maximum refresh rate every
// ~3 seconds when ProMotion is enabled and notifies a handler on
// change, per spec §4.7. With ProMotion disabled it holds the
// override at 60 without polling.
type RefreshRateMonitor struct {
	probe   RefreshRateProbe
	handler RefreshRateOverrideHandler

	mu          sync.Mutex
	proMotionOn bool
	override    int

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewRefreshRateMonitor returns a monitor that calls probe to sample
// the display and handler whenever the resolved override changes.
func NewRefreshRateMonitor(probe RefreshRateProbe, handler RefreshRateOverrideHandler) *RefreshRateMonitor {
	return &RefreshRateMonitor{
		probe:    probe,
		handler:  handler,
		override: 60,
	}
}

// SetProMotionEnabled toggles polling. Disabling immediately resets
// the override to 60.
func (m *RefreshRateMonitor) SetProMotionEnabled(enabled bool) {
	m.mu.Lock()
	m.proMotionOn = enabled
	if !enabled && m.override != 60 {
		m.override = 60
		m.mu.Unlock()
		m.handler(60)
		return
	}
	m.mu.Unlock()
}

// Override returns the currently resolved refresh-rate override.
func (m *RefreshRateMonitor) Override() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.override
}

// Start launches the poll loop. Call Stop to terminate it.
func (m *RefreshRateMonitor) Start() {
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.loop()
}

// Stop terminates the poll loop and waits for it to exit.
func (m *RefreshRateMonitor) Stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	<-m.doneCh
}

func (m *RefreshRateMonitor) loop() {
	defer close(m.doneCh)
	ticker := time.NewTicker(refreshRatePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.poll()
		case <-m.stopCh:
			return
		}
	}
}

func (m *RefreshRateMonitor) poll() {
	m.mu.Lock()
	if !m.proMotionOn {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	hz, err := m.probe()
	if err != nil {
		return
	}

	resolved := resolveOverride(hz)

	m.mu.Lock()
	changed := resolved != m.override
	m.override = resolved
	m.mu.Unlock()

	if changed {
		m.handler(resolved)
	}
}

// resolveOverride maps a raw display refresh rate to the supported
// override set {60, 90, 120}, per spec §4.7.
func resolveOverride(hz int) int {
	switch {
	case hz >= 120:
		return 120
	case hz >= 90:
		return 90
	default:
		return 60
	}
}
