package audio

import (
	"errors"
	"sync"
	"time"
)

// DefaultTransitionDelay is the settle time between releasing the audio
// device in one mode and acquiring it in another. Back-to-back mic and
// speaker use conflicts on some platforms without it.
const DefaultTransitionDelay = 500 * time.Millisecond

// ErrBusy is returned when the device is already held.
var ErrBusy = errors.New("audio: device busy")

// DeviceState is the arbiter's current mode.
type DeviceState int

const (
	StateIdle DeviceState = iota
	StateRecording
	StatePlaying
)

func (s DeviceState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Arbiter enforces mutual exclusion between microphone capture and
// speaker playback. Its state is the single source of truth for who holds
// the audio device; there are no timed sleeps anywhere else.
type Arbiter struct {
	mu          sync.Mutex
	state       DeviceState
	lastRelease time.Time
	delay       time.Duration

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewArbiter creates an idle arbiter. delay <= 0 selects
// DefaultTransitionDelay.
func NewArbiter(delay time.Duration) *Arbiter {
	if delay <= 0 {
		delay = DefaultTransitionDelay
	}
	return &Arbiter{
		delay: delay,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// State returns the current mode.
func (a *Arbiter) State() DeviceState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// AcquireForRecording transitions Idle→Recording after the settle delay.
// The returned release function transitions back to Idle; it must be
// called exactly once, typically deferred.
func (a *Arbiter) AcquireForRecording() (release func(), err error) {
	return a.acquire(StateRecording)
}

// AcquireForPlayback transitions Idle→Playing after the settle delay.
func (a *Arbiter) AcquireForPlayback() (release func(), err error) {
	return a.acquire(StatePlaying)
}

func (a *Arbiter) acquire(target DeviceState) (func(), error) {
	a.mu.Lock()
	if a.state != StateIdle {
		a.mu.Unlock()
		return nil, ErrBusy
	}
	// Claim the device before waiting so a concurrent acquire fails fast
	// instead of racing through the settle window.
	a.state = target
	wait := a.delay - a.now().Sub(a.lastRelease)
	a.mu.Unlock()

	if wait > 0 {
		a.sleep(wait)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			a.mu.Lock()
			a.state = StateIdle
			a.lastRelease = a.now()
			a.mu.Unlock()
		})
	}
	return release, nil
}
