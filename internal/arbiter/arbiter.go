// Package arbiter is component B: the sole owner of every physical output
// pin. It serializes set/pulse/panic-off requests per pin and enforces the
// configurable safety interlocks of spec.md §4.B.
package arbiter

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hydrocore/entity"
	"hydrocore/errcode"
	"hydrocore/eventbus"
	"hydrocore/internal/gpio"
)

// Interlock bounds one pin's HIGH behavior.
type Interlock struct {
	MaxContinuousHigh time.Duration // default 10 min
	MinHighInterval   time.Duration // default 0 (disabled)
}

var DefaultInterlock = Interlock{MaxContinuousHigh: 10 * time.Minute}

type pinState struct {
	mu sync.Mutex

	level        entity.PinLevel
	pulseEndsAt  time.Time
	pulseHandle  string
	pulseTimer   *time.Timer
	highSince    time.Time
	lastHighAt   time.Time
	refusals     int
	interlock    Interlock
}

// Arbiter owns every managed pin. No other component may toggle GPIO
// directly (spec.md §3 Ownership).
type Arbiter struct {
	chip gpio.Chip
	log  zerolog.Logger
	bus  *eventbus.Connection

	mu       sync.RWMutex // protects pins map membership and panicOff flag
	pins     map[int]*pinState
	panicOff bool
}

func New(chip gpio.Chip, bus *eventbus.Connection, log zerolog.Logger) *Arbiter {
	return &Arbiter{
		chip: chip,
		log:  log.With().Str("component", "arbiter").Logger(),
		bus:  bus,
		pins: map[int]*pinState{},
	}
}

// Register declares a pin the arbiter owns, per the runtime's pin pool
// (spec.md §3: output pins are registered at startup and never destroyed
// while the runtime is alive).
func (a *Arbiter) Register(pin int, interlock Interlock) error {
	if interlock.MaxContinuousHigh <= 0 {
		interlock.MaxContinuousHigh = DefaultInterlock.MaxContinuousHigh
	}
	if err := a.chip.Configure(pin, gpio.DirOutput, gpio.PullNone); err != nil {
		return errcode.New("arbiter.Register", errcode.LineUnavail, err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pins[pin] = &pinState{interlock: interlock}
	return nil
}

func (a *Arbiter) state(pin int) (*pinState, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.pins[pin]
	if !ok {
		return nil, errcode.New("arbiter", errcode.UnknownPin, nil)
	}
	return s, nil
}

// Set idempotently drives pin to on/off and returns the previous level.
// Requesting HIGH is subject to the same interlocks as Pulse.
func (a *Arbiter) Set(pin int, on bool) (entity.PinLevel, error) {
	if a.isPanicked() {
		return entity.LevelLow, errcode.New("arbiter.Set", errcode.PanicOffActive, nil)
	}
	s, err := a.state(pin)
	if err != nil {
		return entity.LevelLow, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.level
	if on {
		if err := a.checkInterlocksLocked(s, time.Now()); err != nil {
			s.refusals++
			a.log.Warn().Int("pin", pin).Err(err).Msg("set refused by interlock")
			return prev, err
		}
	}
	if s.pulseTimer != nil {
		s.pulseTimer.Stop()
		s.pulseTimer = nil
	}
	if s.level == entity.LevelPulsing {
		s.level = entity.LevelHigh
		s.pulseHandle = ""
	}
	if err := a.applyLocked(pin, s, on); err != nil {
		return prev, err
	}
	return prev, nil
}

// Pulse drives pin HIGH for duration, then LOW, returning a cancellable
// handle. A second pulse on an already-pulsing pin cancels the first and
// starts fresh (spec.md §4.B contract).
func (a *Arbiter) Pulse(pin int, duration time.Duration) (string, error) {
	if a.isPanicked() {
		return "", errcode.New("arbiter.Pulse", errcode.PanicOffActive, nil)
	}
	s, err := a.state(pin)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if err := a.checkInterlocksLocked(s, now); err != nil {
		s.refusals++
		a.log.Warn().Int("pin", pin).Err(err).Msg("pulse refused by interlock")
		return "", err
	}
	if s.pulseTimer != nil {
		s.pulseTimer.Stop()
	}
	if err := a.applyLocked(pin, s, true); err != nil {
		return "", err
	}

	handle := uuid.NewString()
	s.pulseHandle = handle
	s.pulseEndsAt = now.Add(duration)
	s.level = entity.LevelPulsing

	s.pulseTimer = time.AfterFunc(duration, func() {
		a.endPulse(pin, handle)
	})
	return handle, nil
}

// CancelPulse ends an in-flight pulse early if handle still matches the
// pin's current pulse.
func (a *Arbiter) CancelPulse(pin int, handle string) error {
	s, err := a.state(pin)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.level != entity.LevelPulsing || s.pulseHandle != handle {
		s.mu.Unlock()
		return nil
	}
	if s.pulseTimer != nil {
		s.pulseTimer.Stop()
		s.pulseTimer = nil
	}
	s.mu.Unlock()
	return a.forceLow(pin, s)
}

func (a *Arbiter) endPulse(pin int, handle string) {
	s, err := a.state(pin)
	if err != nil {
		return
	}
	s.mu.Lock()
	if s.pulseHandle != handle {
		s.mu.Unlock()
		return // superseded by a newer pulse
	}
	s.pulseTimer = nil
	s.mu.Unlock()
	_ = a.forceLow(pin, s)
}

func (a *Arbiter) forceLow(pin int, s *pinState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return a.applyLocked(pin, s, false)
}

// applyLocked performs the actual GPIO write and bookkeeping; caller
// holds s.mu.
func (a *Arbiter) applyLocked(pin int, s *pinState, on bool) error {
	if err := a.chip.SetOutput(pin, on); err != nil {
		return errcode.New("arbiter.applyLocked", errcode.BusError, err)
	}
	now := time.Now()
	if on {
		if s.level != entity.LevelHigh && s.level != entity.LevelPulsing {
			s.highSince = now
		}
		s.lastHighAt = now
		if s.level != entity.LevelPulsing {
			s.level = entity.LevelHigh
		}
	} else {
		s.level = entity.LevelLow
		s.highSince = time.Time{}
	}
	a.publish(pin, s)
	return nil
}

func (a *Arbiter) checkInterlocksLocked(s *pinState, now time.Time) error {
	if s.interlock.MinHighInterval > 0 && !s.lastHighAt.IsZero() {
		if now.Sub(s.lastHighAt) < s.interlock.MinHighInterval {
			return errcode.New("arbiter", errcode.InterlockMinGap, nil)
		}
	}
	return nil
}

// checkMaxHighLocked is invoked for every pin by the single
// RunInterlockWatchdog goroutine (started by cmd/hydrocore) so a pin that is forced
// HIGH and left there trips the max-continuous-HIGH interlock even
// without another Set/Pulse call arriving.
func (a *Arbiter) checkMaxHighLocked(pin int, s *pinState, now time.Time) {
	if s.level == entity.LevelLow || s.highSince.IsZero() {
		return
	}
	if now.Sub(s.highSince) > s.interlock.MaxContinuousHigh {
		s.refusals++
		a.log.Warn().Int("pin", pin).Msg("max continuous HIGH interlock tripped; forcing LOW")
		_ = a.chip.SetOutput(pin, false)
		s.level = entity.LevelLow
		s.highSince = time.Time{}
		a.publish(pin, s)
	}
}

// RunInterlockWatchdog periodically checks every pin's max-continuous-HIGH
// interlock until the stop channel is closed.
func (a *Arbiter) RunInterlockWatchdog(stop <-chan struct{}, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			a.mu.RLock()
			pins := make(map[int]*pinState, len(a.pins))
			for p, s := range a.pins {
				pins[p] = s
			}
			a.mu.RUnlock()
			for pin, s := range pins {
				s.mu.Lock()
				a.checkMaxHighLocked(pin, s, now)
				s.mu.Unlock()
			}
		}
	}
}

// List returns a snapshot of every managed pin's level.
func (a *Arbiter) List() map[int]entity.OutputPinState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[int]entity.OutputPinState, len(a.pins))
	for pin, s := range a.pins {
		s.mu.Lock()
		out[pin] = entity.OutputPinState{
			Pin:          pin,
			Level:        s.level,
			LastHighAt:   s.lastHighAt,
			RefusalCount: s.refusals,
		}
		if s.level == entity.LevelPulsing {
			ps := out[pin]
			ps.PulseEndsAt = s.pulseEndsAt
			out[pin] = ps
		}
		s.mu.Unlock()
	}
	return out
}

func (a *Arbiter) isPanicked() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.panicOff
}

// PanicOff drives every managed pin LOW and refuses further writes until
// Clear is called. The scheduler invokes this on shutdown and on a fatal
// error (spec.md §4.B, §7).
func (a *Arbiter) PanicOff() error {
	a.mu.Lock()
	a.panicOff = true
	pins := make(map[int]*pinState, len(a.pins))
	for p, s := range a.pins {
		pins[p] = s
	}
	a.mu.Unlock()

	var firstErr error
	for pin, s := range pins {
		s.mu.Lock()
		if s.pulseTimer != nil {
			s.pulseTimer.Stop()
			s.pulseTimer = nil
		}
		if err := a.chip.SetOutput(pin, false); err != nil && firstErr == nil {
			firstErr = err
		}
		s.level = entity.LevelLow
		s.highSince = time.Time{}
		a.publish(pin, s)
		s.mu.Unlock()
	}
	if firstErr != nil {
		return errcode.New("arbiter.PanicOff", errcode.PanicOffFailed, firstErr)
	}
	return nil
}

// Clear releases panic-off, allowing writes again.
func (a *Arbiter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.panicOff = false
}

func (a *Arbiter) publish(pin int, s *pinState) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(a.bus.NewMessage(eventbus.OutputState(pin), s.level.String(), true))
}
