// Package security implements the armed-house monitor: wait for motion,
// grab a frame, look for people, match faces and alert on strangers.
//
// The monitor runs in its own goroutine once armed so the voice loop stays
// live. Disarming flips the armed flag and cancels the motion wait and the
// cooldown. A detection cycle already in progress runs to completion, bounded
// by CycleTimeout, so an intruder it found is still reported; the flag is
// re-checked right after. The hardware lease is never held while idle.
package security

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrAlreadyArmed = errors.New("security already armed")

const (
	DefaultCooldown         = 10 * time.Second
	DefaultMaxCycleFailures = 1
	DefaultCycleTimeout     = 30 * time.Second

	AlertText = "Alert! Unknown person detected"
)

type MotionSensor interface {
	WaitForMotion(ctx context.Context) error
}

type Camera interface {
	Capture(ctx context.Context) (image.Image, error)
}

type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// FaceMatcher reports whether the face in img belongs to a known resident.
type FaceMatcher interface {
	Match(ctx context.Context, img image.Image) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, frame image.Image, text string) error
}

type Speaker interface {
	Speak(text string) error
}

// Hardware hands out the exclusive camera/sensor lease.
type Hardware interface {
	Acquire(ctx context.Context) (func(), error)
}

// Journal receives monitor events. Optional.
type Journal interface {
	Record(ctx context.Context, kind, detail string) error
}

// Journal event kinds.
const (
	EventArmed         = "armed"
	EventDisarmed      = "disarmed"
	EventMotion        = "motion"
	EventPersonKnown   = "person_known"
	EventPersonUnknown = "person_unknown"
	EventAlertFailed   = "alert_failed"
	EventCycleError    = "cycle_error"
)

type State int32

const (
	Idle State = iota
	Armed
	WaitingForMotion
	DetectionCycle
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case WaitingForMotion:
		return "waiting_for_motion"
	case DetectionCycle:
		return "detection_cycle"
	case Cooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Deps struct {
	Motion   MotionSensor
	Camera   Camera
	Detector Detector
	Faces    FaceMatcher
	Notifier Notifier
	Speaker  Speaker
	Hardware Hardware
	Journal  Journal
	Logger   *slog.Logger
}

type Config struct {
	Cooldown time.Duration
	// MaxCycleFailures is how many consecutive failed cycles stop the
	// monitor. 1 means the first failure disarms.
	MaxCycleFailures int
	// CycleTimeout bounds one detection cycle, which disarming does not
	// interrupt.
	CycleTimeout time.Duration
}

type Monitor struct {
	Deps

	cooldown     time.Duration
	maxFailures  int
	cycleTimeout time.Duration

	armed atomic.Bool
	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(deps Deps, cfg Config) *Monitor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.MaxCycleFailures <= 0 {
		cfg.MaxCycleFailures = DefaultMaxCycleFailures
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}

	return &Monitor{
		Deps:         deps,
		cooldown:     cfg.Cooldown,
		maxFailures:  cfg.MaxCycleFailures,
		cycleTimeout: cfg.CycleTimeout,
	}
}

func (m *Monitor) Armed() bool {
	return m.armed.Load()
}

func (m *Monitor) State() State {
	return State(m.state.Load())
}

func (m *Monitor) setState(s State) {
	if prev := State(m.state.Swap(int32(s))); prev != s {
		m.Logger.Debug("Security state", "from", prev, "to", s)
	}
}

// Arm starts the monitor in the background. The run ends when ctx is
// cancelled, Disarm is called, or cycles keep failing.
func (m *Monitor) Arm(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.armed.Load() {
		return ErrAlreadyArmed
	}

	// a previous run may still be unwinding after Disarm
	if m.done != nil {
		select {
		case <-m.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	m.armed.Store(true)
	m.setState(Armed)
	m.record(ctx, EventArmed, "")
	m.Logger.Info("Security armed", "cooldown", m.cooldown, "max_failures", m.maxFailures, "cycle_timeout", m.cycleTimeout)

	go m.run(runCtx, cancel, done)

	return nil
}

// Disarm clears the armed flag and cancels the motion wait or cooldown. A
// detection cycle in progress finishes first. Disarm does not wait; use Wait
// to join. It reports whether the monitor was armed.
func (m *Monitor) Disarm() bool {
	was := m.armed.Swap(false)

	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()

	if was {
		m.Logger.Info("Security disarm requested")
	}
	return was
}

// Wait blocks until the current run, if any, has returned to Idle.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer func() {
		cancel()
		m.armed.Store(false)
		m.setState(Idle)
		m.record(context.WithoutCancel(ctx), EventDisarmed, "")
		m.Logger.Info("Security monitor stopped")
	}()

	failures := 0

	for {
		if !m.armed.Load() || ctx.Err() != nil {
			return
		}

		m.setState(WaitingForMotion)
		err := m.Motion.WaitForMotion(ctx)
		if err == nil {
			if !m.armed.Load() || ctx.Err() != nil {
				return
			}
			m.setState(DetectionCycle)
			err = m.detachedCycle(ctx)
			if !m.armed.Load() || ctx.Err() != nil {
				if err != nil {
					m.Logger.Warn("Security cycle failed while disarming", "err", err)
				}
				return
			}
		} else {
			err = fmt.Errorf("wait for motion: %w", err)
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}

			failures++
			m.Logger.Error("Security cycle failed", "err", err, "failures", failures, "max", m.maxFailures)
			m.record(ctx, EventCycleError, err.Error())

			if failures >= m.maxFailures {
				m.say("Security system error")
				return
			}
		} else {
			failures = 0
		}

		m.setState(Cooldown)
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.cooldown):
		}
	}
}

// detachedCycle runs cycle on a context that ignores disarm and parent
// cancellation, bounded by the cycle timeout.
func (m *Monitor) detachedCycle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cycleTimeout)
	defer cancel()
	return m.cycle(ctx)
}

// cycle runs one capture -> detect -> match -> alert pass while holding the
// hardware lease.
func (m *Monitor) cycle(ctx context.Context) error {
	m.say("Motion detected - analyzing scene")
	m.record(ctx, EventMotion, "")

	release, err := m.Hardware.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	frame, err := m.Camera.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	detections, err := m.Detector.Detect(ctx, frame)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	for _, d := range detections {
		if d.Label != PersonLabel {
			continue
		}

		face := Crop(frame, d.Box)
		if face == nil {
			m.Logger.Debug("Skipping empty person crop", "box", d.Box)
			continue
		}

		known, err := m.Faces.Match(ctx, face)
		if err != nil {
			return fmt.Errorf("face match: %w", err)
		}

		if known {
			m.say("Authorized person detected")
			m.record(ctx, EventPersonKnown, fmt.Sprint(d.Box))
			continue
		}

		m.say("Unknown person detected!")
		m.record(ctx, EventPersonUnknown, fmt.Sprint(d.Box))
		m.alert(ctx, frame)
	}

	return nil
}

// alert is best-effort; delivery failures never fail the cycle.
func (m *Monitor) alert(ctx context.Context, frame image.Image) {
	if err := m.Notifier.Notify(ctx, frame, AlertText); err != nil {
		m.Logger.Warn("Failed to deliver alert", "err", err)
		m.record(ctx, EventAlertFailed, err.Error())
	}
}

func (m *Monitor) say(text string) {
	if err := m.Speaker.Speak(text); err != nil {
		m.Logger.Warn("Failed to voice out", "text", text, "err", err)
	}
}

func (m *Monitor) record(ctx context.Context, kind, detail string) {
	if m.Journal == nil {
		return
	}
	if err := m.Journal.Record(ctx, kind, detail); err != nil {
		m.Logger.Warn("Failed to journal event", "kind", kind, "err", err)
	}
}
