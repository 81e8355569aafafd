package agent

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"jarvis/internal/nlu"
)

var (
	ErrNotConfigured = errors.New("not configured")
	ErrHandlerPanic  = errors.New("handler panicked")
)

type Speaker interface {
	Speak(text string) error
}

type Light interface {
	Set(ctx context.Context, on bool) error
}

type Camera interface {
	Capture(ctx context.Context) (image.Image, error)
}

type Thermometer interface {
	Read(ctx context.Context) (temperature, humidity float64, err error)
}

type Music interface {
	Play() (string, error)
	Stop() bool
}

type Weather interface {
	Current(ctx context.Context) (string, error)
}

type News interface {
	Headlines(ctx context.Context, limit int) ([]string, error)
}

// Hardware hands out the exclusive camera/sensor lease.
type Hardware interface {
	Acquire(ctx context.Context) (func(), error)
}

type Security interface {
	Arm(ctx context.Context) error
	Disarm() bool
	Armed() bool
	Wait(ctx context.Context) error
}

type Journal interface {
	Record(ctx context.Context, kind, detail string) error
}

// Deps are the collaborators handlers act on. Any of them except Speaker
// may be nil; the matching actions then fail with ErrNotConfigured.
type Deps struct {
	Speaker  Speaker
	Light    Light
	Camera   Camera
	Thermo   Thermometer
	Music    Music
	Weather  Weather
	News     News
	Hardware Hardware
	Security Security
	Journal  Journal

	// SavePhoto stores a captured frame and returns the file name.
	SavePhoto func(img image.Image, at time.Time) (string, error)

	Now    func() time.Time
	Logger *slog.Logger
}

// Result reports what a dispatch did.
type Result struct {
	Action nlu.Action
	Err    error
}

type handler func(ctx context.Context) error

// Dispatcher executes intents. It speaks the model's message before any
// side effect, runs the action's handler and turns handler failures into a
// spoken apology.
type Dispatcher struct {
	Deps

	handlers map[nlu.Action]handler
	failures map[nlu.Action]string
}

const fallbackFailure = "Sorry, something went wrong."

func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	d := &Dispatcher{Deps: deps}

	d.handlers = map[nlu.Action]handler{
		nlu.LightOn:            func(ctx context.Context) error { return d.setLight(ctx, true) },
		nlu.LightOff:           func(ctx context.Context) error { return d.setLight(ctx, false) },
		nlu.TakePhoto:          d.takePhoto,
		nlu.CheckTemp:          d.checkTemp,
		nlu.ActivateSecurity:   d.activateSecurity,
		nlu.DeactivateSecurity: d.deactivateSecurity,
		nlu.TellTime:           d.tellTime,
		nlu.TellWeather:        d.tellWeather,
		nlu.PlayMusic:          d.playMusic,
		nlu.StopMusic:          d.stopMusic,
		nlu.TellNews:           d.tellNews,
	}

	d.failures = map[nlu.Action]string{
		nlu.LightOn:            "Sorry, I couldn't reach the light.",
		nlu.LightOff:           "Sorry, I couldn't reach the light.",
		nlu.TakePhoto:          "Sorry, I couldn't take a photo.",
		nlu.CheckTemp:          "Failed to read the temperature sensor",
		nlu.ActivateSecurity:   "Sorry, I couldn't start the security system.",
		nlu.DeactivateSecurity: "Sorry, I couldn't stop the security system.",
		nlu.TellWeather:        "Sorry, I can't reach the weather service.",
		nlu.PlayMusic:          "I couldn't play any valid music files.",
		nlu.StopMusic:          "Sorry, I couldn't stop the music.",
		nlu.TellNews:           "Something went wrong while getting the news.",
	}

	return d
}

// Dispatch never fails the caller; the outcome is in Result.
func (d *Dispatcher) Dispatch(ctx context.Context, intent nlu.Intent) Result {
	res := Result{Action: intent.Action}

	d.say(intent.Message)

	h, ok := d.handlers[intent.Action]
	if !ok {
		return res
	}

	res.Err = d.invoke(ctx, h)
	if res.Err != nil {
		d.Logger.Error("Action failed", "action", intent.Action, "err", res.Err)
		d.say(d.failurePhrase(intent.Action, res.Err))
		d.record(ctx, "intent_failed", fmt.Sprintf("%s: %v", intent.Action, res.Err))
		return res
	}

	d.Logger.Debug("Action done", "action", intent.Action)
	d.record(ctx, "intent", string(intent.Action))
	return res
}

func (d *Dispatcher) invoke(ctx context.Context, h handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(ctx)
}

func (d *Dispatcher) failurePhrase(action nlu.Action, err error) string {
	var spoken *spokenError
	if errors.As(err, &spoken) {
		return spoken.phrase
	}
	if p, ok := d.failures[action]; ok {
		return p
	}
	return fallbackFailure
}

func (d *Dispatcher) say(text string) {
	if text == "" {
		return
	}
	if err := d.Speaker.Speak(text); err != nil {
		d.Logger.Warn("Failed to voice out", "text", text, "err", err)
	}
}

func (d *Dispatcher) record(ctx context.Context, kind, detail string) {
	if d.Journal == nil {
		return
	}
	if err := d.Journal.Record(ctx, kind, detail); err != nil {
		d.Logger.Warn("Failed to journal", "kind", kind, "err", err)
	}
}

// spokenError overrides the action's default failure phrase.
type spokenError struct {
	phrase string
	err    error
}

func (e *spokenError) Error() string { return e.err.Error() }
func (e *spokenError) Unwrap() error { return e.err }

func failWith(phrase string, err error) error {
	return &spokenError{phrase: phrase, err: err}
}
