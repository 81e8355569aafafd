// Package agent runs the JARVIS conversation loop: hear a command, let the
// language model pick an action, and carry it out.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"jarvis/internal/nlu"
)

var ErrQueueFull = errors.New("command queue full")

const (
	Greeting      = "JARVIS starting up. How can I help you?"
	Farewell      = "Goodbye."
	NotHeard      = "I didn't catch that."
	CleanupNotice = "Performing system cleanup..."

	DefaultPace            = 500 * time.Millisecond
	DefaultCompleteTimeout = 60 * time.Second
)

// Listener captures one spoken command.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// FileTranscriber turns an injected audio file into command text.
type FileTranscriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Command is injected from outside the microphone path, e.g. the control
// socket. Exactly one of Text and AudioPath is set.
type Command struct {
	Text      string
	AudioPath string
}

// CleanupStep is run by Shutdown after the built-in cleanup.
type CleanupStep struct {
	Name string
	Run  func(ctx context.Context) error
}

type Config struct {
	// Listener may be nil for a headless agent driven only by Inject.
	Listener  Listener
	Files     FileTranscriber
	Completer Completer

	Dispatcher *Dispatcher

	Cleanup []CleanupStep

	Pace            time.Duration
	CompleteTimeout time.Duration
	Logger          *slog.Logger
}

type Agent struct {
	cfg    Config
	d      *Dispatcher
	logger *slog.Logger

	inject chan Command
}

func New(cfg Config) *Agent {
	if cfg.Pace <= 0 {
		cfg.Pace = DefaultPace
	}
	if cfg.CompleteTimeout <= 0 {
		cfg.CompleteTimeout = DefaultCompleteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		cfg:    cfg,
		d:      cfg.Dispatcher,
		logger: logger,
		inject: make(chan Command, 8),
	}
}

// Inject queues a command for the next iteration.
func (a *Agent) Inject(cmd Command) error {
	select {
	case a.inject <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run greets and loops until ctx is cancelled. Nothing a single iteration
// does can end the loop.
func (a *Agent) Run(ctx context.Context) error {
	a.d.say(Greeting)

	for ctx.Err() == nil {
		a.Step(ctx)

		select {
		case <-ctx.Done():
		case <-time.After(a.cfg.Pace):
		}
	}

	return nil
}

// Step runs one hear-think-act iteration.
func (a *Agent) Step(ctx context.Context) Result {
	text := a.next(ctx)
	if ctx.Err() != nil {
		return Result{}
	}

	if text == "" {
		a.d.say(NotHeard)
		return Result{}
	}

	a.logger.Info("Command", "text", text)

	reply := a.complete(ctx, text)
	intent := nlu.Parse(reply)

	a.logger.Info("Intent", "action", intent.Action, "message", intent.Message)

	return a.d.Dispatch(ctx, intent)
}

func (a *Agent) next(ctx context.Context) string {
	select {
	case cmd := <-a.inject:
		return a.resolve(ctx, cmd)
	default:
	}

	if a.cfg.Listener == nil {
		select {
		case cmd := <-a.inject:
			return a.resolve(ctx, cmd)
		case <-ctx.Done():
			return ""
		}
	}

	text, err := a.cfg.Listener.Listen(ctx)
	if err != nil && ctx.Err() == nil {
		a.logger.Error("Failed to listen", "err", err)
	}
	return text
}

func (a *Agent) resolve(ctx context.Context, cmd Command) string {
	if cmd.AudioPath == "" {
		return cmd.Text
	}
	if a.cfg.Files == nil {
		a.logger.Warn("Audio commands not supported", "path", cmd.AudioPath)
		return ""
	}

	text, err := a.cfg.Files.TranscribeFile(ctx, cmd.AudioPath)
	if err != nil {
		a.logger.Error("Failed to transcribe file", "path", cmd.AudioPath, "err", err)
		return ""
	}
	return text
}

func (a *Agent) complete(ctx context.Context, text string) string {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.CompleteTimeout)
	defer cancel()

	reply, err := a.cfg.Completer.Complete(ctx, nlu.SystemPrompt, text)
	if err != nil {
		a.logger.Error("Failed to call model", "err", err)
		return nlu.FallbackReply
	}
	a.logger.Debug("Model reply", "raw", reply)
	return reply
}

// Shutdown says goodbye and puts the house in a safe state: light off,
// security disarmed, music stopped, then the extra cleanup steps. Every step
// runs even if an earlier one failed.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.d.say(Farewell)
	a.d.say(CleanupNotice)

	var errs []error
	step := func(name string, f func() error) {
		if err := f(); err != nil {
			a.logger.Warn("Cleanup step failed", "step", name, "err", err)
			errs = append(errs, err)
		}
	}

	if a.d.Light != nil {
		step("light", func() error { return a.d.Light.Set(ctx, false) })
	}
	if a.d.Security != nil {
		step("security", func() error {
			a.d.Security.Disarm()
			return a.d.Security.Wait(ctx)
		})
	}
	if a.d.Music != nil {
		step("music", func() error {
			a.d.Music.Stop()
			return nil
		})
	}
	for _, c := range a.cfg.Cleanup {
		step(c.Name, func() error { return c.Run(ctx) })
	}

	a.logger.Info("JARVIS shut down")
	return errors.Join(errs...)
}
