// Package voice turns speech into command text, either live from the
// microphone or from an audio file handed over the control socket.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"jarvis/internal/audio"
	"jarvis/pkg/audioconv"
	"jarvis/pkg/stt"
)

const DefaultTranscribeTimeout = 60 * time.Second

type Recorder interface {
	RecordAuto(ctx context.Context) ([]float32, error)
}

type Transcriber interface {
	TranscribePCM(ctx context.Context, pcm16k []float32, opt stt.Options) (stt.Result, error)
}

type Ducker interface {
	Duck(ctx context.Context) error
	Unduck(ctx context.Context) error
}

type Chime interface {
	Play() error
}

type Config struct {
	Recorder    Recorder
	Transcriber Transcriber
	// Ducker and Chime are optional.
	Ducker Ducker
	Chime  Chime

	// TempFile receives a WAV copy of the last utterance. Empty disables it.
	TempFile          string
	Language          string
	TranscribeTimeout time.Duration
	Logger            *slog.Logger
}

type Listener struct {
	cfg    Config
	logger *slog.Logger
}

func NewListener(cfg Config) *Listener {
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = DefaultTranscribeTimeout
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{cfg: cfg, logger: logger}
}

// Listen records one utterance and returns its transcript. Silence yields
// an empty string and no error.
func (l *Listener) Listen(ctx context.Context) (string, error) {
	if l.cfg.Chime != nil {
		if err := l.cfg.Chime.Play(); err != nil {
			l.logger.Debug("Failed to play chime", "err", err)
		}
	}

	if l.cfg.Ducker != nil {
		if err := l.cfg.Ducker.Duck(ctx); err != nil {
			l.logger.Debug("Failed to duck other streams", "err", err)
		}
		defer func() {
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := l.cfg.Ducker.Unduck(uctx); err != nil {
				l.logger.Debug("Failed to restore other streams", "err", err)
			}
		}()
	}

	l.logger.Info("Listening")

	pcm, err := l.cfg.Recorder.RecordAuto(ctx)
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}
	if len(pcm) == 0 {
		return "", nil
	}

	l.logger.Debug("Recorded", "samples", len(pcm))

	if l.cfg.TempFile != "" {
		if err := audio.WriteWAV(l.cfg.TempFile, pcm, audio.SampleRate); err != nil {
			l.logger.Warn("Failed to keep utterance", "file", l.cfg.TempFile, "err", err)
		}
	}

	return l.transcribe(ctx, pcm)
}

// TranscribeFile decodes an audio file and transcribes it.
func (l *Listener) TranscribeFile(ctx context.Context, path string) (string, error) {
	pcm, err := audioconv.ConvertFileToPCM16k(ctx, path, audioconv.Options{})
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", path, err)
	}
	return l.transcribe(ctx, pcm)
}

func (l *Listener) transcribe(ctx context.Context, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.TranscribeTimeout)
	defer cancel()

	res, err := l.cfg.Transcriber.TranscribePCM(ctx, pcm, stt.Options{Language: l.cfg.Language})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}

	text := strings.TrimSpace(res.Text)
	l.logger.Info("Transcribed", "text", text, "lang", res.Language)
	return text, nil
}

// Cleanup removes the utterance temp file.
func (l *Listener) Cleanup() error {
	if l.cfg.TempFile == "" {
		return nil
	}
	if err := os.Remove(l.cfg.TempFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
