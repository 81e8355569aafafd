// Package music plays mp3 files from a local folder.
package music

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"

	"jarvis/internal/audio"
)

var ErrNoTracks = errors.New("no playable music files")

type Player struct {
	dir    string
	logger *slog.Logger

	open func(path string) (beep.StreamSeekCloser, beep.Format, error)
	play func(s beep.Streamer, rate beep.SampleRate) (<-chan struct{}, error)
	lock func(func())

	mu      sync.Mutex
	current beep.StreamSeekCloser
	ctrl    *beep.Ctrl
	track   string
}

func NewPlayer(dir string, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		dir:    dir,
		logger: logger,
		open:   openMP3,
		play:   audio.Play,
		lock: func(f func()) {
			speaker.Lock()
			defer speaker.Unlock()
			f()
		},
	}
}

func openMP3(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}
	s, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, err
	}
	return s, format, nil
}

// Tracks lists the mp3 files in the folder in name order.
func (p *Player) Tracks() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("read music dir: %w", err)
	}

	var tracks []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".mp3") {
			tracks = append(tracks, e.Name())
		}
	}
	slices.Sort(tracks)
	return tracks, nil
}

// Play starts the first track that decodes, replacing whatever is playing,
// and returns its file name. Undecodable files are skipped.
func (p *Player) Play() (string, error) {
	tracks, err := p.Tracks()
	if err != nil {
		return "", err
	}

	for _, track := range tracks {
		s, format, err := p.open(filepath.Join(p.dir, track))
		if err != nil {
			p.logger.Warn("Skipping invalid music file", "track", track, "err", err)
			continue
		}

		p.Stop()

		ctrl := &beep.Ctrl{Streamer: s}
		done, err := p.play(ctrl, format.SampleRate)
		if err != nil {
			s.Close()
			return "", err
		}

		p.mu.Lock()
		p.current, p.ctrl, p.track = s, ctrl, track
		p.mu.Unlock()

		go p.release(s, done)

		p.logger.Info("Playing", "track", track)
		return track, nil
	}

	return "", ErrNoTracks
}

// release closes s once it has played out, unless Stop got there first.
func (p *Player) release(s beep.StreamSeekCloser, done <-chan struct{}) {
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == s {
		s.Close()
		p.current, p.ctrl, p.track = nil, nil, ""
	}
}

// Stop silences the current track. It reports whether anything was playing.
func (p *Player) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return false
	}

	ctrl := p.ctrl
	p.lock(func() {
		ctrl.Streamer = nil
	})
	p.current.Close()
	p.logger.Info("Music stopped", "track", p.track)
	p.current, p.ctrl, p.track = nil, nil, ""
	return true
}

// Playing returns the current track name, or "".
func (p *Player) Playing() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track
}
