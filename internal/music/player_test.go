package music

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/faiface/beep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	closed atomic.Bool
}

func (f *fakeStream) Stream(samples [][2]float64) (int, bool) { return len(samples), true }
func (f *fakeStream) Err() error                              { return nil }
func (f *fakeStream) Len() int                                { return 0 }
func (f *fakeStream) Position() int                           { return 0 }
func (f *fakeStream) Seek(int) error                          { return nil }
func (f *fakeStream) Close() error {
	f.closed.Store(true)
	return nil
}

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
	return dir
}

func newTestPlayer(dir string, valid map[string]*fakeStream) (*Player, map[string]chan struct{}) {
	p := NewPlayer(dir, nil)
	dones := map[string]chan struct{}{}

	p.open = func(path string) (beep.StreamSeekCloser, beep.Format, error) {
		s, ok := valid[filepath.Base(path)]
		if !ok {
			return nil, beep.Format{}, errors.New("mp3: invalid header")
		}
		return s, beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}, nil
	}
	p.play = func(s beep.Streamer, _ beep.SampleRate) (<-chan struct{}, error) {
		ctrl := s.(*beep.Ctrl)
		done := make(chan struct{})
		dones[filepath.Base(nameOf(valid, ctrl.Streamer))] = done
		return done, nil
	}
	p.lock = func(f func()) { f() }
	return p, dones
}

func nameOf(valid map[string]*fakeStream, s beep.Streamer) string {
	for name, fs := range valid {
		if fs == s {
			return name
		}
	}
	return ""
}

func TestPlaySkipsInvalidFiles(t *testing.T) {
	dir := writeFiles(t, "a_broken.mp3", "b_song.mp3", "c_song.mp3", "notes.txt")
	b := &fakeStream{}
	p, _ := newTestPlayer(dir, map[string]*fakeStream{"b_song.mp3": b, "c_song.mp3": {}})

	track, err := p.Play()
	require.NoError(t, err)
	assert.Equal(t, "b_song.mp3", track)
	assert.Equal(t, "b_song.mp3", p.Playing())
	assert.False(t, b.closed.Load())
}

func TestPlayNoValidTracks(t *testing.T) {
	dir := writeFiles(t, "broken.mp3", "cover.jpg")
	p, _ := newTestPlayer(dir, nil)

	_, err := p.Play()
	assert.ErrorIs(t, err, ErrNoTracks)
	assert.Empty(t, p.Playing())
}

func TestPlayMissingDir(t *testing.T) {
	p, _ := newTestPlayer(filepath.Join(t.TempDir(), "nope"), nil)

	_, err := p.Play()
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoTracks)
}

func TestStop(t *testing.T) {
	dir := writeFiles(t, "song.mp3")
	s := &fakeStream{}
	p, _ := newTestPlayer(dir, map[string]*fakeStream{"song.mp3": s})

	assert.False(t, p.Stop())

	_, err := p.Play()
	require.NoError(t, err)

	assert.True(t, p.Stop())
	assert.True(t, s.closed.Load())
	assert.Empty(t, p.Playing())
	assert.False(t, p.Stop())
}

func TestTrackEndReleasesStream(t *testing.T) {
	dir := writeFiles(t, "song.mp3")
	s := &fakeStream{}
	p, dones := newTestPlayer(dir, map[string]*fakeStream{"song.mp3": s})

	_, err := p.Play()
	require.NoError(t, err)

	close(dones["song.mp3"])

	assert.Eventually(t, func() bool { return s.closed.Load() && p.Playing() == "" }, time.Second, 5*time.Millisecond)
}

func TestTracksSorted(t *testing.T) {
	dir := writeFiles(t, "z.mp3", "A.MP3", "m.mp3", "x.wav")
	p := NewPlayer(dir, nil)

	tracks, err := p.Tracks()
	require.NoError(t, err)
	assert.Equal(t, []string{"A.MP3", "m.mp3", "z.mp3"}, tracks)
}
