package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sinkInputs = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 52428 /  80% / -5.81 dB,   front-right: 52428 /  80% / -5.81 dB
	Properties:
		application.name = "Firefox"
Sink Input #42
	Volume: front-left: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "jarvis"
Sink Input #bogus
	Volume: 10%
Sink Input #43
	Volume: mono: 32768 /  50% / -18.06 dB
	Properties:
		application.name = "mpv"
`

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(sinkInputs)
	assert.Equal(t, []streamInfo{
		{ID: 41, Volume: 80, AppName: "Firefox"},
		{ID: 42, Volume: 100, AppName: "jarvis"},
		{ID: 43, Volume: 50, AppName: "mpv"},
	}, got)

	assert.Empty(t, parseSinkInputs(""))
}

type fakePactl struct {
	mu      sync.Mutex
	listing string
	sets    map[string][]string
}

func (f *fakePactl) run(_ context.Context, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if args[0] == "list" {
		return []byte(f.listing), nil
	}
	if f.sets == nil {
		f.sets = map[string][]string{}
	}
	f.sets[args[1]] = append(f.sets[args[1]], args[2])
	return nil, nil
}

func (f *fakePactl) last(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.sets[id]
	if len(v) == 0 {
		return ""
	}
	return v[len(v)-1]
}

func TestDuckAndRestore(t *testing.T) {
	p := &fakePactl{listing: sinkInputs}
	d := NewDucker([]string{"jarvis"}, 20)
	d.pactl = p.run

	require.NoError(t, d.DuckOthers(t.Context(), 0.3, 0))

	assert.Equal(t, "24%", p.last("41"))
	assert.Equal(t, "20%", p.last("43"), "clamped to min volume")
	assert.Empty(t, p.last("42"), "own stream untouched")

	// ducking twice is a no-op
	require.NoError(t, d.DuckOthers(t.Context(), 0.1, 0))
	assert.Equal(t, "24%", p.last("41"))

	p.listing = strings.NewReplacer("80%", "24%", "50%", "20%").Replace(sinkInputs)
	require.NoError(t, d.UnduckOthers(t.Context(), 30*time.Millisecond))

	assert.Equal(t, "80%", p.last("41"))
	assert.Equal(t, "50%", p.last("43"))
	assert.Greater(t, len(p.sets["41"]), 2, "fade takes several steps")
}

func TestUnduckWithoutDuck(t *testing.T) {
	p := &fakePactl{}
	d := NewDucker(nil, 0)
	d.pactl = func(context.Context, ...string) ([]byte, error) {
		return nil, fmt.Errorf("pactl must not run")
	}
	assert.NoError(t, d.Unduck(t.Context()))
	assert.Empty(t, p.sets)
}

func TestSegmenter(t *testing.T) {
	loud := make([]float32, frameSize)
	for i := range loud {
		loud[i] = 0.5
	}
	quiet := make([]float32, frameSize)

	var s segmenter
	assert.False(t, s.push(quiet), "leading silence is dropped")
	assert.Empty(t, s.out)

	assert.False(t, s.push(loud))
	assert.Len(t, s.out, frameSize)

	silenceFrames := int(silenceDuration / frameDuration)
	ended := false
	for i := 0; i < silenceFrames; i++ {
		ended = s.push(quiet)
	}
	assert.True(t, ended)
	assert.Len(t, s.out, frameSize*silenceFrames)
}

func TestFrameRMS(t *testing.T) {
	assert.Zero(t, frameRMS(nil))
	assert.InDelta(t, 0.5, frameRMS([]float32{0.5, -0.5, 0.5, -0.5}), 1e-9)
}

func TestWriteWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp.wav")
	pcm := []float32{0, 0.5, -0.5, 1.5, -1}

	require.NoError(t, WriteWAV(path, pcm, SampleRate))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)

	assert.Equal(t, SampleRate, buf.Format.SampleRate)
	assert.Equal(t, 1, buf.Format.NumChannels)
	assert.Equal(t, []int{0, 16383, -16383, 32767, -32767}, buf.Data)
}
