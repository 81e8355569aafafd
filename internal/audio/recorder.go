// Package audio owns the microphone, the shared output device and the
// ducking of other applications while JARVIS listens.
package audio

import (
	"context"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"
)

// SampleRate is what whisper expects.
const SampleRate = 16000

const (
	frameSize        = 320 // 20ms
	frameDuration    = 20 * time.Millisecond
	silenceThreshRMS = 0.015
	silenceDuration  = 600 * time.Millisecond
)

type Recorder struct {
	maxLength time.Duration
}

func NewRecorder(maxLength time.Duration) *Recorder {
	if maxLength <= 0 {
		maxLength = 10 * time.Second
	}
	return &Recorder{maxLength: maxLength}
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// RecordAuto records one utterance: capture starts with the first loud frame
// and stops after a run of silence, at maxLength, or when ctx is done.
// The result is mono float32 PCM at SampleRate.
func (r *Recorder) RecordAuto(ctx context.Context) ([]float32, error) {
	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, err
	}
	defer stream.Stop()

	var seg segmenter
	maxFrames := int(r.maxLength / frameDuration)

	for i := 0; i < maxFrames; i++ {
		if err := ctx.Err(); err != nil {
			return seg.out, err
		}

		if err := stream.Read(); err != nil {
			return nil, err
		}

		if seg.push(buf) {
			break
		}
	}

	return seg.out, nil
}

// segmenter keeps the frames between the first loud frame and the trailing
// silence.
type segmenter struct {
	out           []float32
	speaking      bool
	silenceFrames int
}

// push adds one frame and reports whether the utterance is over.
func (s *segmenter) push(frame []float32) bool {
	if frameRMS(frame) > silenceThreshRMS {
		s.speaking = true
		s.silenceFrames = 0
		s.out = append(s.out, frame...)
		return false
	}

	if !s.speaking {
		return false
	}

	s.silenceFrames++
	if time.Duration(s.silenceFrames)*frameDuration >= silenceDuration {
		return true
	}
	s.out = append(s.out, frame...)
	return false
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
