package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

// OutputRate is the rate the shared speaker runs at. Streams at other rates
// are resampled.
const OutputRate beep.SampleRate = 44100

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(OutputRate, OutputRate.N(time.Second/10))
	})
	return speakerErr
}

// Play queues s on the shared speaker. The returned channel is closed when
// s is drained.
func Play(s beep.Streamer, rate beep.SampleRate) (<-chan struct{}, error) {
	if err := initSpeaker(); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}

	if rate != OutputRate {
		s = beep.Resample(4, rate, OutputRate, s)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))
	return done, nil
}

// StopAll drops every stream queued on the shared speaker.
func StopAll() {
	if initSpeaker() != nil {
		return
	}
	speaker.Clear()
}
