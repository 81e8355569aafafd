package notify

import (
	"fmt"
	"os"

	"github.com/faiface/beep/mp3"

	"jarvis/internal/audio"
)

// Chime plays a short mp3 before the microphone opens.
type Chime struct {
	path string
}

func NewChime(path string) *Chime {
	return &Chime{path: path}
}

// Play blocks until the chime has finished. An empty path is a no-op.
func (c *Chime) Play() error {
	if c.path == "" {
		return nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("open chime: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode chime: %w", err)
	}
	defer streamer.Close()

	done, err := audio.Play(streamer, format.SampleRate)
	if err != nil {
		return err
	}
	<-done
	return nil
}
