// Package tts voices text through espeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
espeak_init(const char *lang, int rate)
{
	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -1; }

	espeak_VOICE specs = { 0 };
	specs.languages = lang;
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{ return -2; }

	if (rate > 0)
	{ espeak_SetParameter(espeakRATE, rate, 0); }

	return 0;
}

static int
espeak_say(const char *text)
{
	if (!text)
	{ return -1; }

	if (espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -2; }

	espeak_Synchronize();
	return 0;
}

static void
espeak_close(void)
{
	espeak_Terminate();
}
*/
import "C"

import (
	"fmt"
	log "log/slog"
	"sync"
	"unsafe"
)

// DefaultRate is the speaking rate in words per minute.
const DefaultRate = 150

// Voice serializes speech so the agent loop and the security monitor never
// talk over each other.
type Voice struct {
	mu sync.Mutex
}

func NewVoice(language string, rate int) (*Voice, error) {
	if language == "" {
		language = "en"
	}
	if rate <= 0 {
		rate = DefaultRate
	}

	clang := C.CString(language)
	defer C.free(unsafe.Pointer(clang))

	if rc := C.espeak_init(clang, C.int(rate)); rc != 0 {
		return nil, fmt.Errorf("espeak init %q failed: %d", language, int(rc))
	}

	return &Voice{}, nil
}

// Speak blocks until text has been spoken.
func (v *Voice) Speak(text string) error {
	if text == "" {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	log.Info("JARVIS says", "text", text)

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	rc := C.espeak_say(ctext)
	if rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}

	return nil
}

func (v *Voice) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	C.espeak_close()
}
