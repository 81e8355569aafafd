package agent

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// trace records speech and side effects in the order they happen.
type trace struct {
	mu     sync.Mutex
	events []string
}

func (t *trace) add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, fmt.Sprintf(format, args...))
}

func (t *trace) all() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

func (t *trace) said() []string {
	var out []string
	for _, e := range t.all() {
		if len(e) > 4 && e[:4] == "say:" {
			out = append(out, e[4:])
		}
	}
	return out
}

type speaker struct{ t *trace }

func (s speaker) Speak(text string) error {
	s.t.add("say:%s", text)
	return nil
}

type light struct {
	t   *trace
	err error
}

func (l light) Set(_ context.Context, on bool) error {
	if on {
		l.t.add("light:on")
	} else {
		l.t.add("light:off")
	}
	return l.err
}

type camera struct {
	t     *trace
	err   error
	panic bool
}

func (c camera) Capture(context.Context) (image.Image, error) {
	if c.panic {
		panic("camera driver exploded")
	}
	c.t.add("capture")
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), c.err
}

type thermo struct {
	temp, hum float64
	err       error
}

func (th thermo) Read(context.Context) (float64, float64, error) { return th.temp, th.hum, th.err }

type music struct {
	t     *trace
	track string
	err   error
}

func (m music) Play() (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.t.add("music:play")
	return m.track, nil
}

func (m music) Stop() bool {
	m.t.add("music:stop")
	return true
}

type weather struct {
	text string
	err  error
}

func (w weather) Current(context.Context) (string, error) { return w.text, w.err }

type news struct {
	titles []string
	err    error
	limit  *int
}

func (n news) Headlines(_ context.Context, limit int) ([]string, error) {
	if n.limit != nil {
		*n.limit = limit
	}
	return n.titles, n.err
}

type hardware struct {
	t    *trace
	held atomic.Int32
}

func (h *hardware) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.held.Add(1)
	h.t.add("lock")
	var once sync.Once
	return func() {
		once.Do(func() {
			h.held.Add(-1)
			h.t.add("unlock")
		})
	}, nil
}

type securityFake struct {
	t     *trace
	armed atomic.Bool
}

func (s *securityFake) Arm(context.Context) error {
	s.t.add("security:arm")
	s.armed.Store(true)
	return nil
}

func (s *securityFake) Disarm() bool {
	s.t.add("security:disarm")
	return s.armed.Swap(false)
}

func (s *securityFake) Armed() bool { return s.armed.Load() }

func (s *securityFake) Wait(context.Context) error {
	s.t.add("security:wait")
	return nil
}

type journal struct {
	mu    sync.Mutex
	kinds []string
}

func (j *journal) Record(_ context.Context, kind, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.kinds = append(j.kinds, kind+":"+detail)
	return nil
}

var fixedNow = time.Date(2024, 3, 9, 15, 4, 5, 0, time.UTC)

func newDeps(t *trace) Deps {
	return Deps{
		Speaker:  speaker{t},
		Light:    light{t: t},
		Camera:   camera{t: t},
		Thermo:   thermo{temp: 21.53, hum: 40},
		Music:    music{t: t, track: "song.mp3"},
		Weather:  weather{text: "☀️ +21°C"},
		News:     news{titles: []string{"One", "Two", "Three"}},
		Hardware: &hardware{t: t},
		Security: &securityFake{t: t},
		SavePhoto: func(image.Image, time.Time) (string, error) {
			t.add("save")
			return "/srv/photos/photo_1710000245.jpg", nil
		},
		Now: func() time.Time { return fixedNow },
	}
}
