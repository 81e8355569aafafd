package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

const (
	clockLayout   = "03:04 PM"
	headlineCount = 3
	sensorTimeout = 10 * time.Second
)

var errNoHeadlines = errors.New("no headlines")

const noNewsPhrase = "Sorry, I couldn't fetch the news."

// noNews is implemented by News errors meaning the service answered but
// gave no articles, e.g. a rejected API key.
type noNews interface {
	NoNews() bool
}

func (d *Dispatcher) setLight(ctx context.Context, on bool) error {
	if d.Light == nil {
		return fmt.Errorf("light: %w", ErrNotConfigured)
	}

	if on {
		d.say("Turning on the light")
	} else {
		d.say("Turning off the light")
	}
	return d.Light.Set(ctx, on)
}

// lease takes the hardware lock when one is configured.
func (d *Dispatcher) lease(ctx context.Context) (func(), error) {
	if d.Hardware == nil {
		return func() {}, nil
	}
	return d.Hardware.Acquire(ctx)
}

func (d *Dispatcher) takePhoto(ctx context.Context) error {
	if d.Camera == nil || d.SavePhoto == nil {
		return fmt.Errorf("camera: %w", ErrNotConfigured)
	}

	d.say("Taking a photo")

	release, err := d.lease(ctx)
	if err != nil {
		return err
	}
	defer release()

	img, err := d.Camera.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	path, err := d.SavePhoto(img, d.Now())
	if err != nil {
		return fmt.Errorf("save photo: %w", err)
	}

	d.say("Photo saved as " + filepath.Base(path))
	return nil
}

func (d *Dispatcher) checkTemp(ctx context.Context) error {
	if d.Thermo == nil {
		return fmt.Errorf("thermometer: %w", ErrNotConfigured)
	}

	d.say("Reading temperature and humidity")

	release, err := d.lease(ctx)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, sensorTimeout)
	defer cancel()

	temp, hum, err := d.Thermo.Read(ctx)
	if err != nil {
		return err
	}

	d.say(fmt.Sprintf("Temperature is %.1f degrees, humidity %.1f percent", temp, hum))
	return nil
}

// activateSecurity arms the monitor in the background; the voice loop keeps
// running so the owner can disarm by voice.
func (d *Dispatcher) activateSecurity(ctx context.Context) error {
	if d.Security == nil {
		return fmt.Errorf("security: %w", ErrNotConfigured)
	}

	if d.Security.Armed() {
		d.say("Security is already active")
		return nil
	}

	d.say("Security mode activated - monitoring for motion")
	return d.Security.Arm(ctx)
}

func (d *Dispatcher) deactivateSecurity(context.Context) error {
	if d.Security == nil {
		return fmt.Errorf("security: %w", ErrNotConfigured)
	}

	if !d.Security.Disarm() {
		d.Logger.Debug("Security was not armed")
	}
	return nil
}

func (d *Dispatcher) tellTime(context.Context) error {
	d.say("The time is " + d.Now().Format(clockLayout))
	return nil
}

func (d *Dispatcher) tellWeather(ctx context.Context) error {
	if d.Weather == nil {
		return fmt.Errorf("weather: %w", ErrNotConfigured)
	}

	w, err := d.Weather.Current(ctx)
	if err != nil {
		return err
	}

	d.say("The current weather is " + w)
	return nil
}

func (d *Dispatcher) playMusic(context.Context) error {
	if d.Music == nil {
		return fmt.Errorf("music: %w", ErrNotConfigured)
	}

	track, err := d.Music.Play()
	if err != nil {
		return err
	}

	d.say("Playing " + track)
	return nil
}

func (d *Dispatcher) stopMusic(context.Context) error {
	if d.Music == nil {
		return fmt.Errorf("music: %w", ErrNotConfigured)
	}

	d.Music.Stop()
	d.say("Music stopped.")
	return nil
}

func (d *Dispatcher) tellNews(ctx context.Context) error {
	if d.News == nil {
		return fmt.Errorf("news: %w", ErrNotConfigured)
	}

	titles, err := d.News.Headlines(ctx, headlineCount)
	if err != nil {
		var nn noNews
		if errors.As(err, &nn) && nn.NoNews() {
			return failWith(noNewsPhrase, err)
		}
		return err
	}
	if len(titles) == 0 {
		return failWith(noNewsPhrase, errNoHeadlines)
	}

	d.say("Here are the latest news headlines.")
	for _, t := range titles {
		d.say(t)
	}
	return nil
}
