// Package mqtt receives PIR motion and DHT climate readings that the sensor
// boards publish to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

var ErrNoReading = errors.New("no fresh climate reading")

const (
	DefaultMaxAge       = 2 * time.Minute
	DefaultMotionMaxAge = 30 * time.Second
)

type Config struct {
	Broker       string
	ClientID     string
	Username     string
	Password     string
	MotionTopic  string
	ClimateTopic string
	// MaxAge is how old a cached climate reading may be before Read waits
	// for a new one.
	MaxAge time.Duration
	// MotionMaxAge bounds how old a motion event queued between two waits
	// may be and still end the next wait.
	MotionMaxAge time.Duration
}

// Reading is the payload published on the climate topic.
type Reading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// Sensors caches the latest climate reading and fans motion events out to
// WaitForMotion callers.
type Sensors struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	motion chan time.Time

	waitMu   sync.Mutex
	lastWait time.Time

	mu     sync.Mutex
	last   Reading
	lastAt time.Time
	fresh  chan struct{}
}

func New(cfg Config, logger *slog.Logger) *Sensors {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MotionMaxAge <= 0 {
		cfg.MotionMaxAge = DefaultMotionMaxAge
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "jarvis"
	}

	return &Sensors{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		motion: make(chan time.Time, 1),
		fresh:  make(chan struct{}),
	}
}

// Run connects to the broker and keeps the subscription alive until ctx is
// cancelled. autopaho reconnects and resubscribes in the background.
func (s *Sensors) Run(ctx context.Context) error {
	brokerURL, err := url.Parse(s.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: s.cfg.Username,
		ConnectPassword: []byte(s.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			s.logger.Info("mqtt connected to broker", "broker", s.cfg.Broker)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: s.subscriptions(),
			}); err != nil {
				s.logger.Error("mqtt subscribe failed", "err", err)
			}
		},
		OnConnectError: func(err error) {
			s.logger.Warn("mqtt connection error", "err", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: s.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					s.handle(pr.Packet.Topic, pr.Packet.Payload)
					return true, nil
				},
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil && ctx.Err() == nil {
		s.logger.Warn("mqtt initial connection timed out, will retry in background", "err", err)
	}

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := cm.Disconnect(stopCtx); err != nil {
		s.logger.Debug("mqtt disconnect", "err", err)
	}
	return nil
}

func (s *Sensors) subscriptions() []paho.SubscribeOptions {
	var subs []paho.SubscribeOptions
	for _, topic := range []string{s.cfg.MotionTopic, s.cfg.ClimateTopic} {
		if topic != "" {
			subs = append(subs, paho.SubscribeOptions{Topic: topic, QoS: 1})
		}
	}
	return subs
}

func (s *Sensors) handle(topic string, payload []byte) {
	switch topic {
	case s.cfg.MotionTopic:
		if !isMotion(payload) {
			return
		}
		s.logger.Debug("Motion reported", "topic", topic)
		at := s.now()
		// keep only the newest event
		select {
		case <-s.motion:
		default:
		}
		select {
		case s.motion <- at:
		default:
		}

	case s.cfg.ClimateTopic:
		var r Reading
		if err := json.Unmarshal(payload, &r); err != nil {
			s.logger.Warn("Bad climate payload", "payload", string(payload), "err", err)
			return
		}
		s.mu.Lock()
		s.last = r
		s.lastAt = s.now()
		close(s.fresh)
		s.fresh = make(chan struct{})
		s.mu.Unlock()

	default:
		s.logger.Debug("Ignoring mqtt message", "topic", topic)
	}
}

func isMotion(payload []byte) bool {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "1", "on", "true", "motion", "detected":
		return true
	default:
		return false
	}
}

// WaitForMotion blocks until the PIR sensor reports motion. An event queued
// since the previous WaitForMotion returned ends the wait at once if it is
// younger than MotionMaxAge, so movement during a detection cycle or its
// cooldown is not lost. Older events, and anything queued before the first
// wait, are discarded.
func (s *Sensors) WaitForMotion(ctx context.Context) error {
	s.waitMu.Lock()
	since := s.lastWait
	s.waitMu.Unlock()

	select {
	case at := <-s.motion:
		if !since.IsZero() && at.After(since) && s.now().Sub(at) <= s.cfg.MotionMaxAge {
			s.markWaited()
			return nil
		}
		s.logger.Debug("Dropping stale motion event", "at", at)
	default:
	}

	select {
	case <-s.motion:
		s.markWaited()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sensors) markWaited() {
	s.waitMu.Lock()
	s.lastWait = s.now()
	s.waitMu.Unlock()
}

// Read returns temperature and humidity. A cached reading younger than
// MaxAge is returned at once; otherwise Read waits for the next one until
// ctx is done.
func (s *Sensors) Read(ctx context.Context) (float64, float64, error) {
	s.mu.Lock()
	r, at, fresh := s.last, s.lastAt, s.fresh
	s.mu.Unlock()

	if !at.IsZero() && s.now().Sub(at) <= s.cfg.MaxAge {
		return r.Temperature, r.Humidity, nil
	}

	select {
	case <-fresh:
		s.mu.Lock()
		r = s.last
		s.mu.Unlock()
		return r.Temperature, r.Humidity, nil
	case <-ctx.Done():
		return 0, 0, fmt.Errorf("%w: %w", ErrNoReading, ctx.Err())
	}
}
