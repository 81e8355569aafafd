package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/amimof/huego"

	"jarvis/pkg/protocol"
)

// Exchanger is the request/reply half of the hub protocol.
type Exchanger interface {
	TransmitReceive(ctx context.Context, v any) (*protocol.Message, error)
}

// HubLight switches a lamp owned by another shard on the hub,
// e.g. VERTEX:ON:LAMP:JARVIS.
type HubLight struct {
	link   Exchanger
	target string
	noun   string
}

func NewHubLight(link Exchanger, target, noun string) *HubLight {
	if target == "" {
		target = "VERTEX"
	}
	if noun == "" {
		noun = "LAMP"
	}
	return &HubLight{link: link, target: target, noun: noun}
}

func (l *HubLight) Set(ctx context.Context, on bool) error {
	verb := "OFF"
	if on {
		verb = "ON"
	}

	msg, err := l.link.TransmitReceive(ctx, []string{l.target, verb, l.noun})
	if err != nil {
		return fmt.Errorf("%s %s: %w", verb, l.noun, err)
	}
	if msg.Failed() {
		return fmt.Errorf("%s refused %s %s: %s", l.target, verb, l.noun, strings.Join(msg.Args, " "))
	}
	return nil
}

// HueLight switches a single Philips Hue light.
type HueLight struct {
	bridge *huego.Bridge
	id     int
}

func NewHueLight(host, user string, id int) *HueLight {
	return &HueLight{bridge: huego.New(host, user), id: id}
}

func (l *HueLight) Set(_ context.Context, on bool) error {
	light, err := l.bridge.GetLight(l.id)
	if err != nil {
		return fmt.Errorf("hue light %d: %w", l.id, err)
	}

	if on {
		err = light.On()
	} else {
		err = light.Off()
	}
	if err != nil {
		return fmt.Errorf("hue light %d: %w", l.id, err)
	}
	return nil
}
