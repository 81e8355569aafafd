// Package vision talks to the object-detection and face-recognition
// services. Both take a JPEG body and answer with JSON.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"jarvis/internal/security"
)

const DefaultTimeout = 10 * time.Second

type Config struct {
	DetectorURL string
	FaceURL     string
	Timeout     time.Duration
	// MinConfidence drops weaker detections. Zero keeps everything.
	MinConfidence float64
	HTTPClient    *http.Client
}

type client struct {
	http    *http.Client
	timeout time.Duration
}

func newClient(cfg Config) client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return client{http: hc, timeout: timeout}
}

// post sends img as JPEG to url and decodes the JSON reply into out.
func (c client) post(ctx context.Context, url string, img image.Image, out any) error {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s: %s", url, resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s reply: %w", url, err)
	}
	return nil
}

// Detector finds labelled objects in a frame.
type Detector struct {
	client
	url           string
	minConfidence float64
}

func NewDetector(cfg Config) *Detector {
	return &Detector{
		client:        newClient(cfg),
		url:           strings.TrimRight(cfg.DetectorURL, "/") + "/detect",
		minConfidence: cfg.MinConfidence,
	}
}

type detectReply struct {
	Detections []struct {
		Label      string  `json:"label"`
		Box        [4]int  `json:"box"`
		Confidence float64 `json:"confidence"`
	} `json:"detections"`
}

func (d *Detector) Detect(ctx context.Context, frame image.Image) ([]security.Detection, error) {
	var reply detectReply
	if err := d.post(ctx, d.url, frame, &reply); err != nil {
		return nil, err
	}

	out := make([]security.Detection, 0, len(reply.Detections))
	for _, det := range reply.Detections {
		if det.Confidence < d.minConfidence {
			continue
		}
		out = append(out, security.Detection{
			Label:      det.Label,
			Box:        security.BBox{X1: det.Box[0], Y1: det.Box[1], X2: det.Box[2], Y2: det.Box[3]},
			Confidence: det.Confidence,
		})
	}
	return out, nil
}

// FaceMatcher asks the face service whether a crop shows a known resident.
type FaceMatcher struct {
	client
	url string
}

func NewFaceMatcher(cfg Config) *FaceMatcher {
	return &FaceMatcher{
		client: newClient(cfg),
		url:    strings.TrimRight(cfg.FaceURL, "/") + "/match",
	}
}

func (f *FaceMatcher) Match(ctx context.Context, img image.Image) (bool, error) {
	var reply struct {
		Match bool `json:"match"`
	}
	if err := f.post(ctx, f.url, img, &reply); err != nil {
		return false, err
	}
	return reply.Match, nil
}
