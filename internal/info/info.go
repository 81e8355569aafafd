// Package info fetches the weather and news headlines JARVIS reads out.
package info

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultWeatherURL = "https://wttr.in/?format=1"
	DefaultNewsURL    = "https://newsapi.org"

	requestTimeout = 5 * time.Second
)

var ErrNewsStatus = errors.New("news service returned no articles")

// StatusError is newsapi's own refusal, e.g. code "apiKeyInvalid". It
// matches ErrNewsStatus.
type StatusError struct {
	Status  string
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %q code %q: %s", ErrNewsStatus, e.Status, e.Code, e.Message)
}

func (e *StatusError) Is(target error) bool { return target == ErrNewsStatus }

// NoNews reports that the service answered but had no articles to give.
func (e *StatusError) NoNews() bool { return true }

func statusError(res gjson.Result) *StatusError {
	return &StatusError{
		Status:  res.Get("status").String(),
		Code:    res.Get("code").String(),
		Message: res.Get("message").String(),
	}
}

func get(ctx context.Context, client *http.Client, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return body, fmt.Errorf("GET %s: %s", req.URL.Host, resp.Status)
	}
	return body, nil
}

type Weather struct {
	url    string
	client *http.Client
}

func NewWeather(u string, client *http.Client) *Weather {
	if u == "" {
		u = DefaultWeatherURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Weather{url: u, client: client}
}

// Current returns wttr.in's one-line summary, e.g. "☀️ +21°C".
func (w *Weather) Current(ctx context.Context) (string, error) {
	body, err := get(ctx, w.client, w.url)
	if err != nil {
		return "", fmt.Errorf("weather: %w", err)
	}
	return strings.TrimSpace(string(body)), nil
}

type News struct {
	base    string
	apiKey  string
	country string
	client  *http.Client
}

func NewNews(base, apiKey, country string, client *http.Client) *News {
	if base == "" {
		base = DefaultNewsURL
	}
	if country == "" {
		country = "us"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &News{base: strings.TrimRight(base, "/"), apiKey: apiKey, country: country, client: client}
}

// Headlines returns up to n top headline titles.
func (n *News) Headlines(ctx context.Context, limit int) ([]string, error) {
	q := url.Values{}
	q.Set("country", n.country)
	q.Set("apiKey", n.apiKey)

	body, err := get(ctx, n.client, n.base+"/v2/top-headlines?"+q.Encode())
	if err != nil {
		// newsapi explains 4xx replies in a status:"error" body
		if gjson.ValidBytes(body) {
			if res := gjson.ParseBytes(body); res.Get("status").String() == "error" {
				return nil, statusError(res)
			}
		}
		return nil, fmt.Errorf("news: %w", err)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("news: malformed reply")
	}

	res := gjson.ParseBytes(body)
	if res.Get("status").String() != "ok" || !res.Get("articles").Exists() {
		return nil, statusError(res)
	}

	var titles []string
	for _, t := range res.Get("articles.#.title").Array() {
		if len(titles) == limit {
			break
		}
		if s := strings.TrimSpace(t.String()); s != "" {
			titles = append(titles, s)
		}
	}
	return titles, nil
}
