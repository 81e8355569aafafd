package nlu

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, content string, delay time.Duration) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tinyllama", body["model"])

		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "tinyllama",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Complete(t *testing.T) {
	srv := completionServer(t, "  <LIGHT_ON>Turning on the lights now</LIGHT_ON>\nUser: more", 0)

	c := NewClient(Config{BaseURL: srv.URL + "/v1/", Model: "tinyllama", Timeout: 5 * time.Second})
	out, err := c.Complete(t.Context(), SystemPrompt, "turn on the lights")

	require.NoError(t, err)
	assert.Equal(t, "<LIGHT_ON>Turning on the lights now</LIGHT_ON>", out)
}

func TestClient_CompleteTimeout(t *testing.T) {
	srv := completionServer(t, "late", 2*time.Second)

	c := NewClient(Config{BaseURL: srv.URL + "/v1/", Model: "tinyllama", Timeout: 50 * time.Millisecond})
	_, err := c.Complete(t.Context(), SystemPrompt, "hello")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClient_CompleteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"loading model"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/v1/", Model: "tinyllama", Timeout: 5 * time.Second})
	_, err := c.Complete(t.Context(), SystemPrompt, "hello")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCutAtStops(t *testing.T) {
	assert.Equal(t, "<TELL_TIME>Sure</TELL_TIME>", cutAtStops("<TELL_TIME>Sure</TELL_TIME></s>junk"))
	assert.Equal(t, "first", cutAtStops("first\nsecond"))
	assert.Equal(t, "", cutAtStops("   "))
}
