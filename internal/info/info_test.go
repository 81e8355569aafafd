package info

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("format"))
		w.Write([]byte("☀️   +21°C\n"))
	}))
	defer srv.Close()

	got, err := NewWeather(srv.URL+"/?format=1", srv.Client()).Current(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "☀️   +21°C", got)
}

func TestWeatherDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewWeather(srv.URL, srv.Client()).Current(t.Context())
	assert.ErrorContains(t, err, "502")
}

func TestHeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/top-headlines", r.URL.Path)
		assert.Equal(t, "gb", r.URL.Query().Get("country"))
		assert.Equal(t, "secret", r.URL.Query().Get("apiKey"))
		w.Write([]byte(`{"status":"ok","totalResults":4,"articles":[
			{"title":"One"},{"title":"Two"},{"title":" "},{"title":"Three"},{"title":"Four"}
		]}`))
	}))
	defer srv.Close()

	got, err := NewNews(srv.URL, "secret", "gb", srv.Client()).Headlines(t.Context(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"One", "Two", "Three"}, got)
}

func TestHeadlinesBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid"}`))
	}))
	defer srv.Close()

	_, err := NewNews(srv.URL, "bad", "", srv.Client()).Headlines(t.Context(), 3)
	assert.ErrorIs(t, err, ErrNewsStatus)
	assert.ErrorContains(t, err, "API key is invalid")
}

func TestHeadlinesRefusedWithHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid"}`))
	}))
	defer srv.Close()

	_, err := NewNews(srv.URL, "bad", "", srv.Client()).Headlines(t.Context(), 3)
	require.ErrorIs(t, err, ErrNewsStatus)

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, "apiKeyInvalid", status.Code)
	assert.True(t, status.NoNews())
}

func TestHeadlinesServerErrorIsNotRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := NewNews(srv.URL, "k", "", srv.Client()).Headlines(t.Context(), 3)
	assert.ErrorContains(t, err, "502")
	assert.NotErrorIs(t, err, ErrNewsStatus)
}

func TestHeadlinesMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":`))
	}))
	defer srv.Close()

	_, err := NewNews(srv.URL, "k", "", srv.Client()).Headlines(t.Context(), 3)
	assert.ErrorContains(t, err, "malformed")
}
