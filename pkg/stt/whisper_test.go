package stt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinSegments(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{" Turn on", "the lights. "}, "Turn on the lights."},
		{[]string{"[BLANK_AUDIO]"}, ""},
		{[]string{"(wind blowing)", " What time is it?", "  "}, "What time is it?"},
		{[]string{"[music] plays"}, "[music] plays"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, JoinSegments(tt.in), "%q", tt.in)
	}
}

func TestNewTranscriberEmptyPath(t *testing.T) {
	_, err := NewTranscriber("")
	assert.Error(t, err)
}
