package ipc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, h Handler) string {
	t.Helper()

	// unix socket paths are length limited, keep them short
	dir, err := os.MkdirTemp("", "jv")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "s")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(path, h, nil).Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("server did not stop")
		}
	})

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	return path
}

func TestSendSay(t *testing.T) {
	got := make(chan ControlMessage, 1)
	path := startServer(t, func(_ context.Context, msg ControlMessage) error {
		got <- msg
		return nil
	})

	require.NoError(t, Send(path, ControlMessage{Cmd: CmdSay, Text: "what time is it"}))
	assert.Equal(t, ControlMessage{Cmd: CmdSay, Text: "what time is it"}, <-got)
}

func TestSendHandlerError(t *testing.T) {
	path := startServer(t, func(context.Context, ControlMessage) error {
		return errors.New("unknown command \"dance\"")
	})

	err := Send(path, ControlMessage{Cmd: "dance"})
	assert.EqualError(t, err, "unknown command \"dance\"")
}

func TestSendNoDaemon(t *testing.T) {
	assert.Error(t, Send(filepath.Join(t.TempDir(), "missing.sock"), ControlMessage{Cmd: CmdSay}))
}

func TestSocketRemovedOnStop(t *testing.T) {
	dir, err := os.MkdirTemp("", "jv")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "s")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(path, func(context.Context, ControlMessage) error { return nil }, nil).Run(ctx) }()

	require.Eventually(t, func() bool { _, err := os.Stat(path); return err == nil }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.NoFileExists(t, path)
}
