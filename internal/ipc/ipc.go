// Package ipc is the local control socket jarvis-ctl talks to. Each
// connection carries one JSON ControlMessage and gets one JSON Reply.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

const DefaultSocketPath = "/tmp/jarvis.sock"

const (
	CmdSay   = "say"   // Text is handled as if spoken
	CmdAudio = "audio" // Path names an audio file to transcribe
)

type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
}

type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type Handler func(ctx context.Context, msg ControlMessage) error

type Server struct {
	path    string
	handler Handler
	logger  *slog.Logger
}

func NewServer(path string, handler Handler, logger *slog.Logger) *Server {
	if path == "" {
		path = DefaultSocketPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{path: path, handler: handler, logger: logger}
}

// Run serves the socket until ctx is cancelled and removes it on exit.
func (s *Server) Run(ctx context.Context) error {
	os.Remove(s.path)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", s.path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer os.Remove(s.path)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info("Control socket ready", "path", s.path)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warn("Failed to accept", "err", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		s.logger.Warn("Bad control message", "err", err)
		return
	}

	s.logger.Debug("Control message", "cmd", msg.Cmd)

	reply := Reply{OK: true}
	if err := s.handler(ctx, msg); err != nil {
		reply = Reply{Error: err.Error()}
	}

	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		s.logger.Debug("Failed to reply", "err", err)
	}
}

// Send delivers msg to the daemon at path and waits for its reply.
func Send(path string, msg ControlMessage) error {
	if path == "" {
		path = DefaultSocketPath
	}

	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return err
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if !reply.OK {
		return errors.New(reply.Error)
	}
	return nil
}
