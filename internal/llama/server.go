// Package llama supervises the local llama-server process that backs the
// language model.
package llama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

var ErrExited = errors.New("llama-server exited")

const (
	DefaultPort           = 8080
	DefaultThreads        = 4
	DefaultStartupTimeout = 90 * time.Second

	stopGrace = 10 * time.Second
)

type Config struct {
	Binary         string
	ModelPath      string
	Port           int
	Threads        int
	StartupTimeout time.Duration
	Logger         *slog.Logger
}

// Backoff is the readiness probe schedule.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

var defaultBackoff = Backoff{Initial: 250 * time.Millisecond, Max: 4 * time.Second}

type Server struct {
	cfg     Config
	logger  *slog.Logger
	client  *http.Client
	backoff Backoff

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

func New(cfg Config) *Server {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Threads <= 0 {
		cfg.Threads = DefaultThreads
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: 2 * time.Second},
		backoff: defaultBackoff,
	}
}

// BaseURL is the OpenAI-compatible root the nlu client should use.
func (s *Server) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/v1", s.cfg.Port)
}

func (s *Server) healthURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/health", s.cfg.Port)
}

func (s *Server) Args() []string {
	return []string{
		"-m", s.cfg.ModelPath,
		"--port", strconv.Itoa(s.cfg.Port),
		"--threads", strconv.Itoa(s.cfg.Threads),
	}
}

// Start launches llama-server and blocks until it answers its health check,
// the process dies or the startup timeout passes.
func (s *Server) Start(ctx context.Context) error {
	if err := s.spawn(s.cfg.Binary, s.Args()...); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	if err := s.waitReady(ctx, s.healthURL()); err != nil {
		s.Stop(context.Background())
		return err
	}

	s.logger.Info("llama-server ready", "url", s.BaseURL())
	return nil
}

func (s *Server) spawn(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	s.logger.Info("Starting llama-server", "bin", name, "args", args)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start llama-server: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		s.logger.Debug("llama-server exited", "err", err)
		close(exited)
	}()

	s.mu.Lock()
	s.cmd, s.exited = cmd, exited
	s.mu.Unlock()
	return nil
}

func (s *Server) waitReady(ctx context.Context, url string) error {
	s.mu.Lock()
	exited := s.exited
	s.mu.Unlock()

	delay := s.backoff.Initial
	for attempt := 1; ; attempt++ {
		err := s.probe(ctx, url)
		if err == nil {
			return nil
		}

		s.logger.Debug("llama-server not ready", "attempt", attempt, "next_delay", delay, "err", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("llama-server readiness: %w", ctx.Err())
		case <-exited:
			return ErrExited
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.backoff.Max {
			delay = s.backoff.Max
		}
	}
}

func (s *Server) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health: %s", resp.Status)
	}
	return nil
}

// Stop sends SIGINT and waits for the process to exit, killing it if it is
// still around after the grace period or when ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	cmd, exited := s.cmd, s.exited
	s.cmd = nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("Failed to interrupt llama-server", "err", err)
	}

	grace := time.NewTimer(stopGrace)
	defer grace.Stop()

	select {
	case <-exited:
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	s.logger.Warn("llama-server did not stop, killing")
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill llama-server: %w", err)
	}
	<-exited
	return nil
}
