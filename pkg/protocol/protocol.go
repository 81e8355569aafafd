package protocol

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
)

var ErrTimeout = errors.New("hub reply timed out")

type PtclConfig struct {
	Shard   string
	Url     string
	Reconn  uint
	Timeout time.Duration
	EmitOut func(*Message)
}

// Protocol speaks the hub's colon-separated frames: TO:VERB:NOUN[:ARGS...]:FROM.
// Replies to TransmitReceive are routed to the single waiter; everything else
// goes to EmitOut.
type Protocol struct {
	ws *WebSocket

	shard   string
	timeout time.Duration

	txMu sync.Mutex

	waiterMu sync.Mutex
	waiter   chan *Message

	emitOut func(*Message)
}

func NewProtocol(cfg PtclConfig) (*Protocol, error) {
	ws, err := NewWebSocket(cfg.Url, cfg.Reconn, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("hub dial: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Protocol{
		shard:   cfg.Shard,
		ws:      ws,
		timeout: timeout,
		emitOut: cfg.EmitOut,
	}, nil
}

func (ptcl *Protocol) EmitOut(f func(*Message)) {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	ptcl.emitOut = f
}

// TransmitReceive sends v and waits for the next frame addressed to this
// shard. Only one exchange runs at a time.
func (ptcl *Protocol) TransmitReceive(ctx context.Context, v any) (*Message, error) {
	ptcl.txMu.Lock()
	defer ptcl.txMu.Unlock()

	w := ptcl.installWaiter()
	defer ptcl.clearWaiter()

	if err := ptcl.Transmit(v); err != nil {
		return nil, err
	}

	timer := time.NewTimer(ptcl.timeout)
	defer timer.Stop()

	select {
	case msg := <-w:
		return msg, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (ptcl *Protocol) Transmit(v any) error {
	msg, err := ptcl.encode(v)
	if err != nil {
		return err
	}

	if err := ptcl.ws.Write([]byte(msg)); err != nil {
		log.Error("Failed to transmit", "msg", msg, "err", err)
		return fmt.Errorf("hub write: %w", err)
	}
	return nil
}

func (ptcl *Protocol) encode(v any) (string, error) {
	switch m := v.(type) {
	case Message:
		m.From = ptcl.shard
		return m.String(), nil
	case *Message:
		c := *m
		c.From = ptcl.shard
		return c.String(), nil
	case string:
		return fmt.Sprintf("%s:%s", m, ptcl.shard), nil
	case []string:
		return fmt.Sprintf("%s:%s", strings.Join(m, ":"), ptcl.shard), nil
	default:
		return "", fmt.Errorf("unsupported frame type %T", v)
	}
}

// Run reads frames until ctx is done, reconnecting on close.
func (ptcl *Protocol) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		ptcl.ws.Close()
	}()

	for ctx.Err() == nil {
		in := ptcl.ws.Read()
		switch in.kind {
		case CONN_CLOSE, READ_FAILURE:
			if ctx.Err() != nil {
				return
			}
			if in.kind == READ_FAILURE {
				log.Error("Failed to read", "err", in.err)
			}
			log.Warn("Trying to reconnect on", "url", ptcl.ws.url)
			ptcl.ws.TryReconn(ctx)
			log.Info("Reconnected to hub")

		case READ_OK:
			ptcl.route(in.msg)
		}
	}
}

func (ptcl *Protocol) route(raw []byte) {
	if !ptcl.checkRecipient(raw) {
		return
	}

	msg, err := Parse(string(raw))
	if err != nil {
		log.Warn("Failed to parse", "msg", string(raw), "err", err)
		return
	}

	w, emit := ptcl.currentWaiter()
	if w != nil {
		select {
		case w <- msg:
			return
		default:
		}
	}
	if emit != nil {
		emit(msg)
	}
}

func (ptcl *Protocol) installWaiter() chan *Message {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	ptcl.waiter = make(chan *Message, 1)
	return ptcl.waiter
}

func (ptcl *Protocol) clearWaiter() {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	ptcl.waiter = nil
}

func (ptcl *Protocol) currentWaiter() (chan *Message, func(*Message)) {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	return ptcl.waiter, ptcl.emitOut
}

func (ptcl *Protocol) checkRecipient(msg []byte) bool {
	to := strings.Split(string(msg), ":")[0]
	return to == ptcl.shard || to == "ALL"
}

func Parse(line string) (*Message, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, errors.New("empty message")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		// frames are single-line tokens
		return nil, fmt.Errorf("invalid whitespace present")
	}
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return nil, fmt.Errorf("too few fields: got %d, want >= 4", len(parts))
	}

	to := parts[0]
	verb := parts[1]
	noun := parts[2]
	from := parts[len(parts)-1]
	args := append([]string(nil), parts[3:len(parts)-1]...)

	if !isToken(to) && !isHexID(to) && to != "ALL" {
		return nil, fmt.Errorf("invalid TO token: %q", to)
	}
	if !isToken(from) && !isHexID(from) {
		return nil, fmt.Errorf("invalid FROM token: %q", from)
	}
	if !isToken(noun) || !isToken(verb) {
		return nil, fmt.Errorf("invalid NOUN/VERB: %q %q", noun, verb)
	}
	for i, a := range args {
		if !isToken(a) {
			return nil, fmt.Errorf("invalid ARG[%d]: %q", i, a)
		}
	}

	return &Message{
		To:   to,
		Verb: strings.ToUpper(verb),
		Noun: strings.ToUpper(noun),
		Args: args,
		From: from,
	}, nil
}

var (
	tokenRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	hexIDRe = regexp.MustCompile(`^[0-9A-F]{2}$`)
)

func isToken(s string) bool {
	return tokenRe.MatchString(s)
}

func isHexID(s string) bool {
	return hexIDRe.MatchString(strings.ToUpper(s))
}

type Message struct {
	To   string
	Verb string
	Noun string
	Args []string
	From string
}

func (m *Message) String() string {
	parts := make([]string, 0, 4+len(m.Args))
	parts = append(parts, m.To, m.Verb, m.Noun)
	parts = append(parts, m.Args...)
	parts = append(parts, m.From)
	return strings.Join(parts, ":")
}

// Failed reports whether the frame is an ERR reply.
func (m *Message) Failed() bool {
	return m.Verb == "ERR"
}
