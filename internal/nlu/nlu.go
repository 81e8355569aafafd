package nlu

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var (
	ErrTimeout     = errors.New("completion timed out")
	ErrUnavailable = errors.New("language model unavailable")
)

// FallbackReply stands in for the completion when the model cannot be
// reached. Parse turns it into a GeneralResponse.
const FallbackReply = "Sorry, I couldn't process that"

const SystemPrompt = `You are JARVIS, a home AI assistant. Your task is to:
1. Understand user requests about home control
2. Respond with JUST ONE of these action tags:
   - LIGHT_ON
   - LIGHT_OFF
   - TAKE_PHOTO
   - CHECK_TEMP
   - ACTIVATE_SECURITY
   - DEACTIVATE_SECURITY
   - TELL_TIME
   - TELL_WEATHER
   - PLAY_MUSIC
   - STOP_MUSIC
   - TELL_NEWS
   - GENERAL_RESPONSE (for chats)
3. Then provide a brief natural response

Example:
User: "It's dark in here"
Response: "<LIGHT_ON>Let me turn on the lights for you</LIGHT_ON>"
`

// stops mirror the stop sequences llama.cpp chat templates emit.
var stops = []string{"</s>", "\n"}

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int64
	Temperature float64
	HTTPClient  *http.Client
}

// Client talks to an OpenAI-compatible chat endpoint, typically the local
// llama-server.
type Client struct {
	api         openai.Client
	model       string
	timeout     time.Duration
	maxTokens   int64
	temperature float64
}

func NewClient(cfg Config) *Client {
	key := cfg.APIKey
	if key == "" {
		// llama-server ignores the key but the SDK insists on one
		key = "sk-no-key"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 128
	}

	return &Client{
		api:         openai.NewClient(opts...),
		model:       cfg.Model,
		timeout:     timeout,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// Complete returns the model's raw reply for one turn. Failures are reported
// as ErrTimeout or ErrUnavailable.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       openai.ChatModel(c.model),
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		return "", fmt.Errorf("%w: chat completion: %v", ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrUnavailable)
	}

	content := cutAtStops(resp.Choices[0].Message.Content)

	log.Debug("Completion", "raw", content)

	return content, nil
}

func cutAtStops(s string) string {
	s = strings.TrimSpace(s)
	for _, stop := range stops {
		if i := strings.Index(s, stop); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSpace(s)
}
