// Package notify reaches the owner: a chime in the room and Telegram alerts
// to their phone.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const photoName = "intruder.jpg"

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends an alert text followed by the captured frame.
type Telegram struct {
	bot    sender
	chatID int64
}

func NewTelegram(token string, chatID int64, client *http.Client) (*Telegram, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}

	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Notify(ctx context.Context, frame image.Image, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, "🚨 "+text)); err != nil {
		return fmt.Errorf("telegram message: %w", err)
	}

	if frame == nil {
		return nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("encode alert photo: %w", err)
	}

	photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileBytes{Name: photoName, Bytes: buf.Bytes()})
	if _, err := t.bot.Send(photo); err != nil {
		return fmt.Errorf("telegram photo: %w", err)
	}
	return nil
}

// Log is the notifier used when Telegram is not configured.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(_ context.Context, frame image.Image, text string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{"text", text}
	if frame != nil {
		attrs = append(attrs, "frame", frame.Bounds().Size())
	}
	logger.Warn("Security alert", attrs...)
	return nil
}
