package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	retryAttempts = 3
	retryDelay    = 2 * time.Second
	maxRetryDelay = 10 * time.Second
	// Пауза между сообщениями одного отчёта.
	messageDelay = time.Second / 30
)

// Sender отправляет сообщения отчёта в один чат.
type Sender struct {
	client MessageClient
	chatID string
	delay  time.Duration
	log    zerolog.Logger
}

// NewSender создаёт отправителя в chatID.
func NewSender(client MessageClient, chatID string, log zerolog.Logger) *Sender {
	return &Sender{client: client, chatID: chatID, delay: retryDelay, log: log}
}

// Send отправляет сообщения по порядку. Первое неотправленное сообщение
// прерывает отправку: отчёт без начала бессмыслен.
func (s *Sender) Send(ctx context.Context, messages []string) error {
	if s.chatID == "" {
		return errors.New("chat_id is empty")
	}
	if len(messages) == 0 {
		return errors.New("no messages to send")
	}

	for i, msg := range messages {
		if i > 0 {
			if err := sleep(ctx, messageDelay); err != nil {
				return err
			}
		}
		if err := s.sendWithRetry(ctx, msg); err != nil {
			return fmt.Errorf("send message %d/%d: %w", i+1, len(messages), err)
		}
	}

	s.log.Info().Int("messages", len(messages)).Msg("report sent")
	return nil
}

func (s *Sender) sendWithRetry(ctx context.Context, message string) error {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			delay := min(s.delay*time.Duration(attempt), maxRetryDelay)
			var apiErr *APIError
			if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > delay {
				delay = apiErr.RetryAfter
			}
			s.log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("wait", delay).Msg("send failed, retrying")
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		err := s.client.SendMessage(ctx, s.chatID, message)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// isRetryableError: 429 и 5xx повторяются, прочие отказы API - нет.
// Сетевые ошибки повторяются.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"chat not found", "bot was blocked", "user is deactivated", "message is too long"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	return true
}
