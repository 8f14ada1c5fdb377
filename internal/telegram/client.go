// Package telegram отправляет отчёты в чат через Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// MessageClient - то, что нужно отправителю от Bot API.
type MessageClient interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// APIError - отказ Bot API с кодом и описанием.
type APIError struct {
	Status      int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram api status %d", e.Status)
	}
	return fmt.Sprintf("telegram api status %d: %s", e.Status, e.Description)
}

// Client инкапсулирует работу с Telegram Bot API.
type Client struct {
	client *http.Client
	apiURL string
}

var _ MessageClient = (*Client)(nil)

// NewClient создаёт клиента. baseURL пуст - используется api.telegram.org.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultAPIBase
	}
	return &Client{
		client: &http.Client{Timeout: 15 * time.Second},
		apiURL: strings.TrimRight(baseURL, "/") + "/bot" + token,
	}
}

// SendMessage отправляет текстовое сообщение без разметки.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	return c.post(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
}

func (c *Client) post(ctx context.Context, method string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var out apiResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode >= 400 || !out.OK {
		apiErr := &APIError{Status: resp.StatusCode, Description: out.Description}
		if out.Parameters != nil && out.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(out.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	return nil
}
