package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_SendMessage(t *testing.T) {
	var (
		gotPath string
		gotBody sendMessageRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := NewClient("TOKEN", srv.URL)
	if err := c.SendMessage(context.Background(), "42", "hello"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if gotPath != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody.ChatID != "42" || gotBody.Text != "hello" || gotBody.ParseMode != "" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestClient_SendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`))
	}))
	defer srv.Close()

	err := NewClient("T", srv.URL).SendMessage(context.Background(), "1", "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("SendMessage() error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusTooManyRequests || apiErr.RetryAfter != 3*time.Second {
		t.Errorf("APIError = %+v", apiErr)
	}
	if !isRetryableError(err) {
		t.Errorf("429 should be retryable")
	}
}
