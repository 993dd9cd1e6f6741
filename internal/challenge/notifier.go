package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Delivery is one challenge addressed to one recipient. ID is stable across
// retries so receivers can drop duplicates.
type Delivery struct {
	ID     string `json:"delivery_id"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Notifier sends a single delivery.
type Notifier interface {
	Notify(ctx context.Context, d Delivery) error
}

// PermanentError marks a delivery failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err's chain contains a PermanentError.
func IsPermanent(err error) bool {
	var target *PermanentError
	return errors.As(err, &target)
}

// HTTPNotifier POSTs each delivery as JSON to a fixed URL.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

// NewHTTPNotifier creates a notifier posting to url. A nil client gets one
// with the given timeout.
func NewHTTPNotifier(url string, client *http.Client, timeout time.Duration) *HTTPNotifier {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPNotifier{url: url, client: client}
}

// Notify implements Notifier. 4xx responses are permanent; 5xx and transport
// errors are retryable.
func (n *HTTPNotifier) Notify(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("failed to encode delivery: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", d.ID)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify %s: %w", d.UserID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return &PermanentError{Err: fmt.Errorf("notify %s: status %d", d.UserID, resp.StatusCode)}
	default:
		return fmt.Errorf("notify %s: status %d", d.UserID, resp.StatusCode)
	}
}
