// Package inference is a thin JSON-over-HTTP client for external model
// servers (detection, layout, VLM backends). Calls run behind a circuit
// breaker; transport failures surface as dependency errors so the run
// ledger records them as failed runs instead of server errors.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/infrastructure/resilience"
)

const maxErrorBodyBytes = 4 << 10

type Client struct {
	baseURL    string
	httpClient *http.Client
	guard      *resilience.Guard
}

func NewClient(baseURL string, guard *resilience.Guard) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		guard:      guard,
	}
}

func (c *Client) Configured() bool { return c != nil && c.baseURL != "" }

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "inference status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("inference %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("inference %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func (c *Client) PostJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	return c.PostJSONAuth(ctx, path, "", payload, out, operation)
}

// PostJSONAuth is PostJSON with a bearer token attached, for backends that
// require credentials (OpenAI-compatible APIs).
func (c *Client) PostJSONAuth(ctx context.Context, path, bearer string, payload any, out any, operation string) error {
	call := func(ctx context.Context) error {
		return c.postOnce(ctx, path, bearer, payload, out, operation)
	}

	var err error
	if c.guard != nil {
		err = c.guard.Do(ctx, operation, call)
	} else {
		err = call(ctx)
	}
	return classify(operation, err)
}

func (c *Client) postOnce(ctx context.Context, path, bearer string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// classify maps transport failures to the error taxonomy: unauthorized
// responses are configuration problems, everything network-shaped is an
// unavailable dependency. Context cancellation passes through untouched.
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrDependency, operation, err)
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.WrapError(domain.ErrConfiguration, operation, err)
		default:
			return domain.WrapError(domain.ErrDependency, operation, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrDependency, operation, err)
	}
	if errors.Is(err, io.EOF) {
		return domain.WrapError(domain.ErrDependency, operation, err)
	}
	return err
}
