package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mjamiv/plan-viz/internal/core/domain"
	"github.com/mjamiv/plan-viz/internal/infrastructure/resilience"
)

func TestPostJSONDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		_, _ = w.Write([]byte(`{"answer": 42}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, nil)
	var out struct {
		Answer int `json:"answer"`
	}
	if err := client.PostJSON(context.Background(), "/v1/echo", map[string]any{"q": 1}, &out, "test.echo"); err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if out.Answer != 42 {
		t.Fatalf("answer = %d", out.Answer)
	}
}

func TestPostJSONAuthSetsBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, nil)
	if err := client.PostJSONAuth(context.Background(), "/v1/chat", "sk-test", nil, nil, "test.auth"); err != nil {
		t.Fatalf("PostJSONAuth() error = %v", err)
	}
}

func TestUnauthorizedIsConfigurationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, nil)
	err := client.PostJSON(context.Background(), "/v1/chat", nil, nil, "test.auth")
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestServerErrorIsDependencyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, nil)
	err := client.PostJSON(context.Background(), "/v1/detect", nil, nil, "test.detect")
	if !domain.IsKind(err, domain.ErrDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestOpenCircuitIsDependencyError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	guard := resilience.NewGuard(resilience.Config{
		Enabled:      true,
		MinRequests:  1,
		FailureRatio: 0.1,
		OpenTimeout:  time.Minute,
	})
	client := NewClient(server.URL, guard)

	// Trip the breaker, then observe the short-circuited call.
	for i := 0; i < 3; i++ {
		_ = client.PostJSON(context.Background(), "/v1/detect", nil, nil, "test.breaker")
	}
	err := client.PostJSON(context.Background(), "/v1/detect", nil, nil, "test.breaker")
	if !domain.IsKind(err, domain.ErrDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}
