package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shaiso/Mailflow/internal/domain"
)

func callWithStatus(t *testing.T, status int) error {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	caller := NewHTTPWebhookCaller(srv.Client())
	return caller.Call(context.Background(), &domain.WebhookPayload{
		URL:    srv.URL,
		Method: http.MethodPost,
	})
}

func TestHTTPWebhookCaller_Success(t *testing.T) {
	if err := callWithStatus(t, http.StatusOK); err != nil {
		t.Errorf("2xx should succeed, got %v", err)
	}
}

func TestHTTPWebhookCaller_ServerErrorRetryable(t *testing.T) {
	err := callWithStatus(t, http.StatusBadGateway)
	if err == nil {
		t.Fatal("5xx should be an error")
	}
	if IsPermanent(err) {
		t.Errorf("5xx should stay retryable, got permanent: %v", err)
	}
}

func TestHTTPWebhookCaller_ClientErrorRetryable(t *testing.T) {
	// Принимающая сторона может починить и 4xx (истёкший токен, ещё не
	// созданный ресурс) — код статуса не терминализирует задание
	err := callWithStatus(t, http.StatusNotFound)
	if err == nil {
		t.Fatal("4xx should be an error")
	}
	if IsPermanent(err) {
		t.Errorf("4xx should stay retryable, got permanent: %v", err)
	}
}

func TestHTTPWebhookCaller_BadRequestPermanent(t *testing.T) {
	caller := NewHTTPWebhookCaller(nil)
	err := caller.Call(context.Background(), &domain.WebhookPayload{
		URL:    "http://localhost",
		Method: "bad method",
	})
	if !IsPermanent(err) {
		t.Errorf("unbuildable request should be permanent, got %v", err)
	}
}
