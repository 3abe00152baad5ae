package webhooks_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"gamevault/internal/webhooks"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	events []webhooks.Event
	err    error
}

func (f *fakeSubmitter) Submit(_ context.Context, evt webhooks.Event) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.events = append(f.events, evt)
	return uint64(len(f.events)), nil
}

func TestHTTPHandler(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		secret string
		body   string
		status int
		queued int
	}{
		{"accepted", "/games/update", "s3cret", `{"id":5,"name":"Celeste"}`, http.StatusOK, 1},
		{"wrong secret", "/games/update", "nope", `{"id":5}`, http.StatusUnauthorized, 0},
		{"missing secret", "/games/update", "", `{"id":5}`, http.StatusUnauthorized, 0},
		{"unknown method", "/games/patch", "s3cret", `{"id":5}`, http.StatusNotFound, 0},
		{"bad json", "/games/create", "s3cret", `{"id":`, http.StatusBadRequest, 0},
		{"too large", "/games/create", "s3cret", `{"name":"` + strings.Repeat("x", webhooks.MaxBodyBytes) + `"}`, http.StatusRequestEntityTooLarge, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{}
			h := webhooks.NewHTTPHandler("s3cret", sub, nil)
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			if tt.secret != "" {
				req.Header.Set(webhooks.SecretHeader, tt.secret)
			}
			rec := httptest.NewRecorder()
			h.Routes().ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if len(sub.events) != tt.queued {
				t.Fatalf("queued = %d, want %d", len(sub.events), tt.queued)
			}
		})
	}
}

func TestHTTPHandlerParsesMethodAndGame(t *testing.T) {
	sub := &fakeSubmitter{}
	h := webhooks.NewHTTPHandler("s3cret", sub, nil)
	req := httptest.NewRequest(http.MethodPost, "/games/delete", strings.NewReader(`{"id":77,"name":"Gone","updated_at":9}`))
	req.Header.Set(webhooks.SecretHeader, "s3cret")
	h.Routes().ServeHTTP(httptest.NewRecorder(), req)
	if len(sub.events) != 1 {
		t.Fatalf("events = %+v", sub.events)
	}
	evt := sub.events[0]
	if evt.Method != webhooks.MethodDelete || evt.Game.ID != 77 || evt.Game.UpdatedAt != 9 {
		t.Fatalf("event = %+v", evt)
	}
}

func TestHTTPHandlerUnavailableWhenStopped(t *testing.T) {
	sub := &fakeSubmitter{err: webhooks.ErrDispatcherStopped}
	h := webhooks.NewHTTPHandler("s3cret", sub, nil)
	req := httptest.NewRequest(http.MethodPost, "/games/update", strings.NewReader(`{"id":1}`))
	req.Header.Set(webhooks.SecretHeader, "s3cret")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

type registrarFunc func(ctx context.Context, endpoint, hookURL, method, secret string) error

func (f registrarFunc) RegisterWebhook(ctx context.Context, endpoint, hookURL, method, secret string) error {
	return f(ctx, endpoint, hookURL, method, secret)
}

func TestRegisterEveryMethod(t *testing.T) {
	var urls []string
	err := webhooks.Register(context.Background(), registrarFunc(func(_ context.Context, endpoint, hookURL, _, secret string) error {
		if endpoint != "games" || secret != "s3cret" {
			t.Errorf("endpoint=%q secret=%q", endpoint, secret)
		}
		urls = append(urls, hookURL)
		return nil
	}), "https://vault.example/", "s3cret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	want := "https://vault.example/webhooks/games/create,https://vault.example/webhooks/games/update,https://vault.example/webhooks/games/delete"
	if got := strings.Join(urls, ","); got != want {
		t.Fatalf("urls = %s", got)
	}
	if err := webhooks.Register(context.Background(), nil, "", "x"); err == nil {
		t.Fatal("expected error without public url")
	}
}
