package server

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeProxy struct{ called bool }

func (f *fakeProxy) Handle(c fiber.Ctx) error {
	f.called = true
	return c.SendString("ok")
}

type fakeStatus struct{}

func (fakeStatus) Status() fiber.Map { return fiber.Map{"ok": true} }

type fakeLevel struct{ last string }

func (f *fakeLevel) Level() string {
	if f.last == "" {
		return "info"
	}
	return f.last
}

func (f *fakeLevel) SetLevel(level string) error {
	f.last = level
	return nil
}

func TestNewAppRejectsMissingLogger(t *testing.T) {
	_, err := NewApp(AppOptions{Proxy: &fakeProxy{}, ListenPort: 8000})
	if err == nil {
		t.Fatalf("expected error for missing logger")
	}
}

func TestNewAppRejectsMissingProxy(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewApp(AppOptions{Logger: logger, ListenPort: 8000})
	if err == nil {
		t.Fatalf("expected error for missing proxy")
	}
}

func TestAppDispatchesToProxyAndStampsRequestID(t *testing.T) {
	logger, _ := test.NewNullLogger()
	proxy := &fakeProxy{}
	app, err := NewApp(AppOptions{Logger: logger, Proxy: proxy, ListenPort: 8000})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	req := httptest.NewRequest("GET", "/artifact/deadbeef", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if !proxy.called {
		t.Fatalf("expected proxy handler to be invoked")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestAppStatusRouteWithoutAuth(t *testing.T) {
	logger, _ := test.NewNullLogger()
	app, err := NewApp(AppOptions{Logger: logger, Proxy: &fakeProxy{}, Status: fakeStatus{}, ListenPort: 8000})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	req := httptest.NewRequest("GET", "/-/status", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAppStatusRouteRequiresAuthWhenConfigured(t *testing.T) {
	logger, _ := test.NewNullLogger()
	app, err := NewApp(AppOptions{
		Logger:        logger,
		Proxy:         &fakeProxy{},
		Status:        fakeStatus{},
		ListenPort:    8000,
		AdminUsername: "admin",
		AdminPassword: "secret",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	req := httptest.NewRequest("GET", "/-/status", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest("GET", "/-/status", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 with credentials, got %d", resp.StatusCode)
	}
}

func TestAppLogLevelRouteAppliesLevel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	level := &fakeLevel{}
	app, err := NewApp(AppOptions{Logger: logger, Proxy: &fakeProxy{}, Level: level, ListenPort: 8000})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	req := httptest.NewRequest("PUT", "/-/loglevel?level=debug", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if level.last != "debug" {
		t.Fatalf("expected level to be applied, got %q", level.last)
	}
}

func TestAppLogLevelRouteReportsCurrentLevel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	level := &fakeLevel{last: "warn"}
	app, err := NewApp(AppOptions{Logger: logger, Proxy: &fakeProxy{}, Level: level, ListenPort: 8000})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	req := httptest.NewRequest("GET", "/-/loglevel", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `"level":"warn"`) {
		t.Fatalf("expected current level warn in body, got %s", body)
	}
}
