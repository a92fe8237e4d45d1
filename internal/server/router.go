package server

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/basicauth"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler describes the component responsible for classifying and
// serving one inbound request. It allows injecting a fake handler in tests.
type ProxyHandler interface {
	Handle(fiber.Ctx) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// StatusReporter supplies the admin /-/status payload.
type StatusReporter interface {
	Status() fiber.Map
}

// LevelSetter reads and applies the runtime log level, backing /-/loglevel.
type LevelSetter interface {
	Level() string
	SetLevel(level string) error
}

// AppOptions controls how the Fiber application is assembled.
type AppOptions struct {
	Logger     *logrus.Logger
	Proxy      ProxyHandler
	Status     StatusReporter
	Level      LevelSetter
	ListenPort int

	// AdminUsername/AdminPassword gate the /-/ admin routes. Both empty
	// disables admin auth entirely (spec's external-collaborator carve-out);
	// config validation enforces both-or-neither.
	AdminUsername string
	AdminPassword string
}

const contextKeyRequestID = "_anyhub_request_id"

// NewApp builds the Fiber application: recover + request-ID middleware,
// the admin surface, and the front door on everything else.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	registerAdminRoutes(app, opts)

	app.All("/*", func(c fiber.Ctx) error {
		return opts.Proxy.Handle(c)
	})

	return app, nil
}

// requestIDMiddleware stamps every request with an X-Request-ID, generating
// one when the client did not supply it.
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := string(c.Request().Header.Peek("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stamped by requestIDMiddleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// registerAdminRoutes wires the admin surface named in the supplemented
// features: /-/status reports engine/convergence state, /-/loglevel adjusts
// the runtime log level. Both sit behind HTTP basic auth when configured.
func registerAdminRoutes(app *fiber.App, opts AppOptions) {
	admin := app.Group("/-")
	if opts.AdminUsername != "" && opts.AdminPassword != "" {
		admin.Use(basicauth.New(basicauth.Config{
			Authorizer: func(user, pass string, _ fiber.Ctx) bool {
				userOK := subtle.ConstantTimeCompare([]byte(user), []byte(opts.AdminUsername)) == 1
				passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(opts.AdminPassword)) == 1
				return userOK && passOK
			},
		}))
	}

	admin.Get("/status", func(c fiber.Ctx) error {
		if opts.Status == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "status unavailable"})
		}
		return c.JSON(opts.Status.Status())
	})

	admin.Get("/loglevel", func(c fiber.Ctx) error {
		if opts.Level == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "loglevel unavailable"})
		}
		return c.JSON(fiber.Map{"level": opts.Level.Level()})
	})

	admin.Put("/loglevel", func(c fiber.Ctx) error {
		if opts.Level == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "loglevel unavailable"})
		}
		level := string(c.Request().PostArgs().Peek("level"))
		if level == "" {
			level = c.Query("level")
		}
		if err := opts.Level.SetLevel(level); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"level": level})
	})
}
