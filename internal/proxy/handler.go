package proxy

import (
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-hub/internal/cache"
	"github.com/any-hub/any-hub/internal/fetch"
	"github.com/any-hub/any-hub/internal/logging"
	"github.com/any-hub/any-hub/internal/resource"
)

// Handler is the Fiber-facing front door: classify → fetch → stream.
type Handler struct {
	store  cache.Store
	engine *fetch.Engine
	logger *logrus.Logger
}

// NewHandler builds a front door over a shared cache store, fetch engine,
// and logger.
func NewHandler(store cache.Store, engine *fetch.Engine, logger *logrus.Logger) *Handler {
	return &Handler{store: store, engine: engine, logger: logger}
}

// Handle serves one inbound request: classify the target, resolve it to a
// local path, then stream it.
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	target := string(c.Request().URI().Path())

	res, ok := resource.Classify(target)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound)
	}

	// /registries is mutable, republished by the convergence loop on its own
	// cadence — it is never fetched from upstream here.
	var path string
	if res.Kind == resource.KindRegistries {
		path = res.Path
	} else {
		fetched, ok := h.engine.Fetch(c.Context(), res.Path, nil)
		if !ok {
			h.logResult(res.Path, "", false, started, fiber.StatusNotFound, nil)
			return fiber.NewError(fiber.StatusNotFound)
		}
		path = fetched
	}

	reader, size, err := h.store.Open(path)
	if err != nil {
		h.logResult(res.Path, "", true, started, fiber.StatusNotFound, err)
		return fiber.NewError(fiber.StatusNotFound)
	}
	defer reader.Close()

	c.Response().Header.SetContentLength(int(size))
	if res.Kind == resource.KindRegistries {
		c.Set(fiber.HeaderContentType, "text/plain")
	} else {
		c.Set(fiber.HeaderContentType, "application/octet-stream")
	}
	c.Status(fiber.StatusOK)

	if c.Method() == http.MethodHead {
		h.logResult(res.Path, "", true, started, fiber.StatusOK, nil)
		return nil
	}

	_, copyErr := io.Copy(c.Response().BodyWriter(), reader)
	h.logResult(res.Path, "", true, started, fiber.StatusOK, copyErr)
	return copyErr
}

func (h *Handler) logResult(resourcePath, upstream string, cacheHit bool, started time.Time, status int, err error) {
	fields := logging.RequestFields(resourcePath, upstream, cacheHit)
	fields["status"] = status
	fields["duration_ms"] = time.Since(started).Milliseconds()

	entry := h.logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Warn("request failed")
		return
	}
	entry.Info("request served")
}
