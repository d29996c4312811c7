package channel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// maxArgumentBytes bounds the request body of an HTTP method call.
const maxArgumentBytes = 1 << 20

// HTTPHandler exposes a Router over HTTP: POST /channel/:method with the JSON
// arguments as the body. Replies are delivered through exec, which is the
// process-wide designated context.
type HTTPHandler struct {
	router  *Router
	exec    Executor
	timeout time.Duration
}

// NewHTTPHandler creates an HTTP transport. A zero timeout means 30 seconds.
func NewHTTPHandler(router *Router, exec Executor, timeout time.Duration) *HTTPHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPHandler{router: router, exec: exec, timeout: timeout}
}

// RegisterRoutes registers the channel endpoints on g.
func (h *HTTPHandler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.ListMethods)
	g.POST("/:method", h.Invoke)
}

// ListMethods returns the channel name and its registered methods.
func (h *HTTPHandler) ListMethods(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"channel": h.router.Name(),
		"methods": h.router.Methods(),
	})
}

// Invoke dispatches one method call and writes its reply envelope.
func (h *HTTPHandler) Invoke(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxArgumentBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read request body")
	}
	args, err := DecodeArguments(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	reply, err := h.router.Call(ctx, h.exec, MethodCall{Method: c.Param("method"), Arguments: args})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return echo.NewHTTPError(http.StatusGatewayTimeout, "no reply before timeout")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	resp := NewResponse(nil, reply)
	if resp.NotImplemented {
		return c.JSON(http.StatusNotImplemented, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
