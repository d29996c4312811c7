// Package channel implements the method-call bridge between the application
// layer and platform services. Calls are routed by method name to a handler
// that replies exactly once through a Result. Every reply is delivered from a
// designated Executor, whatever goroutine the handler finished on.
package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// MethodCall is one named request with an optional payload.
type MethodCall struct {
	Method    string
	Arguments any
}

// Result delivers the reply to a call. The reply is a plain value, an *Error,
// or NotImplemented.
type Result func(reply any)

// Error is the error payload sent across the bridge.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an error reply.
func NewError(code, message string, details any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

type notImplemented struct{}

// NotImplemented is the reply for method names no handler is registered for.
var NotImplemented = notImplemented{}

// IsNotImplemented reports whether reply is the NotImplemented sentinel.
func IsNotImplemented(reply any) bool {
	_, ok := reply.(notImplemented)
	return ok
}

// HandlerFunc serves one method. It must call result exactly once, from any
// goroutine.
type HandlerFunc func(ctx context.Context, call MethodCall, result Result)

// Router maps method names to handlers.
type Router struct {
	name   string
	logger zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter creates a router for the channel called name.
func NewRouter(name string, logger zerolog.Logger) *Router {
	return &Router{
		name:     name,
		logger:   logger.With().Str("channel", name).Logger(),
		handlers: make(map[string]HandlerFunc),
	}
}

// Name returns the channel name.
func (r *Router) Name() string { return r.name }

// Handle registers h for method, replacing any earlier handler.
func (r *Router) Handle(method string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
}

// Methods returns the registered method names, sorted.
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Dispatch routes call to its handler. The reply reaches result exactly once
// and only from inside exec. A handler panic is reported as an error reply.
func (r *Router) Dispatch(ctx context.Context, exec Executor, call MethodCall, result Result) {
	r.dispatch(ctx, exec, call, result, nil)
}

func (r *Router) dispatch(ctx context.Context, exec Executor, call MethodCall, result Result, dropped func()) {
	reply := PinOrDrop(exec, result, func() {
		r.logger.Warn().Str("method", call.Method).Msg("reply dropped, executor stopped")
		if dropped != nil {
			dropped()
		}
	})

	r.mu.RLock()
	h, ok := r.handlers[call.Method]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug().Str("method", call.Method).Msg("method not implemented")
		reply(NotImplemented)
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Str("method", call.Method).Str("panic", fmt.Sprintf("%v", p)).Msg("handler panic recovered")
			reply(NewError("InternalError", "internal error", nil))
		}
	}()
	h(ctx, call, reply)
}

// Call dispatches call and waits for its reply. It returns ctx.Err() if the
// reply does not arrive before ctx is done, and ErrExecutorStopped if exec
// stopped before the reply could be delivered. Giving up waiting does not
// cancel the call itself; issued store queries always run to completion.
func (r *Router) Call(ctx context.Context, exec Executor, call MethodCall) (any, error) {
	done := make(chan any, 1)
	lost := make(chan struct{})
	r.dispatch(context.WithoutCancel(ctx), exec, call,
		func(reply any) { done <- reply },
		func() { close(lost) })
	select {
	case reply := <-done:
		return reply, nil
	case <-lost:
		return nil, ErrExecutorStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
