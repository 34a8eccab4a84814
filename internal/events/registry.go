package events

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"switchboard-sdk/internal/metrics"
	"switchboard-sdk/pkg/types"
)

// MessageHandler receives one decoded frame of the type it was registered for.
type MessageHandler func(msg *types.Message) error

// ConnectionHandler is told true when a connection opens and false when it goes away.
type ConnectionHandler func(connected bool) error

// ErrorHandler receives failures from the background machinery.
type ErrorHandler func(err error)

// Registry holds the handlers registered on one client
// ARCHITECTURAL DISCOVERY: Registration and dispatch can race (a handler may register
// another handler), so dispatch always iterates over a copy taken under the read lock
type Registry struct {
	mu           sync.RWMutex
	message      map[types.MessageType][]MessageHandler
	connection   []ConnectionHandler
	errorHandler []ErrorHandler

	logger  zerolog.Logger
	metrics *metrics.Collector
}

// NewRegistry creates an empty registry. collector may be nil.
func NewRegistry(logger zerolog.Logger, collector *metrics.Collector) *Registry {
	return &Registry{
		message: make(map[types.MessageType][]MessageHandler),
		logger:  logger,
		metrics: collector,
	}
}

// OnMessage appends a handler for msgType. Handlers run in registration order.
func (r *Registry) OnMessage(msgType types.MessageType, h MessageHandler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.message[msgType] = append(r.message[msgType], h)
}

func (r *Registry) OnConnection(h ConnectionHandler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connection = append(r.connection, h)
}

func (r *Registry) OnError(h ErrorHandler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorHandler = append(r.errorHandler, h)
}

// HandlerCount returns the number of handlers registered for msgType.
func (r *Registry) HandlerCount(msgType types.MessageType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.message[msgType])
}

// NotifyMessage runs every handler registered for the message's type on the calling
// goroutine. A failing handler does not stop the ones after it.
func (r *Registry) NotifyMessage(msg *types.Message) {
	r.mu.RLock()
	handlers := append([]MessageHandler(nil), r.message[msg.Type]...)
	r.mu.RUnlock()

	for i, h := range handlers {
		if err := safeCall(func() error { return h(msg) }); err != nil {
			r.handlerFailed("message", fmt.Errorf("%s handler %d: %w", msg.Type, i, err))
		}
	}
}

// NotifyConnection runs every connection handler with the new connectivity.
func (r *Registry) NotifyConnection(connected bool) {
	r.mu.RLock()
	handlers := append([]ConnectionHandler(nil), r.connection...)
	r.mu.RUnlock()

	for i, h := range handlers {
		if err := safeCall(func() error { return h(connected) }); err != nil {
			r.handlerFailed("connection", fmt.Errorf("connection handler %d: %w", i, err))
		}
	}
}

// NotifyError delivers err to every error handler. With no handlers registered the
// error is only logged.
func (r *Registry) NotifyError(err error) {
	if err == nil {
		return
	}
	r.metrics.Error(types.KindOf(err))

	r.mu.RLock()
	handlers := append([]ErrorHandler(nil), r.errorHandler...)
	r.mu.RUnlock()

	if len(handlers) == 0 {
		r.logger.Warn().Err(err).Str("kind", types.KindOf(err).String()).Msg("Unhandled client error")
		return
	}

	for i, h := range handlers {
		// FUNCTIONAL DISCOVERY: Error handler failures are terminal for reporting;
		// re-reporting them through the same handlers would loop
		if herr := safeCall(func() error { h(err); return nil }); herr != nil {
			r.metrics.HandlerFailure("error")
			r.logger.Error().Err(herr).Int("handler", i).Msg("Error handler failed")
		}
	}
}

func (r *Registry) handlerFailed(kind string, cause error) {
	r.metrics.HandlerFailure(kind)
	r.logger.Error().Err(cause).Str("handler_kind", kind).Msg("Handler failed")
	r.NotifyError(types.NewError(types.KindHandlerFailed, "handler failed", cause))
}

// safeCall converts a panic in fn into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
