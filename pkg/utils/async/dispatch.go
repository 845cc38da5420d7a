package async

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel/trace"
)

// tracker counts running handlers. Unlike sync.WaitGroup it allows new handlers while Wait is
// blocked.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (t *tracker) add() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
}

func (t *tracker) done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
}

func (t *tracker) wait() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == 0 {
		c := make(chan struct{})
		close(c)
		return c
	}
	return t.idle
}

var inflight tracker

// Dispatch runs handler in a new goroutine that outlives the caller's request.
//
// The handler context is detached from ctx cancellation but keeps:
//   - the ctxlog logger
//   - the OpenTelemetry span context, so spans started by the handler join the caller's trace
//   - a clone of the Sentry hub
//
// Panics are recovered, logged with their stack and reported to Sentry. Returned errors are logged.
func Dispatch(ctx context.Context, handler func(ctx context.Context) error) {
	newCtx := newBackgroundContext(ctx)

	inflight.add()
	go func() {
		defer inflight.done()
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				ctxlog.From(newCtx).Error("panic in async handler",
					"recover", r,
					"stack", string(stack))
				if hub := sentry.GetHubFromContext(newCtx); hub != nil {
					hub.RecoverWithContext(newCtx, r)
				}
			}
		}()

		if err := handler(newCtx); err != nil {
			ctxlog.From(newCtx).Error("error in async handler", "error", err)
		}
	}()
}

// Wait blocks until every dispatched handler returned or ctx is done
func Wait(ctx context.Context) error {
	select {
	case <-inflight.wait():
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "async handlers still running")
	}
}

func newBackgroundContext(ctx context.Context) context.Context {
	newCtx := ctxlog.With(context.Background(), ctxlog.From(ctx))

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		newCtx = trace.ContextWithSpanContext(newCtx, sc)
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return sentry.SetHubOnContext(newCtx, hub.Clone())
}
