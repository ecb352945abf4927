// errors.go implements the Errors integration: explicit error capture
// and panic recovery for goroutines and HTTP handlers.

package integrations

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

// Errors captures host errors and panics.
type Errors struct {
	binding
}

// NewErrors creates the Errors integration.
func NewErrors() *Errors {
	return &Errors{}
}

func (e *Errors) Kind() beacon.IntegrationKind { return beacon.IntegrationErrors }

func (e *Errors) Setup(c *beacon.Client) error { return e.bind(c) }

func (e *Errors) Teardown() { e.unbind() }

// Capture records err with the tags attached to ctx. A nil err is
// ignored.
func (e *Errors) Capture(ctx context.Context, err error) {
	if c := e.bound(); c != nil && err != nil {
		c.CaptureErrorContext(ctx, err)
	}
}

// Go runs fn in a new goroutine. A returned error is captured as an
// error event and a panic as a crash event; the panic does not
// propagate.
func (e *Errors) Go(ctx context.Context, fn func(context.Context) error) {
	go func() {
		defer e.recoverPanic(ctx)
		if err := fn(ctx); err != nil {
			e.Capture(ctx, err)
		}
	}()
}

func (e *Errors) recoverPanic(ctx context.Context) {
	r := recover()
	if r == nil {
		return
	}
	if c := e.bound(); c != nil {
		c.CapturePanic(ctx, r, debug.Stack())
	}
}

// Middleware recovers panics in next, captures them as crash events and
// replies 500. http.ErrAbortHandler is re-panicked untouched.
func (e *Errors) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			if c := e.bound(); c != nil {
				c.CapturePanic(r.Context(), rec, debug.Stack())
			}
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// Gin is the gin form of Middleware. Errors attached to the gin context
// with c.Error are captured once the handler chain returns.
func (e *Errors) Gin() gin.HandlerFunc {
	return func(gc *gin.Context) {
		ctx := beacon.WithTag(gc.Request.Context(), "route", gc.FullPath())
		defer func() {
			if rec := recover(); rec != nil {
				if c := e.bound(); c != nil {
					c.CapturePanic(ctx, rec, debug.Stack())
				}
				gc.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		gc.Next()
		for _, ginErr := range gc.Errors {
			e.Capture(ctx, fmt.Errorf("%s %s: %w", gc.Request.Method, gc.FullPath(), ginErr.Err))
		}
	}
}
