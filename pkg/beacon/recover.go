// recover.go provides panic capture for host goroutines and the stack
// helpers behind CaptureError.

package beacon

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Recover captures a panic as a fatal crash event and returns the
// recovered value. It does NOT re-panic after recording.
//
// Use in defer:
//
//	func handler(ctx context.Context) {
//	    defer client.Recover(ctx)
//	    // code that might panic
//	}
//
// To also return an error, recover yourself and hand the value over:
//
//	func handler(ctx context.Context) (err error) {
//	    defer func() {
//	        if r := recover(); r != nil {
//	            client.CapturePanic(ctx, r, debug.Stack())
//	            err = fmt.Errorf("panic: %v", r)
//	        }
//	    }()
//	    // code that might panic
//	}
func (c *Client) Recover(ctx context.Context) any {
	r := recover()
	if r == nil {
		return nil
	}
	c.CapturePanic(ctx, r, debug.Stack())
	return r
}

// CapturePanic records an already recovered panic value as a crash.
func (c *Client) CapturePanic(ctx context.Context, recovered any, stack []byte) {
	if ctx == nil {
		ctx = context.Background()
	}
	errType := "panic"
	if err, ok := recovered.(error); ok {
		errType = "panic: " + errorType(err)
	}
	c.CaptureContext(ctx, RawEvent{
		Category:  CategoryCrash,
		ErrorType: errType,
		Message:   formatRecovered(recovered),
		Stack:     string(stack),
		Fatal:     true,
	})
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}

// errorType names the innermost error in err's chain by its Go type.
func errorType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return fmt.Sprintf("%T", err)
}

// callerStack formats the current stack in the layout of
// runtime/debug.Stack, starting skip frames above its caller.
func callerStack(skip int) string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		f, more := frames.Next()
		if f.Function != "" {
			fmt.Fprintf(&b, "%s(...)\n\t%s:%d\n", f.Function, f.File, f.Line)
		}
		if !more {
			break
		}
	}
	return b.String()
}
