package transport

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rhuss/trellis/pkg/api"
	"github.com/rhuss/trellis/pkg/logging"
)

var log = logging.New("trellis.transport")

// Recovery returns middleware turning a panic that escapes the processor
// into a 500 response for that request only.
func Recovery() Middleware {
	return func(next Processor) Processor {
		return ProcessorFunc(func(ctx context.Context, req api.Request) (call api.Call) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				err := api.NewHandlerFailure("", fmt.Errorf("panic: %v", r))
				log.ErrorErr(err, "%s %s panicked", req.Method, req.Path)
				if log.IsDebugEnabled() {
					log.Debugf("stack of panic in %s %s:\n%s", req.Method, req.Path, debug.Stack())
				}
				call = api.Call{Request: req, Response: ErrorResponse(err)}
			}()
			return next.Process(ctx, req)
		})
	}
}
