package transport

import "slices"

// Middleware decorates a Processor. Recovery, RequestID and Logging are the
// stock ones; the server installs them in that order.
type Middleware func(Processor) Processor

// Chain folds mws into one middleware whose first element is outermost:
// Chain(a, b, c)(p) is a(b(c(p))). Nil entries are skipped.
func Chain(mws ...Middleware) Middleware {
	return func(p Processor) Processor {
		for _, mw := range slices.Backward(mws) {
			if mw != nil {
				p = mw(p)
			}
		}
		return p
	}
}
