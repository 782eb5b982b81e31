// Package handler composes path groups, actions, before/after hooks and
// error handlers into a Chain that processes one exchange at a time.
//
// A tree is declared with the builder functions and compiled once:
//
//	chain, err := handler.Compile([]handler.Handler{
//		handler.Before("", auth),
//		handler.Path("/users",
//			handler.Get("/{id}", showUser),
//			handler.Get("/list", listUsers),
//		),
//		handler.Catch(nil, renderError),
//	})
//
// For each request the chain selects the most specific matching action and
// runs the matching before-hooks (outermost first), the action, then the
// matching after-hooks (innermost first). An exchange moves through the
// states MATCHING, RUNNING_BEFORE, RUNNING_ACTION, RUNNING_AFTER and DONE;
// any failure, including a missing route or a method mismatch, moves it to
// HANDLING_ERROR where the nearest error handler renders the response.
package handler
