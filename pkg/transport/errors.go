package transport

import (
	"errors"
	"slices"
	"strings"

	"github.com/rhuss/trellis/pkg/api"
)

// StatusFromError maps an error to the response status it is surfaced as.
// Errors that are not an *api.Error map to 500.
func StatusFromError(err error) api.Status {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return api.StatusInternalServerError
	}
	switch apiErr.Kind {
	case api.KindRouteNotFound:
		return api.StatusNotFound
	case api.KindMethodNotAllowed:
		return api.StatusMethodNotAllowed
	case api.KindUnauthorized:
		return api.StatusUnauthorized
	case api.KindTooManyRequests:
		return api.StatusTooManyRequests
	default:
		return api.StatusInternalServerError
	}
}

// ErrorResponse renders err as a text/plain response. The body is the
// status line, plus the error text for client errors; server errors never
// expose their cause. A method-not-allowed error lists the allowed methods
// in the Allow header.
func ErrorResponse(err error) api.Response {
	status := StatusFromError(err)
	body := status.String()
	if status.IsClientError() && err != nil {
		body += "\n" + err.Error()
	}

	resp := api.NewResponse(status).
		WithContentType(api.NewContentType(api.TextPlain, "utf-8")).
		WithBody(api.Text(body + "\n"))

	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Kind == api.KindMethodNotAllowed && len(apiErr.Allowed) > 0 {
		resp = resp.WithHeader("Allow", joinMethods(apiErr.Allowed))
	}
	return resp
}

func joinMethods(ms []api.Method) string {
	names := make([]string, 0, len(ms))
	for _, m := range slices.Compact(slices.Clone(ms)) {
		names = append(names, string(m))
	}
	return strings.Join(names, ", ")
}
