package transport

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rhuss/trellis/pkg/api"
)

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want api.Status
	}{
		{"route not found", api.NewRouteNotFoundError(api.MethodGet, "/x"), api.StatusNotFound},
		{"method not allowed", api.NewMethodNotAllowedError(api.MethodPut, "/x", nil), api.StatusMethodNotAllowed},
		{"unauthorized", api.NewUnauthorizedError("no key"), api.StatusUnauthorized},
		{"rate limited", api.NewTooManyRequestsError("slow"), api.StatusTooManyRequests},
		{"handler failure", api.NewHandlerFailure("/x", errors.New("boom")), api.StatusInternalServerError},
		{"stream", api.NewStreamError(errors.New("boom")), api.StatusInternalServerError},
		{"wrapped", fmt.Errorf("outer: %w", api.NewRouteNotFoundError(api.MethodGet, "/x")), api.StatusNotFound},
		{"plain error", errors.New("boom"), api.StatusInternalServerError},
		{"nil", nil, api.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFromError(tt.err); got != tt.want {
				t.Errorf("StatusFromError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorResponseNotFound(t *testing.T) {
	resp := ErrorResponse(api.NewRouteNotFoundError(api.MethodGet, "/missing"))

	if resp.Status != api.StatusNotFound {
		t.Errorf("status = %v, want 404", resp.Status)
	}
	if resp.ContentType == nil || !resp.ContentType.Is(api.TextPlain) {
		t.Errorf("content type = %v, want text/plain", resp.ContentType)
	}
	body := api.BodyString(resp.Body)
	if !strings.HasPrefix(body, "404 Not Found") || !strings.Contains(body, "/missing") {
		t.Errorf("body = %q, want status line and path", body)
	}
}

func TestErrorResponseMethodNotAllowedListsAllow(t *testing.T) {
	resp := ErrorResponse(api.NewMethodNotAllowedError(api.MethodDelete, "/items",
		[]api.Method{api.MethodGet, api.MethodPost}))

	if resp.Status != api.StatusMethodNotAllowed {
		t.Errorf("status = %v, want 405", resp.Status)
	}
	if got := resp.Headers.Get("Allow"); got != "GET, POST" {
		t.Errorf("Allow = %q, want %q", got, "GET, POST")
	}
}

func TestErrorResponseHidesServerErrorCause(t *testing.T) {
	resp := ErrorResponse(api.NewHandlerFailure("/x", errors.New("password=hunter2")))

	if body := api.BodyString(resp.Body); body != "500 Internal Server Error\n" {
		t.Errorf("body = %q, want bare status line", body)
	}
}
