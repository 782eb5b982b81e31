package api

import (
	"net/http"
	"strconv"
)

// Status is a response status: numeric code plus reason phrase.
type Status struct {
	Code   int
	Reason string
}

// StatusOf returns the Status for code with its standard reason phrase.
func StatusOf(code int) Status {
	return Status{Code: code, Reason: http.StatusText(code)}
}

var (
	StatusOK                  = StatusOf(http.StatusOK)
	StatusCreated             = StatusOf(http.StatusCreated)
	StatusNoContent           = StatusOf(http.StatusNoContent)
	StatusBadRequest          = StatusOf(http.StatusBadRequest)
	StatusUnauthorized        = StatusOf(http.StatusUnauthorized)
	StatusForbidden           = StatusOf(http.StatusForbidden)
	StatusNotFound            = StatusOf(http.StatusNotFound)
	StatusMethodNotAllowed    = StatusOf(http.StatusMethodNotAllowed)
	StatusConflict            = StatusOf(http.StatusConflict)
	StatusTooManyRequests     = StatusOf(http.StatusTooManyRequests)
	StatusInternalServerError = StatusOf(http.StatusInternalServerError)
)

// String renders the status the way it appears in a status line, e.g. "404 Not Found".
func (s Status) String() string {
	if s.Reason == "" {
		return strconv.Itoa(s.Code)
	}
	return strconv.Itoa(s.Code) + " " + s.Reason
}

// IsSuccess reports whether the status is in the 2xx class.
func (s Status) IsSuccess() bool { return s.Code >= 200 && s.Code < 300 }

// IsClientError reports whether the status is in the 4xx class.
func (s Status) IsClientError() bool { return s.Code >= 400 && s.Code < 500 }

// IsServerError reports whether the status is in the 5xx class.
func (s Status) IsServerError() bool { return s.Code >= 500 && s.Code < 600 }

// Class returns the status class label, e.g. "2xx".
func (s Status) Class() string {
	return strconv.Itoa(s.Code/100) + "xx"
}
