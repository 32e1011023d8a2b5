package session

import (
	"errors"
	"fmt"
)

var (
	ErrAuth           = errors.New("authentication error. please verify that the api key and secret are correct")
	ErrNotProvisioned = errors.New("the account associated with this api key has no extract files, please contact your technical account manager")
	ErrServer         = errors.New("server error, please try again later and contact your technical account manager if the problem persists")
	ErrUnknownStatus  = errors.New("unexpected error retrieving extract info, try again and contact support if the problem persists")
)

// FetchError is returned when a request could not be completed or answered
// with a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a listing response is not valid JSON.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse listing %s: %s", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// statusError maps the status of the initial listing request to a diagnostic.
func statusError(code int) error {
	switch {
	case code == 401 || code == 403:
		return ErrAuth
	case code == 404:
		return ErrNotProvisioned
	case code >= 500:
		return ErrServer
	default:
		return ErrUnknownStatus
	}
}
