package fetch

import "errors"

var (
	// ErrStatus is returned for responses outside the 2xx range.
	ErrStatus = errors.New("fetch: unexpected status")

	// ErrTooManyRedirects is returned when the redirect budget is spent.
	ErrTooManyRedirects = errors.New("fetch: too many redirects")

	// ErrRendererClosed is returned by a Renderer used after Close.
	ErrRendererClosed = errors.New("fetch: renderer closed")
)
