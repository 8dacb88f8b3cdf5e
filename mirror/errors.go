package mirror

import "errors"

var (
	// ErrDisabled is returned by discovery when the integration is off.
	ErrDisabled = errors.New("mirror: integration disabled")

	// ErrNoCDNBase is returned when neither a base URL nor a GitHub
	// repository is configured.
	ErrNoCDNBase = errors.New("mirror: no CDN base URL configured")

	// ErrNoStartURL is returned when discovery has no URL to start from.
	ErrNoStartURL = errors.New("mirror: no start URL and no site base URL")

	// ErrFetchFailed is returned when the quick analysis cannot load the
	// store front page.
	ErrFetchFailed = errors.New("mirror: page fetch failed")

	// ErrNoAssets is returned when the quick analysis finds nothing.
	ErrNoAssets = errors.New("mirror: no assets found")
)
