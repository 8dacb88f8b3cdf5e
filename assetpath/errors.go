package assetpath

import "errors"

var (
	// ErrNotAsset is returned when a path is outside both namespaces.
	ErrNotAsset = errors.New("assetpath: not a static or media path")

	// ErrNoRoot is returned when the namespace root directory is not configured.
	ErrNoRoot = errors.New("assetpath: namespace root not configured")
)
