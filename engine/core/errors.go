package core

import (
	"errors"
)

var (
	// Pixel or container format tag is not recognized. Fatal to one asset only.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// Corrupt or truncated binary data.
	ErrDecodeFailure = errors.New("decode failure")
	// A pre-write check failed; nothing was written.
	ErrSaveAborted = errors.New("save aborted")

	ErrTexturePoolFull      = errors.New("texture pool is full")
	ErrDescriptorTableStale = errors.New("descriptor table is stale")
	ErrNoTexturePool        = errors.New("no texture pool configured")
	ErrResourceKindMismatch = errors.New("resource requested with a different kind")
	ErrUnknownAsset         = errors.New("unknown asset")
	ErrUploadFailed         = errors.New("gpu upload failed")
	ErrMapNotLoaded         = errors.New("map not loaded")
	ErrUnknown              = errors.New("unknown")
)
