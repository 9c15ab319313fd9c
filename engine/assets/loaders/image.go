package loaders

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/mapstudio/engine/core"
	"github.com/spaghettifunk/mapstudio/engine/resources"
)

var supportedImageTypes = map[string]bool{
	"png":  true,
	"jpg":  true,
	"bmp":  true,
	"tif":  true,
	"webp": true,
}

// SniffImage returns the file extension filetype detects for data, or an
// error when data is not an image the studio can decode.
func SniffImage(data []byte) (string, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return "", errors.Wrapf(core.ErrDecodeFailure, "sniff: %v", err)
	}
	if kind == filetype.Unknown || !supportedImageTypes[kind.Extension] {
		return "", errors.Wrapf(core.ErrUnsupportedFormat, "image type %q", kind.Extension)
	}
	return kind.Extension, nil
}

// LoadTexture validates a texture blob. DDS headers are parsed so a bad
// format tag or a short file fails here, on the worker, rather than at upload.
func LoadTexture(name string, data []byte) (resources.Resource, error) {
	if IsDDS(data) {
		img, err := ParseDDS(data)
		if err != nil {
			return nil, errors.Wrapf(err, "texture %s", name)
		}
		if err := img.CheckSize(); err != nil {
			return nil, errors.Wrapf(err, "texture %s", name)
		}
		return &resources.TextureResource{Name: name, Data: data}, nil
	}

	ext, err := SniffImage(data)
	if err != nil {
		return nil, errors.Wrapf(err, "texture %s", name)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(core.ErrDecodeFailure, "texture %s (%s): %v", name, ext, err)
	}
	return &resources.TextureResource{Name: name, Image: img}, nil
}
