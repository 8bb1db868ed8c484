package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
)

const (
	maxDimension = 16384
	maxPixels    = 64 << 20
)

var ErrImageTooLarge = errors.New("image dimensions exceed the supported size")

// checkDimensions bounds the canvas a command may allocate.
func checkDimensions(width, height int) error {
	if width > maxDimension || height > maxDimension || width*height > maxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, width, height)
	}
	return nil
}

// decodeBounded decodes a raster image after checking the size its header declares.
func decodeBounded(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}
