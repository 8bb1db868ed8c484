package imaging

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

const ThumbnailCommandName = "ThumbnailCommand"

// ThumbnailCommand downscales a PNG to a maximum width, keeping the aspect
// ratio. Images already narrower than the width pass through unchanged.
type ThumbnailCommand struct {
	width int
}

func NewThumbnailCommand(params map[string]any) (Command, error) {
	if err := ValidateRequiredParams(params, []string{"width"}); err != nil {
		return nil, err
	}
	return NewThumbnailCommandWithWidth(GetIntParam(params, "width", 0))
}

func NewThumbnailCommandWithWidth(width int) (*ThumbnailCommand, error) {
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}
	return &ThumbnailCommand{width: width}, nil
}

func (c *ThumbnailCommand) Name() string {
	return ThumbnailCommandName
}

func (c *ThumbnailCommand) Execute(imageData []byte) ([]byte, error) {
	src, _, err := decodeBounded(imageData)
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	if bounds.Dx() <= c.width {
		return imageData, nil
	}

	height := bounds.Dy() * c.width / bounds.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, c.width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	return encodePNG(dst)
}
