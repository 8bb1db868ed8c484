package imaging

import (
	"bytes"
	"image"
)

// DetectImage reports the format of data when it is an image this package can
// process. SVG documents are reported as "svg".
func DetectImage(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return format, true
	}
	if isSVGData(data) {
		return "svg", true
	}
	return "", false
}
