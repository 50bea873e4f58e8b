package renderpool

import "github.com/renderkit/go-renderpool/internal/pix"

// Pixmap is a fixed-shape output buffer for one rendered unit. Pixmaps
// delivered by the pooled lane are valid only for the duration of the
// callback; Clone them to keep the pixels.
type Pixmap = pix.Pixmap

// PixelFormat is an enumerated pixel layout for rendered output.
type PixelFormat = pix.Format

// Supported pixel layouts
const (
	FormatRGBA = pix.FormatRGBA
	FormatBGRA = pix.FormatBGRA
	FormatGray = pix.FormatGray
)

// NewPixmap allocates a zeroed pixmap for the given shape and format.
func NewPixmap(width, height int, format PixelFormat) *Pixmap {
	return pix.New(width, height, format)
}
