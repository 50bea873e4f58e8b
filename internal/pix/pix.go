// Package pix defines the pixel buffer type shared between the scheduler and
// render sources.
package pix

import (
	"fmt"
	"image"
)

// Format is an enumerated pixel layout for rendered output.
type Format int32

const (
	// FormatRGBA is 8-bit-per-channel RGBA, the default
	FormatRGBA Format = iota
	// FormatBGRA is 8-bit-per-channel BGRA (common for native compositors)
	FormatBGRA
	// FormatGray is 8-bit grayscale
	FormatGray
)

// BytesPerPixel returns the pixel stride for the format.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatGray:
		return 1
	default:
		return 4
	}
}

// String implements fmt.Stringer for log output.
func (f Format) String() string {
	switch f {
	case FormatRGBA:
		return "rgba"
	case FormatBGRA:
		return "bgra"
	case FormatGray:
		return "gray"
	default:
		return fmt.Sprintf("format(%d)", int32(f))
	}
}

// Pixmap is a fixed-shape output buffer for one rendered unit.
//
// Pixmaps handed to a per-unit callback from the pooled lane are valid only
// for the duration of the call; ownership returns to the worker's cache as
// soon as the callback returns. Owned-buffer pixmaps belong to the callback.
type Pixmap struct {
	Width  int
	Height int
	Format Format
	Stride int
	Pix    []byte
}

// New allocates a zeroed pixmap for the given shape and format.
func New(width, height int, format Format) *Pixmap {
	stride := width * format.BytesPerPixel()
	return &Pixmap{
		Width:  width,
		Height: height,
		Format: format,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// Matches reports whether the pixmap has exactly the given shape and format.
// Cache lookups require an exact match; near-miss buffers are never resliced.
func (p *Pixmap) Matches(width, height int, format Format) bool {
	return p.Width == width && p.Height == height && p.Format == format
}

// Size returns the buffer size in bytes.
func (p *Pixmap) Size() int {
	return len(p.Pix)
}

// Clone returns a deep copy. Callbacks that need the pixels after returning
// must clone, since pooled buffers are reused.
func (p *Pixmap) Clone() *Pixmap {
	c := &Pixmap{
		Width:  p.Width,
		Height: p.Height,
		Format: p.Format,
		Stride: p.Stride,
		Pix:    make([]byte, len(p.Pix)),
	}
	copy(c.Pix, p.Pix)
	return c
}

// RGBA copies the pixmap into a standard library image. Gray and BGRA
// layouts are converted.
func (p *Pixmap) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	switch p.Format {
	case FormatRGBA:
		for y := 0; y < p.Height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+p.Width*4], p.Pix[y*p.Stride:])
		}
	case FormatBGRA:
		for y := 0; y < p.Height; y++ {
			src := p.Pix[y*p.Stride:]
			dst := img.Pix[y*img.Stride:]
			for x := 0; x < p.Width; x++ {
				dst[x*4+0] = src[x*4+2]
				dst[x*4+1] = src[x*4+1]
				dst[x*4+2] = src[x*4+0]
				dst[x*4+3] = src[x*4+3]
			}
		}
	case FormatGray:
		for y := 0; y < p.Height; y++ {
			src := p.Pix[y*p.Stride:]
			dst := img.Pix[y*img.Stride:]
			for x := 0; x < p.Width; x++ {
				v := src[x]
				dst[x*4+0] = v
				dst[x*4+1] = v
				dst[x*4+2] = v
				dst[x*4+3] = 0xff
			}
		}
	}
	return img
}
