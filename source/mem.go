// Package source provides ready-made Source implementations.
package source

import (
	"fmt"
	"image"
	"sync/atomic"

	"golang.org/x/image/draw"

	renderpool "github.com/renderkit/go-renderpool"
)

// Synthetic is an in-memory document whose units are procedurally generated
// images. It is useful for benchmarks, examples, and as a template for real
// Source implementations.
//
// Like a real document, Synthetic is not safe for concurrent use. It relies
// on the pool serializing every OpenUnit and RenderUnit call.
type Synthetic struct {
	units      int
	baseWidth  int
	baseHeight int

	open atomic.Int64 // currently open unit handles
}

// NewSynthetic creates a synthetic document with the given number of units,
// each with the given base dimensions.
func NewSynthetic(units, baseWidth, baseHeight int) *Synthetic {
	if units < 0 {
		units = 0
	}
	if baseWidth <= 0 {
		baseWidth = 612
	}
	if baseHeight <= 0 {
		baseHeight = 792
	}
	return &Synthetic{
		units:      units,
		baseWidth:  baseWidth,
		baseHeight: baseHeight,
	}
}

// UnitCount implements renderpool.Source.
func (s *Synthetic) UnitCount() int {
	return s.units
}

// OpenUnit implements renderpool.Source. The returned handle carries the
// unit's procedurally generated base image.
func (s *Synthetic) OpenUnit(index int) (renderpool.Unit, error) {
	if index < 0 || index >= s.units {
		return nil, fmt.Errorf("source: unit %d out of range [0,%d)", index, s.units)
	}
	s.open.Add(1)
	return &synthUnit{
		src:  s,
		base: s.generate(index),
	}, nil
}

// RenderUnit implements renderpool.Source. It scales the unit's base image
// into dst and converts to dst's pixel format.
func (s *Synthetic) RenderUnit(u renderpool.Unit, dst *renderpool.Pixmap, params renderpool.RenderParams) error {
	su, ok := u.(*synthUnit)
	if !ok {
		return fmt.Errorf("source: unit does not belong to this document")
	}
	if su.closed {
		return fmt.Errorf("source: unit already closed")
	}

	scaled := image.NewRGBA(image.Rect(0, 0, dst.Width, dst.Height))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), su.base, su.base.Bounds(), draw.Src, nil)

	return convert(dst, scaled, params.Rotation)
}

// UnitBytesHint implements renderpool.Sizer. Each unit's payload is its base
// image, four bytes per pixel.
func (s *Synthetic) UnitBytesHint() int64 {
	return int64(s.baseWidth) * int64(s.baseHeight) * 4
}

// OpenHandles returns the number of unit handles not yet closed.
func (s *Synthetic) OpenHandles() int {
	return int(s.open.Load())
}

// generate builds the base image for a unit: a diagonal gradient with
// index-keyed stripes, so distinct units produce distinct pixels.
func (s *Synthetic) generate(index int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.baseWidth, s.baseHeight))
	stripe := 8 + index%24
	for y := 0; y < s.baseHeight; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < s.baseWidth; x++ {
			o := x * 4
			if (x/stripe+y/stripe)%2 == 0 {
				row[o+0] = byte(index)
				row[o+1] = byte(x)
				row[o+2] = byte(y)
			} else {
				row[o+0] = byte(255 - x*255/s.baseWidth)
				row[o+1] = byte(y * 255 / s.baseHeight)
				row[o+2] = byte(index * 7)
			}
			row[o+3] = 0xff
		}
	}
	return img
}

// convert copies src into dst, applying the rotation in degrees and the
// destination pixel format.
func convert(dst *renderpool.Pixmap, src *image.RGBA, rotation int) error {
	if rotation%90 != 0 {
		return fmt.Errorf("source: unsupported rotation %d (want a multiple of 90)", rotation)
	}
	turns := ((rotation/90)%4 + 4) % 4

	w, h := dst.Width, dst.Height
	bpp := dst.Format.BytesPerPixel()

	for y := 0; y < h; y++ {
		out := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			sx, sy := x, y
			switch turns {
			case 1:
				sx, sy = y*src.Rect.Dx()/h, (w-1-x)*src.Rect.Dy()/w
			case 2:
				sx, sy = w-1-x, h-1-y
			case 3:
				sx, sy = (h-1-y)*src.Rect.Dx()/h, x*src.Rect.Dy()/w
			}
			if sx >= src.Rect.Dx() {
				sx = src.Rect.Dx() - 1
			}
			if sy >= src.Rect.Dy() {
				sy = src.Rect.Dy() - 1
			}
			in := src.Pix[sy*src.Stride+sx*4:]
			o := x * bpp
			switch dst.Format {
			case renderpool.FormatRGBA:
				out[o+0], out[o+1], out[o+2], out[o+3] = in[0], in[1], in[2], in[3]
			case renderpool.FormatBGRA:
				out[o+0], out[o+1], out[o+2], out[o+3] = in[2], in[1], in[0], in[3]
			case renderpool.FormatGray:
				// ITU-R BT.601 luma
				out[o] = byte((299*int(in[0]) + 587*int(in[1]) + 114*int(in[2])) / 1000)
			default:
				return fmt.Errorf("source: unsupported pixel format %v", dst.Format)
			}
		}
	}
	return nil
}

type synthUnit struct {
	src    *Synthetic
	base   *image.RGBA
	closed bool
}

// Close implements renderpool.Unit.
func (u *synthUnit) Close() error {
	if u.closed {
		return fmt.Errorf("source: unit already closed")
	}
	u.closed = true
	u.base = nil
	u.src.open.Add(-1)
	return nil
}
