package pix

import (
	"image/color"
	"testing"
)

func TestNewShape(t *testing.T) {
	pm := New(100, 50, FormatRGBA)
	if pm.Stride != 400 {
		t.Errorf("Expected stride 400, got %d", pm.Stride)
	}
	if pm.Size() != 400*50 {
		t.Errorf("Expected %d bytes, got %d", 400*50, pm.Size())
	}

	gray := New(100, 50, FormatGray)
	if gray.Stride != 100 {
		t.Errorf("Expected gray stride 100, got %d", gray.Stride)
	}
}

func TestBytesPerPixel(t *testing.T) {
	if FormatRGBA.BytesPerPixel() != 4 {
		t.Error("RGBA should be 4 bytes per pixel")
	}
	if FormatBGRA.BytesPerPixel() != 4 {
		t.Error("BGRA should be 4 bytes per pixel")
	}
	if FormatGray.BytesPerPixel() != 1 {
		t.Error("Gray should be 1 byte per pixel")
	}
}

func TestFormatString(t *testing.T) {
	tests := []struct {
		f    Format
		want string
	}{
		{FormatRGBA, "rgba"},
		{FormatBGRA, "bgra"},
		{FormatGray, "gray"},
		{Format(99), "format(99)"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("Format(%d).String() = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestMatchesIsExact(t *testing.T) {
	pm := New(64, 64, FormatRGBA)

	if !pm.Matches(64, 64, FormatRGBA) {
		t.Error("Expected exact shape to match")
	}
	if pm.Matches(64, 32, FormatRGBA) {
		t.Error("Different height must not match")
	}
	if pm.Matches(32, 64, FormatRGBA) {
		t.Error("Different width must not match")
	}
	if pm.Matches(64, 64, FormatBGRA) {
		t.Error("Different format must not match")
	}
}

func TestClone(t *testing.T) {
	pm := New(4, 4, FormatRGBA)
	pm.Pix[0] = 0xaa

	c := pm.Clone()
	if c.Pix[0] != 0xaa {
		t.Error("Clone should copy pixel data")
	}

	// Mutating the original must not reach the clone
	pm.Pix[0] = 0xbb
	if c.Pix[0] != 0xaa {
		t.Error("Clone must not share backing storage")
	}
}

func TestRGBAConversion(t *testing.T) {
	// BGRA channel swizzle
	bgra := New(1, 1, FormatBGRA)
	bgra.Pix[0] = 10 // B
	bgra.Pix[1] = 20 // G
	bgra.Pix[2] = 30 // R
	bgra.Pix[3] = 255

	img := bgra.RGBA()
	got := img.RGBAAt(0, 0)
	want := color.RGBA{R: 30, G: 20, B: 10, A: 255}
	if got != want {
		t.Errorf("BGRA conversion = %v, want %v", got, want)
	}

	// Gray expands to all three channels, opaque
	gray := New(1, 1, FormatGray)
	gray.Pix[0] = 77

	got = gray.RGBA().RGBAAt(0, 0)
	want = color.RGBA{R: 77, G: 77, B: 77, A: 255}
	if got != want {
		t.Errorf("Gray conversion = %v, want %v", got, want)
	}
}
