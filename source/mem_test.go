package source

import (
	"testing"

	renderpool "github.com/renderkit/go-renderpool"
)

func TestNewSynthetic(t *testing.T) {
	s := NewSynthetic(10, 612, 792)
	if s.UnitCount() != 10 {
		t.Errorf("Expected 10 units, got %d", s.UnitCount())
	}
	if s.UnitBytesHint() != 612*792*4 {
		t.Errorf("Expected hint %d, got %d", 612*792*4, s.UnitBytesHint())
	}

	// Zero and negative shapes fall back to defaults
	s = NewSynthetic(-1, 0, 0)
	if s.UnitCount() != 0 {
		t.Errorf("Expected 0 units, got %d", s.UnitCount())
	}
	if s.UnitBytesHint() == 0 {
		t.Error("Expected default shape to produce a non-zero hint")
	}
}

func TestSyntheticOpenClose(t *testing.T) {
	s := NewSynthetic(3, 64, 64)

	u, err := s.OpenUnit(1)
	if err != nil {
		t.Fatalf("OpenUnit failed: %v", err)
	}
	if s.OpenHandles() != 1 {
		t.Errorf("Expected 1 open handle, got %d", s.OpenHandles())
	}

	if err := u.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.OpenHandles() != 0 {
		t.Errorf("Expected 0 open handles, got %d", s.OpenHandles())
	}

	// Double close is an error
	if err := u.Close(); err == nil {
		t.Error("Expected error on double close")
	}

	// Out-of-range units
	if _, err := s.OpenUnit(-1); err == nil {
		t.Error("Expected error for negative index")
	}
	if _, err := s.OpenUnit(3); err == nil {
		t.Error("Expected error past the last unit")
	}
}

func TestSyntheticRender(t *testing.T) {
	s := NewSynthetic(4, 64, 64)

	u, err := s.OpenUnit(0)
	if err != nil {
		t.Fatalf("OpenUnit failed: %v", err)
	}
	defer u.Close()

	dst := renderpool.NewPixmap(32, 32, renderpool.FormatRGBA)
	if err := s.RenderUnit(u, dst, renderpool.RenderParams{}); err != nil {
		t.Fatalf("RenderUnit failed: %v", err)
	}

	// Every pixel is opaque
	for i := 3; i < len(dst.Pix); i += 4 {
		if dst.Pix[i] != 0xff {
			t.Fatalf("Pixel %d not opaque: %d", i/4, dst.Pix[i])
		}
	}
}

func TestSyntheticUnitsAreDistinct(t *testing.T) {
	s := NewSynthetic(2, 64, 64)

	render := func(index int) []byte {
		u, err := s.OpenUnit(index)
		if err != nil {
			t.Fatalf("OpenUnit(%d) failed: %v", index, err)
		}
		defer u.Close()
		dst := renderpool.NewPixmap(16, 16, renderpool.FormatRGBA)
		if err := s.RenderUnit(u, dst, renderpool.RenderParams{}); err != nil {
			t.Fatalf("RenderUnit(%d) failed: %v", index, err)
		}
		return dst.Pix
	}

	a := render(0)
	b := render(1)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("Distinct units rendered identical pixels")
	}
}

func TestSyntheticFormats(t *testing.T) {
	s := NewSynthetic(1, 64, 64)
	u, err := s.OpenUnit(0)
	if err != nil {
		t.Fatalf("OpenUnit failed: %v", err)
	}
	defer u.Close()

	for _, format := range []renderpool.PixelFormat{
		renderpool.FormatRGBA,
		renderpool.FormatBGRA,
		renderpool.FormatGray,
	} {
		dst := renderpool.NewPixmap(16, 16, format)
		if err := s.RenderUnit(u, dst, renderpool.RenderParams{}); err != nil {
			t.Errorf("RenderUnit into %v failed: %v", format, err)
		}
	}

	bad := renderpool.NewPixmap(16, 16, renderpool.PixelFormat(99))
	if err := s.RenderUnit(u, bad, renderpool.RenderParams{}); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestSyntheticRotation(t *testing.T) {
	s := NewSynthetic(1, 64, 64)
	u, err := s.OpenUnit(0)
	if err != nil {
		t.Fatalf("OpenUnit failed: %v", err)
	}
	defer u.Close()

	render := func(degrees int) *renderpool.Pixmap {
		dst := renderpool.NewPixmap(16, 16, renderpool.FormatRGBA)
		if err := s.RenderUnit(u, dst, renderpool.RenderParams{Rotation: degrees}); err != nil {
			t.Fatalf("RenderUnit with rotation %d failed: %v", degrees, err)
		}
		return dst
	}
	equal := func(a, b *renderpool.Pixmap) bool {
		for i := range a.Pix {
			if a.Pix[i] != b.Pix[i] {
				return false
			}
		}
		return true
	}

	base := render(0)
	quarter := render(90)
	half := render(180)
	threeQuarter := render(270)

	// Rotation is in degrees: each quarter turn produces distinct pixels
	if equal(base, half) {
		t.Error("180 degrees must not render identically to 0")
	}
	if equal(quarter, threeQuarter) {
		t.Error("90 and 270 degrees must not render identically")
	}
	if equal(base, quarter) {
		t.Error("90 degrees must not render identically to 0")
	}

	corner := func(pm *renderpool.Pixmap, x, y int) byte {
		return pm.Pix[y*pm.Stride+x*4]
	}
	// A half turn maps the top-left corner to the bottom-right
	if corner(base, 0, 0) != corner(half, 15, 15) {
		t.Error("180 degrees should map the top-left corner to the bottom-right")
	}
	// A quarter turn maps the top-left corner to the top-right
	if corner(base, 0, 0) != corner(quarter, 15, 0) {
		t.Error("90 degrees should map the top-left corner to the top-right")
	}

	// Full turn is identity; negative degrees wrap
	if !equal(base, render(360)) {
		t.Error("360 degrees should match 0")
	}
	if !equal(threeQuarter, render(-90)) {
		t.Error("-90 degrees should match 270")
	}

	// Non-multiples of 90 are rejected
	dst := renderpool.NewPixmap(16, 16, renderpool.FormatRGBA)
	if err := s.RenderUnit(u, dst, renderpool.RenderParams{Rotation: 45}); err == nil {
		t.Error("Expected error for a rotation that is not a multiple of 90")
	}
}

func TestSyntheticWithPool(t *testing.T) {
	p := renderpool.NewPool(nil)
	defer p.Close()

	s := NewSynthetic(16, 128, 128)
	var rendered int
	err := p.RenderBatch(s, renderpool.BatchRequest{
		Count:   16,
		Width:   64,
		Height:  64,
		Format:  renderpool.FormatRGBA,
		Workers: 1, // serial path keeps the counter race-free
		OnUnit: func(unit int, pm *renderpool.Pixmap, err error) {
			if err != nil {
				t.Errorf("Unit %d failed: %v", unit, err)
				return
			}
			rendered++
		},
	})
	if err != nil {
		t.Fatalf("RenderBatch failed: %v", err)
	}
	if rendered != 16 {
		t.Errorf("Expected 16 rendered units, got %d", rendered)
	}
	if s.OpenHandles() != 0 {
		t.Errorf("Expected all handles closed, %d still open", s.OpenHandles())
	}
}
