package recognition

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	return img
}

func TestCropFace(t *testing.T) {
	img := testImage(400, 300)

	tests := []struct {
		name       string
		region     Region
		size       int
		wantWidth  int
		wantHeight int
	}{
		{
			name:       "scaled to fit",
			region:     Region{100, 100, 200, 150}, // 140x70 with margin
			size:       70,
			wantWidth:  70,
			wantHeight: 35,
		},
		{
			name:       "small crop kept",
			region:     Region{100, 100, 150, 150}, // 70x70 with margin
			size:       160,
			wantWidth:  70,
			wantHeight: 70,
		},
		{
			name:       "clipped to bounds",
			region:     Region{-50, -50, 50, 50}, // 0..70 after margin and clipping
			size:       160,
			wantWidth:  70,
			wantHeight: 70,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := CropFace(img, tt.region, tt.size)
			if err != nil {
				t.Fatalf("CropFace error: %v", err)
			}
			thumb, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("thumbnail is not a JPEG: %v", err)
			}
			b := thumb.Bounds()
			if b.Dx() != tt.wantWidth || b.Dy() != tt.wantHeight {
				t.Errorf("thumbnail is %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestCropFace_Errors(t *testing.T) {
	img := testImage(100, 100)
	if _, err := CropFace(img, Region{500, 500, 600, 600}, 64); err == nil {
		t.Error("expected error for region outside the image")
	}
	if _, err := CropFace(img, Region{0, 0, 50, 50}, 0); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(8, 6)); err != nil {
		t.Fatal(err)
	}
	img, err := DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeImage error: %v", err)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
		t.Errorf("decoded bounds %v", img.Bounds())
	}
	if _, err := DecodeImage([]byte("not an image")); err == nil {
		t.Error("expected error for garbage input")
	}
}
