package recognition

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// cropMargin widens the crop around the detected box so the thumbnail
// includes hair and chin.
const cropMargin = 0.2

const thumbnailQuality = 85

var errEmptyCrop = errors.New("face region lies outside the image")

// DecodeImage decodes JPEG, PNG, GIF, BMP or WebP data.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// CropFace cuts region (plus a margin) out of img, scales it to fit within
// size x size keeping the aspect ratio and encodes it as JPEG.
func CropFace(img image.Image, region Region, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %d", size)
	}
	src := region.Expand(cropMargin).Rect().Intersect(img.Bounds())
	if src.Empty() {
		return nil, errEmptyCrop
	}

	width, height := src.Dx(), src.Dy()
	newWidth, newHeight := width, height
	if width > size || height > size {
		if width > height {
			newWidth = size
			newHeight = max(1, int(float64(height)*float64(size)/float64(width)))
		} else {
			newHeight = size
			newWidth = max(1, int(float64(width)*float64(size)/float64(height)))
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
