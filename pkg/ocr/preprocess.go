package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/disintegration/imaging"
)

// thresholdPercent is T in the local-mean test: a pixel is foreground when it is
// more than T percent darker than the mean of its window.
const thresholdPercent = 15

// Target widths for the resize passes.
const (
	DetailWidth    = 2500
	AlternateWidth = 1000
)

// ModeKind selects a preprocessing strategy.
type ModeKind int

const (
	KindOriginal ModeKind = iota
	KindGrayscale
	KindAdaptiveThreshold
	KindDownscale
)

// Mode describes one rendering of the source screenshot.
type Mode struct {
	Kind   ModeKind
	Invert bool
	Width  int
}

func Original() Mode                     { return Mode{Kind: KindOriginal} }
func Grayscale(invert bool) Mode         { return Mode{Kind: KindGrayscale, Invert: invert} }
func AdaptiveThreshold(invert bool) Mode { return Mode{Kind: KindAdaptiveThreshold, Invert: invert} }
func Downscale(width int) Mode           { return Mode{Kind: KindDownscale, Width: width} }

func (m Mode) String() string {
	switch m.Kind {
	case KindOriginal:
		return "original"
	case KindGrayscale:
		if m.Invert {
			return "grayscale-inverted"
		}
		return "grayscale"
	case KindAdaptiveThreshold:
		if m.Invert {
			return "threshold-inverted"
		}
		return "threshold"
	case KindDownscale:
		return fmt.Sprintf("downscale-%d", m.Width)
	}
	return "unknown"
}

// DecodeImage decodes PNG or JPEG bytes, honouring EXIF orientation.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrImageDecode)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return img, nil
}

// Preprocess renders img according to mode. The source image is never modified.
func Preprocess(img image.Image, mode Mode) (image.Image, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrImageDecode)
	}
	switch mode.Kind {
	case KindOriginal:
		return img, nil
	case KindGrayscale:
		gray, w, h := luminance(img)
		if mode.Invert {
			invert(gray)
		}
		return grayImage(gray, w, h), nil
	case KindAdaptiveThreshold:
		gray, w, h := luminance(img)
		if mode.Invert {
			invert(gray)
		}
		return grayImage(adaptiveThreshold(gray, w, h), w, h), nil
	case KindDownscale:
		if mode.Width <= 0 {
			return nil, fmt.Errorf("invalid target width %d", mode.Width)
		}
		return imaging.Resize(img, mode.Width, 0, imaging.Lanczos), nil
	}
	return nil, fmt.Errorf("unknown preprocess mode %d", mode.Kind)
}

// luminance converts img to a row-major 8-bit buffer using 0.299R + 0.587G + 0.114B.
func luminance(img image.Image) ([]uint8, int, int) {
	src := imaging.Clone(img)
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w*4]
		for x := 0; x < w; x++ {
			r := float64(row[x*4])
			g := float64(row[x*4+1])
			b := float64(row[x*4+2])
			out[y*w+x] = uint8(0.299*r + 0.587*g + 0.114*b + 0.5)
		}
	}
	return out, w, h
}

func invert(buf []uint8) {
	for i, v := range buf {
		buf[i] = 255 - v
	}
}

func grayImage(buf []uint8, w, h int) *image.Gray {
	return &image.Gray{Pix: buf, Stride: w, Rect: image.Rect(0, 0, w, h)}
}

// adaptiveThreshold binarizes gray against the mean of a width/8 window computed
// from a summed-area table. Foreground becomes 0, background 255.
func adaptiveThreshold(gray []uint8, w, h int) []uint8 {
	window := w / 8
	if window < 3 {
		window = 3
	}
	half := window / 2

	// ints has a zero row and column so lookups need no bounds checks.
	stride := w + 1
	ints := make([]int64, stride*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(gray[y*w+x])
			ints[(y+1)*stride+x+1] = ints[y*stride+x+1] + rowSum
		}
	}

	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		y0, y1 := y-half, y+half
		if y0 < 0 {
			y0 = 0
		}
		if y1 >= h {
			y1 = h - 1
		}
		for x := 0; x < w; x++ {
			x0, x1 := x-half, x+half
			if x0 < 0 {
				x0 = 0
			}
			if x1 >= w {
				x1 = w - 1
			}
			count := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := ints[(y1+1)*stride+x1+1] - ints[y0*stride+x1+1] - ints[(y1+1)*stride+x0] + ints[y0*stride+x0]
			if int64(gray[y*w+x])*count*100 < sum*(100-thresholdPercent) {
				out[y*w+x] = 0
			} else {
				out[y*w+x] = 255
			}
		}
	}
	return out
}
