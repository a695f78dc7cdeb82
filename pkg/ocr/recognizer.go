package ocr

import (
	"context"
	"image"
)

// PageSegMode is a layout hint passed to the recognizer.
type PageSegMode int

// Values match tesseract's page segmentation modes.
const (
	PSMAuto         PageSegMode = 3
	PSMSingleColumn PageSegMode = 4
	PSMSingleBlock  PageSegMode = 6
	PSMSparseText   PageSegMode = 11
)

func (m PageSegMode) String() string {
	switch m {
	case PSMAuto:
		return "auto"
	case PSMSingleColumn:
		return "column"
	case PSMSingleBlock:
		return "block"
	case PSMSparseText:
		return "sparse"
	}
	return "default"
}

// RecognizeOptions are per-call hints for a Recognizer.
type RecognizeOptions struct {
	Language    string
	PageSegMode PageSegMode
}

// Recognizer converts pixels to text. Implementations give no accuracy guarantees.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) (string, error)
	Close() error
}
