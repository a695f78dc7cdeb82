package ocr

import "errors"

// ErrImageDecode is returned when the uploaded screenshot cannot be decoded into pixels.
var ErrImageDecode = errors.New("image decode failed")

// ErrOCRFailure is returned when the recognizer could not produce any text for the image.
var ErrOCRFailure = errors.New("could not process image - try a different screenshot")
