package payment

import "errors"

var (
	// ErrInvalidFileType is returned for uploads that are neither PNG nor JPEG.
	ErrInvalidFileType = errors.New("invalid file type: please upload a PNG or JPG screenshot")
	// ErrWindowExpired is returned when the payment window has run out.
	ErrWindowExpired = errors.New("payment window expired: please click Retry and try again")
	// ErrInvalidTransition is returned when an operation is not allowed in the current status.
	ErrInvalidTransition = errors.New("invalid payment session transition")
	// ErrNoReceipt is returned by Verify when no screenshot has been selected.
	ErrNoReceipt = errors.New("please upload a payment screenshot before verifying")
	// ErrSessionNotFound is returned by the Manager for unknown or evicted sessions.
	ErrSessionNotFound = errors.New("payment session not found")
)
