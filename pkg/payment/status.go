package payment

import (
	"fmt"
	"time"
)

// Status is the step a payment session is in.
type Status string

const (
	AwaitingUpload Status = "awaiting_upload"
	Previewing     Status = "previewing"
	Verifying      Status = "verifying"
	Succeeded      Status = "succeeded"
	Expired        Status = "expired"
	Closed         Status = "closed"
)

// ReasonCode names one failed check in a rejected verdict.
type ReasonCode string

const (
	AmountMismatch   ReasonCode = "amount_mismatch"
	ReceiverMismatch ReasonCode = "receiver_mismatch"
	DateOutOfWindow  ReasonCode = "date_out_of_window"
	DateNotFound     ReasonCode = "date_not_found"
	NotAReceipt      ReasonCode = "not_a_receipt"
	WindowExpired    ReasonCode = "window_expired"
	InvalidFileType  ReasonCode = "invalid_file_type"
	OCRFailure       ReasonCode = "ocr_failure"
)

// Message is the user-facing clause for a reason. DateOutOfWindow depends on the
// policy and is worded by Decide instead.
func (r ReasonCode) Message() string {
	switch r {
	case AmountMismatch:
		return "Payment amount not detected. Please upload a full payment confirmation screenshot."
	case ReceiverMismatch:
		return "Payment receiver not detected. Please make sure the receiver name or account number is visible."
	case DateNotFound:
		return "Payment date/time not detected. Please upload the full payment confirmation screenshot."
	case DateOutOfWindow:
		return "Payment date/time is outside the payment window. Please retry and upload the latest payment screenshot."
	case NotAReceipt:
		return "This image does not look like a payment receipt. Please upload your payment confirmation screenshot."
	case WindowExpired:
		return "Payment window expired. Please click Retry and try again."
	case InvalidFileType:
		return "Invalid file type. Please upload a PNG or JPG screenshot."
	case OCRFailure:
		return "Could not process image - try a different screenshot."
	}
	return "Verification failed. Please try again."
}

func outOfWindowMessage(window time.Duration) string {
	minutes := int(window / time.Minute)
	if minutes < 1 {
		return DateOutOfWindow.Message()
	}
	return fmt.Sprintf("Payment date/time is outside the %d-minute window. Please retry and upload the latest payment screenshot.", minutes)
}

const notRecentMessage = "Payment date is not from today or yesterday. Please upload the latest payment screenshot."

// FormatRemaining renders seconds as m:ss for the countdown.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Tone is the countdown colour band: danger at 10s or less, warning at 30s or less.
func Tone(seconds int) string {
	switch {
	case seconds <= 10:
		return "danger"
	case seconds <= 30:
		return "warning"
	}
	return "safe"
}
