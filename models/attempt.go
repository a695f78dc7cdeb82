package models

import (
	"time"
)

// VerificationAttempt is the audit record written for every Verify click.
type VerificationAttempt struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	SessionID      string    `gorm:"size:36;index;not null" json:"session_id"`
	FileName       string    `gorm:"size:255" json:"file_name"`
	ContentType    string    `gorm:"size:128" json:"content_type"`
	FileSize       int64     `json:"file_size"`
	Status         string    `gorm:"size:32;index" json:"status"` // session status after the attempt
	Accepted       bool      `gorm:"index" json:"accepted"`
	Reasons        string    `gorm:"size:255" json:"reasons"` // comma separated reason codes
	Policy         string    `gorm:"size:32" json:"policy"`
	ExpectedAmount string    `gorm:"size:32" json:"expected_amount"`
	FoundAmount    string    `gorm:"size:32" json:"found_amount,omitempty"`
	Passes         string    `gorm:"size:512" json:"passes"`
	// Excerpt is the truncated OCR text shown to the user, kept so support can review rejections.
	Excerpt string `gorm:"type:text" json:"excerpt"`
}
