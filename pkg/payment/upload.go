package payment

import (
	"fmt"
	"path/filepath"
	"strings"
)

var acceptedMimeTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
}

var acceptedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// UploadedReceipt is the screenshot the user picked for this session.
type UploadedReceipt struct {
	Data     []byte
	MimeType string
	FileName string
	Size     int64
}

// NewUploadedReceipt accepts PNG or JPEG by declared type, falling back to the file
// extension when the declared type is missing or generic.
func NewUploadedReceipt(data []byte, mimeType, fileName string) (*UploadedReceipt, error) {
	r := &UploadedReceipt{Data: data, MimeType: mimeType, FileName: fileName, Size: int64(len(data))}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate re-checks the file type.
func (r *UploadedReceipt) Validate() error {
	if r == nil || len(r.Data) == 0 {
		return fmt.Errorf("%w: empty upload", ErrInvalidFileType)
	}
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(r.MimeType, ";", 2)[0]))
	if acceptedMimeTypes[mt] {
		return nil
	}
	if acceptedExtensions[strings.ToLower(filepath.Ext(r.FileName))] {
		return nil
	}
	return fmt.Errorf("%w: %q (%s)", ErrInvalidFileType, r.FileName, r.MimeType)
}

// FormatFileSize renders a byte count as B, KB or MB with one decimal for KB and two for MB.
func FormatFileSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	}
	return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
}
