package payment

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultWindow is how long a session accepts receipts.
const DefaultWindow = 300 * time.Second

// Session is one bounded payment attempt. The HTTP handlers and the manager's
// ticker both touch it, so every method locks.
type Session struct {
	mu sync.Mutex

	id          string
	expected    decimal.Decimal
	windowStart time.Time
	window      time.Duration
	status      Status
	receipt     *UploadedReceipt
	verdict     *Verdict
}

// Attempt is what BeginVerify hands to the verifier; it stays valid even if the
// session expires or is replaced while OCR runs.
type Attempt struct {
	SessionID   string
	Receipt     *UploadedReceipt
	Expected    decimal.Decimal
	WindowStart time.Time
	Window      time.Duration
}

// NewSession starts a session whose window opens at start.
func NewSession(expected decimal.Decimal, window time.Duration, start time.Time) *Session {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Session{
		id:          uuid.NewString(),
		expected:    expected,
		windowStart: start,
		window:      window,
		status:      AwaitingUpload,
	}
}

func (s *Session) ID() string                      { return s.id }
func (s *Session) ExpectedAmount() decimal.Decimal { return s.expected }
func (s *Session) WindowStart() time.Time          { return s.windowStart }
func (s *Session) Window() time.Duration           { return s.window }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RemainingSeconds is max(0, window - floor(elapsed)).
func (s *Session) RemainingSeconds(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining(now)
}

func (s *Session) remaining(now time.Time) int {
	elapsed := now.Sub(s.windowStart)
	if elapsed < 0 {
		elapsed = 0
	}
	left := int(s.window/time.Second) - int(elapsed/time.Second)
	if left < 0 {
		return 0
	}
	return left
}

// expireLocked moves to Expired and drops the evidence of the old window.
func (s *Session) expireLocked() {
	s.status = Expired
	s.receipt = nil
	s.verdict = nil
}

// Tick expires the session once the window has run out, unless it already
// succeeded or was closed. It returns the status after the tick.
func (s *Session) Tick(now time.Time) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case Succeeded, Closed, Expired:
		return s.status
	}
	if s.remaining(now) == 0 {
		s.expireLocked()
	}
	return s.status
}

// SelectFile attaches r, replacing any earlier pick, and moves to Previewing.
func (s *Session) SelectFile(r *UploadedReceipt, now time.Time) error {
	if r == nil {
		return ErrNoReceipt
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Expired {
		return ErrWindowExpired
	}
	if s.status != AwaitingUpload && s.status != Previewing {
		return fmt.Errorf("%w: select file while %s", ErrInvalidTransition, s.status)
	}
	if s.remaining(now) == 0 {
		s.expireLocked()
		return ErrWindowExpired
	}
	s.receipt = r
	s.verdict = nil
	s.status = Previewing
	return nil
}

// BeginVerify moves Previewing to Verifying and snapshots what the verifier needs.
func (s *Session) BeginVerify(now time.Time) (Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case Expired:
		return Attempt{}, ErrWindowExpired
	case AwaitingUpload:
		return Attempt{}, ErrNoReceipt
	case Previewing:
	default:
		return Attempt{}, fmt.Errorf("%w: verify while %s", ErrInvalidTransition, s.status)
	}
	if s.remaining(now) == 0 {
		s.expireLocked()
		return Attempt{}, ErrWindowExpired
	}
	if s.receipt == nil {
		return Attempt{}, ErrNoReceipt
	}
	s.status = Verifying
	s.verdict = nil
	return Attempt{
		SessionID:   s.id,
		Receipt:     s.receipt,
		Expected:    s.expected,
		WindowStart: s.windowStart,
		Window:      s.window,
	}, nil
}

// Complete records the outcome of a verification. An accepted verdict succeeds
// only while time remains; once the window has run out the result is always a
// WindowExpired rejection. The returned verdict is the one that was stored.
func (s *Session) Complete(v Verdict, now time.Time) (Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case Closed:
		return v, fmt.Errorf("%w: session closed during verification", ErrInvalidTransition)
	case Verifying, Expired:
	default:
		return v, fmt.Errorf("%w: complete while %s", ErrInvalidTransition, s.status)
	}

	if s.status == Expired || s.remaining(now) == 0 {
		v = v.expired()
		s.expireLocked()
		s.verdict = &v
		return v, nil
	}
	if v.Accepted {
		s.status = Succeeded
	} else {
		s.status = Previewing
	}
	s.verdict = &v
	return v, nil
}

// Retry abandons this session and returns a fresh one with a new window.
func (s *Session) Retry(now time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == Succeeded || s.status == Verifying {
		return nil, fmt.Errorf("%w: retry while %s", ErrInvalidTransition, s.status)
	}
	s.status = Closed
	s.receipt = nil
	s.verdict = nil
	return NewSession(s.expected, s.window, now), nil
}

// Close discards the session.
func (s *Session) Close() {
	s.mu.Lock()
	s.status = Closed
	s.receipt = nil
	s.mu.Unlock()
}

// LastVerdict returns the verdict of the most recent verification, if any.
func (s *Session) LastVerdict() (Verdict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verdict == nil {
		return Verdict{}, false
	}
	return *s.verdict, true
}

// ReceiptInfo describes the selected screenshot without its bytes.
type ReceiptInfo struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	SizeText string `json:"size_text"`
}

// Snapshot is the JSON view of a session.
type Snapshot struct {
	ID               string          `json:"id"`
	Status           Status          `json:"status"`
	ExpectedAmount   decimal.Decimal `json:"expected_amount"`
	WindowStart      time.Time       `json:"window_start"`
	WindowSeconds    int             `json:"window_seconds"`
	RemainingSeconds int             `json:"remaining_seconds"`
	Remaining        string          `json:"remaining"`
	Tone             string          `json:"tone"`
	Receipt          *ReceiptInfo    `json:"receipt,omitempty"`
	Verdict          *Verdict        `json:"verdict,omitempty"`
}

func (s *Session) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	left := s.remaining(now)
	if s.status == Expired {
		left = 0
	}
	snap := Snapshot{
		ID:               s.id,
		Status:           s.status,
		ExpectedAmount:   s.expected,
		WindowStart:      s.windowStart,
		WindowSeconds:    int(s.window / time.Second),
		RemainingSeconds: left,
		Remaining:        FormatRemaining(left),
		Tone:             Tone(left),
	}
	if s.receipt != nil {
		snap.Receipt = &ReceiptInfo{
			FileName: s.receipt.FileName,
			MimeType: s.receipt.MimeType,
			Size:     s.receipt.Size,
			SizeText: FormatFileSize(s.receipt.Size),
		}
	}
	if s.verdict != nil {
		v := *s.verdict
		snap.Verdict = &v
	}
	return snap
}
