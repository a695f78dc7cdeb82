package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"resumepay/models"
	"resumepay/pkg/extract"
	"resumepay/pkg/ocr"
)

// Recorder persists the audit record of a verification.
type Recorder interface {
	SaveAttempt(ctx context.Context, a *models.VerificationAttempt) error
}

// VerifierConfig holds the merchant-side constants of a verification.
type VerifierConfig struct {
	Receiver extract.Receiver
	Gate     extract.Gate
	Policy   Policy
	// Location interprets receipt dates; nil uses the session's window start location.
	Location *time.Location
}

// Verifier runs OCR and decision fusion for a session.
type Verifier struct {
	runner   *ocr.Runner
	cfg      VerifierConfig
	now      func() time.Time
	log      *zap.SugaredLogger
	metrics  *Metrics
	recorder Recorder
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

func WithVerifierLogger(log *zap.SugaredLogger) VerifierOption {
	return func(v *Verifier) { v.log = log }
}

func WithMetrics(m *Metrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

func WithRecorder(r Recorder) VerifierOption {
	return func(v *Verifier) { v.recorder = r }
}

func NewVerifier(runner *ocr.Runner, cfg VerifierConfig, opts ...VerifierOption) *Verifier {
	if cfg.Policy.Name == "" {
		cfg.Policy = StrictPolicy()
	}
	if len(cfg.Gate.Terms) == 0 && len(cfg.Gate.BankTokens) == 0 {
		cfg.Gate = extract.DefaultGate()
	}
	v := &Verifier{
		runner: runner,
		cfg:    cfg,
		now:    time.Now,
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Policy returns the policy the verifier applies.
func (v *Verifier) Policy() Policy { return v.cfg.Policy }

// Verify checks the session's selected receipt. Evidence problems, OCR failures
// and window expiry come back as a rejected verdict; the error is only set when
// the session cannot be verified in its current state (no receipt, wrong step).
func (v *Verifier) Verify(ctx context.Context, s *Session) (Verdict, error) {
	return v.verify(ctx, s, v.now)
}

// VerifyAsOf is Verify with the clock frozen at at. Batch tools use it to judge a
// stored screenshot as of the moment it was taken.
func (v *Verifier) VerifyAsOf(ctx context.Context, s *Session, at time.Time) (Verdict, error) {
	return v.verify(ctx, s, func() time.Time { return at })
}

func (v *Verifier) verify(ctx context.Context, s *Session, now func() time.Time) (Verdict, error) {
	started := time.Now()
	att, err := s.BeginVerify(now())
	if errors.Is(err, ErrWindowExpired) {
		verdict := rejection(WindowExpired)
		verdict.Policy = v.cfg.Policy.Name
		v.finish(ctx, s, Attempt{SessionID: s.ID(), Expected: s.ExpectedAmount()}, verdict, started)
		return verdict, nil
	}
	if err != nil {
		return Verdict{}, err
	}

	verdict := v.evaluate(ctx, att, now, func() int { return s.RemainingSeconds(now()) })
	final, err := s.Complete(verdict, now())
	v.finish(ctx, s, att, final, started)
	return final, err
}

// evaluate never panics and never returns an error.
func (v *Verifier) evaluate(ctx context.Context, att Attempt, now func() time.Time, remaining func() int) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Errorw("Verification panicked", "session", att.SessionID, "panic", r)
			verdict = rejection(OCRFailure)
			verdict.Policy = v.cfg.Policy.Name
		}
	}()

	if err := att.Receipt.Validate(); err != nil {
		v.log.Infow("Rejected upload", "session", att.SessionID, "error", err)
		verdict = rejection(InvalidFileType)
		verdict.Policy = v.cfg.Policy.Name
		return verdict
	}

	enough := HasRequiredEvidence(att.Expected, v.cfg.Receiver, v.cfg.Policy)
	bundle, err := v.runner.Run(ctx, att.Receipt.Data, enough)
	if err != nil {
		v.log.Warnw("OCR failed", "session", att.SessionID, "passes", len(bundle.Passes), "error", err)
		verdict = rejection(OCRFailure)
		verdict.Policy = v.cfg.Policy.Name
		verdict.Passes = bundle.Passes
		return verdict
	}

	verdict = Decide(bundle.Text, DecisionInput{
		Expected:  att.Expected,
		Receiver:  v.cfg.Receiver,
		Gate:      v.cfg.Gate,
		Policy:    v.cfg.Policy,
		Window:    Window{Start: att.WindowStart, Duration: att.Window},
		Now:       now(),
		Location:  v.cfg.Location,
		Remaining: remaining,
	})
	verdict.Passes = bundle.Passes
	v.log.Debugw("Decision", "session", att.SessionID, "accepted", verdict.Accepted, "reasons", verdict.Reasons, "snippet", ocr.Snippet(bundle.Text, 120))
	return verdict
}

func (v *Verifier) finish(ctx context.Context, s *Session, att Attempt, verdict Verdict, started time.Time) {
	took := time.Since(started)
	v.metrics.ObserveVerdict(verdict, took)
	v.log.Infow("Verification finished",
		"session", att.SessionID,
		"accepted", verdict.Accepted,
		"reasons", verdict.Reasons,
		"passes", len(verdict.Passes),
		"took", took,
	)
	if v.recorder == nil {
		return
	}
	if err := v.recorder.SaveAttempt(ctx, attemptRecord(s, att, verdict)); err != nil {
		v.log.Warnw("Could not save verification attempt", "session", att.SessionID, "error", err)
	}
}

// attemptRecord flattens a verification into its audit row.
func attemptRecord(s *Session, att Attempt, verdict Verdict) *models.VerificationAttempt {
	rec := &models.VerificationAttempt{
		SessionID:      att.SessionID,
		Status:         string(s.Status()),
		Accepted:       verdict.Accepted,
		Policy:         verdict.Policy,
		ExpectedAmount: att.Expected.String(),
		Passes:         strings.Join(verdict.Passes, ","),
		Excerpt:        verdict.Diagnostic,
	}
	reasons := make([]string, len(verdict.Reasons))
	for i, r := range verdict.Reasons {
		reasons[i] = string(r)
	}
	rec.Reasons = strings.Join(reasons, ",")
	if verdict.Amount != nil {
		rec.FoundAmount = verdict.Amount.String()
	}
	if att.Receipt != nil {
		rec.FileName = att.Receipt.FileName
		rec.ContentType = att.Receipt.MimeType
		rec.FileSize = att.Receipt.Size
	}
	return rec
}
