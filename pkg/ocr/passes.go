package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Pass is one OCR attempt: a preprocessing strategy plus a layout hint.
type Pass struct {
	Name string
	Mode Mode
	PSM  PageSegMode
}

// DefaultPasses returns the escalation order, cheapest and most common first.
func DefaultPasses() []Pass {
	return []Pass{
		{Name: "original/auto", Mode: Original(), PSM: PSMAuto},
		{Name: "grayscale/auto", Mode: Grayscale(false), PSM: PSMAuto},
		{Name: "threshold/block", Mode: AdaptiveThreshold(false), PSM: PSMSingleBlock},
		{Name: "threshold-inverted/block", Mode: AdaptiveThreshold(true), PSM: PSMSingleBlock},
		{Name: "grayscale-inverted/sparse", Mode: Grayscale(true), PSM: PSMSparseText},
		{Name: "downscale-2500/column", Mode: Downscale(DetailWidth), PSM: PSMSingleColumn},
		{Name: "downscale-1000/auto", Mode: Downscale(AlternateWidth), PSM: PSMAuto},
	}
}

// Bundle is the text accumulated over the passes that actually ran.
type Bundle struct {
	Text   string
	Passes []string
}

// EvidencePredicate reports whether the accumulated text already answers the question.
type EvidencePredicate func(text string) bool

// PassObserver is notified after every pass attempt.
type PassObserver func(pass string, took time.Duration, err error)

// Runner executes passes sequentially against a Recognizer.
type Runner struct {
	rec      Recognizer
	passes   []Pass
	language string
	log      *zap.SugaredLogger
	observe  PassObserver
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithPasses(passes []Pass) RunnerOption {
	return func(r *Runner) { r.passes = append([]Pass(nil), passes...) }
}

func WithLanguage(lang string) RunnerOption {
	return func(r *Runner) { r.language = lang }
}

func WithLogger(log *zap.SugaredLogger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

func WithObserver(fn PassObserver) RunnerOption {
	return func(r *Runner) { r.observe = fn }
}

// NewRunner builds a Runner using DefaultPasses unless overridden.
func NewRunner(rec Recognizer, opts ...RunnerOption) *Runner {
	r := &Runner{
		rec:      rec,
		passes:   DefaultPasses(),
		language: DefaultLanguage,
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run decodes data and escalates through the passes until enough reports true.
func (r *Runner) Run(ctx context.Context, data []byte, enough EvidencePredicate) (Bundle, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return Bundle{}, err
	}
	return r.RunImage(ctx, img, enough)
}

// RunImage is Run for an already decoded image. A pass whose preprocessing or
// recognition fails is skipped; text from earlier passes is kept.
func (r *Runner) RunImage(ctx context.Context, img image.Image, enough EvidencePredicate) (Bundle, error) {
	var (
		b        Bundle
		texts    []string
		failures int
		lastErr  error
	)
	for _, p := range r.passes {
		if err := ctx.Err(); err != nil {
			return b, err
		}
		if enough != nil && enough(b.Text) {
			break
		}
		started := time.Now()
		variant, err := Preprocess(img, p.Mode)
		if err != nil {
			r.log.Warnw("OCR pass skipped", "pass", p.Name, "error", err)
			r.notify(p.Name, time.Since(started), err)
			continue
		}
		raw, err := r.rec.Recognize(ctx, variant, RecognizeOptions{Language: r.language, PageSegMode: p.PSM})
		r.notify(p.Name, time.Since(started), err)
		if err != nil {
			if ctx.Err() != nil {
				return b, ctx.Err()
			}
			failures++
			lastErr = err
			r.log.Warnw("OCR pass failed", "pass", p.Name, "error", err)
			continue
		}
		b.Passes = append(b.Passes, p.Name)
		if t := normalizeOCRText(raw); t != "" {
			texts = append(texts, t)
			b.Text = strings.Join(texts, "\n")
		}
		r.log.Debugw("OCR pass done", "pass", p.Name, "length", len(b.Text), "snippet", Snippet(normalizeOCRText(raw), 120))
	}
	if len(b.Passes) == 0 && failures > 0 {
		return b, fmt.Errorf("%w: %w", ErrOCRFailure, lastErr)
	}
	r.log.Infow("OCR passes summary", "ran", len(b.Passes), "failed", failures, "length", len(b.Text))
	return b, nil
}

func (r *Runner) notify(pass string, took time.Duration, err error) {
	if r.observe != nil {
		r.observe(pass, took, err)
	}
}
