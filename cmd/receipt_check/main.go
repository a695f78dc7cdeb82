// Command receipt_check runs the verification pipeline on one screenshot and
// prints the verdict as JSON. It uses the same flags and environment as the
// server, plus:
//
//	--file           screenshot to check
//	--window-start   RFC3339 time the payment window opened (default: file modification time minus the window)
//	--dump-text      also print the text every OCR pass produced
//	--save-passes    write each preprocessed pass image into this directory
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"go.uber.org/zap"

	"resumepay/pkg/config"
	"resumepay/pkg/logger"
	"resumepay/pkg/ocr"
	"resumepay/pkg/payment"
)

type output struct {
	File        string          `json:"file"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	Verdict     payment.Verdict `json:"verdict"`
	Messages    []string        `json:"messages,omitempty"`
	Text        string          `json:"text,omitempty"`
}

func main() {
	fs := ff.NewFlagSet("receipt_check")
	verification := config.RegisterVerification(fs)
	var (
		file        = fs.StringLong("file", "", "receipt screenshot (png or jpeg)")
		windowStart = fs.StringLong("window-start", "", "RFC3339 start of the payment window")
		dumpText    = fs.BoolLong("dump-text", "print the OCR text of every pass")
		savePasses  = fs.StringLong("save-passes", "", "directory to write preprocessed pass images to")
	)
	if err := config.Parse(fs, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *file == "" {
		fmt.Fprintln(os.Stderr, "error: --file is required")
		os.Exit(2)
	}

	log, err := logger.New(*verification.LogLevel, *verification.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(context.Background(), verification, log, *file, *windowStart, *dumpText, *savePasses); err != nil {
		log.Errorw("Receipt check failed", "file", *file, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, verification *config.Verification, log *zap.SugaredLogger, file, windowStart string, dumpText bool, savePasses string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	info, err := os.Stat(file)
	if err != nil {
		return err
	}
	amount, err := verification.ExpectedAmount()
	if err != nil {
		return err
	}
	window := verification.Window()
	start := info.ModTime().Add(-window)
	if windowStart != "" {
		if start, err = time.Parse(time.RFC3339, windowStart); err != nil {
			return fmt.Errorf("invalid --window-start: %w", err)
		}
	}

	rec, err := verification.NewRecognizer(ctx)
	if err != nil {
		return err
	}
	defer rec.Close()

	if savePasses != "" {
		if err := writePasses(data, savePasses); err != nil {
			return err
		}
	}

	verifier, err := verification.NewVerifier(rec, log, nil)
	if err != nil {
		return err
	}
	receipt, err := payment.NewUploadedReceipt(data, mimetype.Detect(data).String(), filepath.Base(file))
	if err != nil {
		return err
	}
	s := payment.NewSession(amount, window, start)
	if err := s.SelectFile(receipt, start); err != nil {
		return err
	}
	// Judged at the window start so a past window is not reported as expired.
	verdict, err := verifier.VerifyAsOf(ctx, s, start)
	if err != nil {
		return err
	}

	out := output{File: file, WindowStart: start, WindowEnd: start.Add(window), Verdict: verdict}
	for _, r := range verdict.Reasons {
		out.Messages = append(out.Messages, r.Message())
	}
	if dumpText {
		bundle, err := ocr.NewRunner(rec, ocr.WithLanguage(*verification.OCRLanguage), ocr.WithLogger(log)).Run(ctx, data, nil)
		if err != nil {
			return err
		}
		out.Text = strings.Join(bundle.Passes, ",") + ": " + bundle.Text
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// writePasses saves the image each OCR pass would see.
func writePasses(data []byte, dir string) error {
	img, err := ocr.DecodeImage(data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, p := range ocr.DefaultPasses() {
		variant, err := ocr.Preprocess(img, p.Mode)
		if err != nil {
			return fmt.Errorf("pass %s: %w", p.Name, err)
		}
		name := fmt.Sprintf("%02d-%s.png", i+1, strings.ReplaceAll(p.Name, "/", "_"))
		if err := imaging.Save(variant, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
