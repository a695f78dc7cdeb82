// Command cmd_receipt_watch verifies every receipt screenshot in a directory and,
// with --watch, keeps verifying new ones as they arrive. Attempts go to the
// configured store like the ones made through the web flow.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"resumepay/pkg/config"
	"resumepay/pkg/logger"
	"resumepay/pkg/payment"
	"resumepay/process/receiptwatch"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := ff.NewFlagSet("cmd_receipt_watch")
	verification := config.RegisterVerification(fs)
	storage := config.RegisterStorage(fs)
	var (
		dir      = fs.StringLong("dir", "receipts", "directory of receipt screenshots")
		workers  = fs.IntLong("workers", 0, "worker pool size (default NumCPU)")
		watch    = fs.BoolLong("watch", "keep running and verify new files as they appear")
		debounce = fs.StringLong("debounce", receiptwatch.DefaultDebounce.String(), "quiet period before a new file is read")
	)
	if err := config.Parse(fs, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		return err
	}

	log, err := logger.New(*verification.LogLevel, *verification.Environment)
	if err != nil {
		return err
	}
	defer log.Sync()

	quiet, err := time.ParseDuration(*debounce)
	if err != nil {
		return fmt.Errorf("invalid --debounce %q: %w", *debounce, err)
	}
	amount, err := verification.ExpectedAmount()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	attempts, err := storage.Open(log)
	if err != nil {
		return fmt.Errorf("open %s attempt store: %w", *storage.Kind, err)
	}
	defer attempts.Close()

	rec, err := verification.NewRecognizer(ctx)
	if err != nil {
		return fmt.Errorf("initialize recognizer: %w", err)
	}
	defer rec.Close()

	verifier, err := verification.NewVerifier(rec, log, nil, payment.WithRecorder(attempts))
	if err != nil {
		return fmt.Errorf("invalid verification configuration: %w", err)
	}

	w := receiptwatch.New(receiptwatch.Config{
		Dir:      *dir,
		Workers:  *workers,
		Debounce: quiet,
		Expected: amount,
		Window:   verification.Window(),
	}, verifier, log)

	results, err := w.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan %s: %w", *dir, err)
	}
	accepted := 0
	for _, r := range results {
		if r.Err == nil && r.Verdict.Accepted {
			accepted++
		}
	}
	log.Infow("Scan finished", "files", len(results), "accepted", accepted)

	if !*watch {
		return nil
	}
	names := make(chan string, 256)
	out := make(chan receiptwatch.Result, 256)
	go w.Process(ctx, names, out)
	go func() {
		for range out {
		}
	}()
	if err := w.Watch(ctx, names); err != nil {
		return fmt.Errorf("watch %s: %w", *dir, err)
	}
	log.Info("Watcher stopped")
	return nil
}
