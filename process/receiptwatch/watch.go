// Package receiptwatch verifies receipt screenshots dropped into a directory,
// for merchants who collect payments outside the web flow.
package receiptwatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gabriel-vasile/mimetype"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"resumepay/pkg/payment"
)

// DefaultDebounce is how long a new file must stay quiet before it is picked up.
const DefaultDebounce = 300 * time.Millisecond

// Config controls a Watcher.
type Config struct {
	Dir      string
	Workers  int
	Debounce time.Duration
	Expected decimal.Decimal
	// Window is the payment window that ends at the screenshot's modification time.
	Window time.Duration
}

// Result is the outcome for one file.
type Result struct {
	File    string
	Verdict payment.Verdict
	Err     error
}

// Verifier is the part of *payment.Verifier the watcher needs.
type Verifier interface {
	VerifyAsOf(ctx context.Context, s *payment.Session, at time.Time) (payment.Verdict, error)
}

type Watcher struct {
	cfg      Config
	verifier Verifier
	log      *zap.SugaredLogger

	mu   sync.Mutex
	seen map[string]struct{}
}

func New(cfg Config, v Verifier, log *zap.SugaredLogger) *Watcher {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Window <= 0 {
		cfg.Window = payment.DefaultWindow
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Watcher{cfg: cfg, verifier: v, log: log, seen: make(map[string]struct{})}
}

// IsSupported reports whether name looks like a screenshot we can verify.
func IsSupported(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// ListReceipts returns the supported files in dir, sorted by name.
func ListReceipts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsSupported(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// CheckFile verifies one screenshot. The session window is the Window before the
// file's modification time. The file is picked and judged at the window start,
// so the window still has its full time left.
func (w *Watcher) CheckFile(ctx context.Context, path string) (payment.Verdict, error) {
	info, err := os.Stat(path)
	if err != nil {
		return payment.Verdict{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return payment.Verdict{}, err
	}
	taken := info.ModTime()
	start := taken.Add(-w.cfg.Window)
	s := payment.NewSession(w.cfg.Expected, w.cfg.Window, start)
	receipt, err := payment.NewUploadedReceipt(data, mimetype.Detect(data).String(), filepath.Base(path))
	if err != nil {
		return payment.Verdict{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if err := s.SelectFile(receipt, start); err != nil {
		return payment.Verdict{}, err
	}
	return w.verifier.VerifyAsOf(ctx, s, start)
}

// claim marks name as handled and reports whether this call was the first.
func (w *Watcher) claim(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[name]; ok {
		return false
	}
	w.seen[name] = struct{}{}
	return true
}

// Process runs the worker pool over names until the channel closes or ctx is
// done, sending one Result per file. The results channel is closed on return.
func (w *Watcher) Process(ctx context.Context, names <-chan string, results chan<- Result) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case name, ok := <-names:
					if !ok {
						return
					}
					if !w.claim(name) {
						continue
					}
					v, err := w.CheckFile(ctx, filepath.Join(w.cfg.Dir, name))
					if err != nil {
						w.log.Warnw("Receipt check failed", "file", name, "error", err)
					} else {
						w.log.Infow("Receipt checked", "file", name, "accepted", v.Accepted, "reasons", v.Reasons)
					}
					select {
					case results <- Result{File: name, Verdict: v, Err: err}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(results)
}

// Scan checks every file already in the directory.
func (w *Watcher) Scan(ctx context.Context) ([]Result, error) {
	files, err := ListReceipts(w.cfg.Dir)
	if err != nil {
		return nil, err
	}
	names := make(chan string, len(files))
	for _, f := range files {
		names <- f
	}
	close(names)
	results := make(chan Result, len(files))
	w.Process(ctx, names, results)
	var out []Result
	for r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

// Watch sends the names of new screenshots once they have been quiet for the
// debounce interval. It returns when ctx is done or the watcher fails; names is
// closed on return.
func (w *Watcher) Watch(ctx context.Context, names chan<- string) error {
	defer close(names)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.cfg.Dir); err != nil {
		return err
	}
	w.log.Infow("Watching for receipts", "dir", w.cfg.Dir, "debounce", w.cfg.Debounce)

	pending := map[string]time.Time{}
	tick := w.cfg.Debounce / 2
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if IsSupported(name) {
				pending[name] = time.Now()
			}
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) < w.cfg.Debounce {
					continue
				}
				delete(pending, name)
				select {
				case names <- name:
				case <-ctx.Done():
					return nil
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			w.log.Warnw("Watch error", "error", err)
		}
	}
}
