package receiptwatch

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumepay/pkg/extract"
	"resumepay/pkg/ocr"
	"resumepay/pkg/payment"
)

type recordingVerifier struct {
	mu    sync.Mutex
	calls map[string]time.Time
	start map[string]time.Time
}

func newRecordingVerifier() *recordingVerifier {
	return &recordingVerifier{calls: map[string]time.Time{}, start: map[string]time.Time{}}
}

func (r *recordingVerifier) VerifyAsOf(_ context.Context, s *payment.Session, at time.Time) (payment.Verdict, error) {
	snap := s.Snapshot(at)
	r.mu.Lock()
	r.calls[snap.Receipt.FileName] = at
	r.start[snap.Receipt.FileName] = s.WindowStart()
	r.mu.Unlock()
	return payment.Verdict{Accepted: true, Policy: "strict"}, nil
}

func writePNG(t *testing.T, dir, name string, mod time.Time) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, imaging.New(80, 40, color.White)))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("receipt.PNG"))
	assert.True(t, IsSupported("a.jpeg"))
	assert.False(t, IsSupported("notes.txt"))
	assert.False(t, IsSupported(".hidden.png"))
	assert.False(t, IsSupported("scan.pdf"))
}

func TestScanUsesModTimeAsWindowEnd(t *testing.T) {
	dir := t.TempDir()
	taken := time.Date(2026, 1, 27, 14, 5, 0, 0, time.UTC)
	writePNG(t, dir, "b.png", taken)
	writePNG(t, dir, "a.png", taken.Add(time.Hour))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o600))

	v := newRecordingVerifier()
	w := New(Config{Dir: dir, Workers: 2, Expected: decimal.NewFromInt(300), Window: 5 * time.Minute}, v, nil)
	results, err := w.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.png", results[0].File)
	assert.Equal(t, "b.png", results[1].File)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.True(t, r.Verdict.Accepted)
	}
	assert.True(t, v.start["b.png"].Equal(taken.Add(-5*time.Minute)))
	assert.True(t, v.calls["b.png"].Equal(v.start["b.png"]))
}

type fixedText string

func (f fixedText) Recognize(context.Context, image.Image, ocr.RecognizeOptions) (string, error) {
	return string(f), nil
}

func (fixedText) Close() error { return nil }

func TestCheckFileWithVerifier(t *testing.T) {
	dir := t.TempDir()
	taken := time.Date(2026, 1, 27, 14, 5, 0, 0, time.UTC)
	writePNG(t, dir, "receipt.png", taken)

	check := func(text string) (payment.Verdict, error) {
		v := payment.NewVerifier(ocr.NewRunner(fixedText(text)), payment.VerifierConfig{
			Receiver: extract.Receiver{Name: "Our Store", Account: "215225591"},
			Location: time.UTC,
		})
		w := New(Config{Dir: dir, Expected: decimal.NewFromInt(300), Window: 5 * time.Minute}, v, nil)
		return w.CheckFile(context.Background(), filepath.Join(dir, "receipt.png"))
	}

	verdict, err := check("Transaction Successful. Amt: Nu 300.00 paid to Our Store A/C 215225591 on 27 Jan 2026 14:02")
	require.NoError(t, err)
	assert.True(t, verdict.Accepted, verdict.Diagnostic)

	verdict, err = check("Transaction Successful. Amt: Nu 300.00 paid to Our Store A/C 215225591 on 27 Jan 2026 13:58")
	require.NoError(t, err)
	assert.False(t, verdict.Accepted)
	assert.Equal(t, []payment.ReasonCode{payment.DateOutOfWindow}, verdict.Reasons)
}

func TestScanReportsEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.png"), nil, 0o600))
	w := New(Config{Dir: dir, Expected: decimal.NewFromInt(300)}, newRecordingVerifier(), nil)
	results, err := w.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, payment.ErrInvalidFileType)
}

func TestProcessSkipsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png", time.Now())
	w := New(Config{Dir: dir, Workers: 1, Expected: decimal.NewFromInt(300)}, newRecordingVerifier(), nil)
	names := make(chan string, 3)
	names <- "a.png"
	names <- "a.png"
	close(names)
	results := make(chan Result, 3)
	w.Process(context.Background(), names, results)
	var got []Result
	for r := range results {
		got = append(got, r)
	}
	assert.Len(t, got, 1)
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{Dir: dir, Debounce: 50 * time.Millisecond}, newRecordingVerifier(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	names := make(chan string, 4)
	errc := make(chan error, 1)
	go func() { errc <- w.Watch(ctx, names) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	writePNG(t, dir, "new.png", time.Now())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o600))

	select {
	case name := <-names:
		assert.Equal(t, "new.png", name)
	case <-time.After(3 * time.Second):
		t.Fatal("no file reported")
	}
	cancel()
	assert.NoError(t, <-errc)
}
