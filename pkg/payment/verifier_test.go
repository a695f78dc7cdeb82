package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"resumepay/pkg/extract"
	"resumepay/pkg/ocr"
)

var _ = Describe("Verifier", func() {
	var (
		clock    *fakeClock
		rec      *fakeRecognizer
		recorder *memoryRecorder
		metrics  *Metrics
		verifier *Verifier
		session  *Session
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = newFakeClock(windowOpen.Add(time.Minute))
		rec = &fakeRecognizer{}
		recorder = &memoryRecorder{}
		metrics = NewMetrics(prometheus.NewRegistry())
		runner := ocr.NewRunner(rec, ocr.WithObserver(metrics.PassObserver()))
		verifier = NewVerifier(runner, VerifierConfig{
			Receiver: extract.Receiver{Name: "Our Store", Account: "215225591"},
			Policy:   StrictPolicy(),
		}, WithClock(clock.Now), WithMetrics(metrics), WithRecorder(recorder))
		session = NewSession(decimal.NewFromInt(300), DefaultWindow, windowOpen)
		Expect(session.SelectFile(pngReceipt(), clock.Now())).To(Succeed())
	})

	It("accepts a clean receipt after a single pass", func() {
		rec.text = goodReceipt
		v, err := verifier.Verify(ctx, session)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Accepted).To(BeTrue())
		Expect(v.Passes).To(Equal([]string{"original/auto"}))
		Expect(rec.Calls()).To(Equal(1))
		Expect(session.Status()).To(Equal(Succeeded))
		Expect(testutil.ToFloat64(metrics.verdicts.WithLabelValues("accepted", "strict"))).To(Equal(1.0))
	})

	It("accepts amounts with letter O in place of zeros", func() {
		rec.text = strings.Replace(goodReceipt, "300.00", "3OO.OO", 1)
		v, err := verifier.Verify(ctx, session)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Accepted).To(BeTrue())
	})

	It("rejects noise as not a receipt after trying every pass", func() {
		rec.text = "qzx 7#@ lkjh ~~ mmm"
		v, err := verifier.Verify(ctx, session)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Accepted).To(BeFalse())
		Expect(v.Reasons).To(Equal([]ReasonCode{NotAReceipt}))
		Expect(v.Amount).To(BeNil())
		Expect(rec.Calls()).To(Equal(len(ocr.DefaultPasses())))
		Expect(session.Status()).To(Equal(Previewing))
	})

	It("expires when the window closes while OCR runs", func() {
		rec.text = goodReceipt
		rec.onCall = func() { clock.Advance(301 * time.Second) }
		v, err := verifier.Verify(ctx, session)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Accepted).To(BeFalse())
		Expect(v.Reasons).To(ContainElement(WindowExpired))
		Expect(session.Status()).To(Equal(Expired))
	})

	It("judges a stored screenshot as of a frozen time", func() {
		rec.text = goodReceipt
		clock.Advance(24 * time.Hour)
		v, err := verifier.VerifyAsOf(ctx, session, windowOpen.Add(3*time.Minute))
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Accepted).To(BeTrue())
		Expect(session.Status()).To(Equal(Succeeded))
	})

	It("reports an expired window without running OCR", func() {
		clock.Advance(10 * time.Minute)
		v, err := verifier.Verify(ctx, session)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Reasons).To(Equal([]ReasonCode{WindowExpired}))
		Expect(rec.Calls()).To(BeZero())
	})

	It("rejects non-image uploads before OCR", func() {
		s := NewSession(decimal.NewFromInt(300), DefaultWindow, windowOpen)
		Expect(s.SelectFile(&UploadedReceipt{Data: []byte("%PDF-1.4"), MimeType: "application/pdf", FileName: "r.pdf", Size: 8}, clock.Now())).To(Succeed())
		v, err := verifier.Verify(ctx, s)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Reasons).To(Equal([]ReasonCode{InvalidFileType}))
		Expect(rec.Calls()).To(BeZero())
	})

	It("turns recognizer failures into an OCR failure verdict", func() {
		rec.err = errors.New("tesseract: no language data")
		v, err := verifier.Verify(ctx, session)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Reasons).To(Equal([]ReasonCode{OCRFailure}))
		Expect(v.Diagnostic).To(Equal(OCRFailure.Message()))
		Expect(session.Status()).To(Equal(Previewing))
	})

	It("survives a panicking recognizer", func() {
		rec.panics = true
		v, err := verifier.Verify(ctx, session)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Reasons).To(Equal([]ReasonCode{OCRFailure}))
	})

	It("errors when nothing was uploaded", func() {
		s := NewSession(decimal.NewFromInt(300), DefaultWindow, windowOpen)
		_, err := verifier.Verify(ctx, s)
		Expect(err).To(MatchError(ErrNoReceipt))
	})

	It("records an audit row per attempt", func() {
		rec.text = "Transaction Successful. Amt: Nu 150.00"
		_, err := verifier.Verify(ctx, session)
		Expect(err).NotTo(HaveOccurred())
		Expect(recorder.attempts).To(HaveLen(1))
		a := recorder.attempts[0]
		Expect(a.SessionID).To(Equal(session.ID()))
		Expect(a.Accepted).To(BeFalse())
		Expect(a.Reasons).To(Equal("amount_mismatch,receiver_mismatch,date_not_found"))
		Expect(a.FoundAmount).To(Equal("150"))
		Expect(a.FileName).To(Equal("receipt.png"))
		Expect(a.Status).To(Equal(string(Previewing)))
		Expect(a.Policy).To(Equal("strict"))
	})
})
