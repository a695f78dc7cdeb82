package payment

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("Session", func() {
	var s *Session

	BeforeEach(func() {
		s = NewSession(decimal.NewFromInt(300), DefaultWindow, windowOpen)
	})

	It("starts awaiting an upload with the full window", func() {
		Expect(s.Status()).To(Equal(AwaitingUpload))
		Expect(s.ID()).NotTo(BeEmpty())
		Expect(s.RemainingSeconds(windowOpen)).To(Equal(300))
	})

	It("floors elapsed time and never goes below zero", func() {
		Expect(s.RemainingSeconds(windowOpen.Add(299900 * time.Millisecond))).To(Equal(1))
		Expect(s.RemainingSeconds(windowOpen.Add(300 * time.Second))).To(Equal(0))
		Expect(s.RemainingSeconds(windowOpen.Add(time.Hour))).To(Equal(0))
	})

	It("expires on the tick that reaches zero", func() {
		Expect(s.Tick(windowOpen.Add(299 * time.Second))).To(Equal(AwaitingUpload))
		Expect(s.Tick(windowOpen.Add(300 * time.Second))).To(Equal(Expired))
	})

	It("does not expire a succeeded session", func() {
		Expect(s.SelectFile(pngReceipt(), windowOpen)).To(Succeed())
		_, err := s.BeginVerify(windowOpen)
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Complete(Verdict{Accepted: true}, windowOpen.Add(time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Tick(windowOpen.Add(time.Hour))).To(Equal(Succeeded))
	})

	It("replaces the selected file while previewing", func() {
		first, second := pngReceipt(), pngReceipt()
		second.FileName = "second.png"
		Expect(s.SelectFile(first, windowOpen)).To(Succeed())
		Expect(s.SelectFile(second, windowOpen)).To(Succeed())
		Expect(s.Status()).To(Equal(Previewing))
		Expect(s.Snapshot(windowOpen).Receipt.FileName).To(Equal("second.png"))
	})

	It("refuses to verify without a receipt", func() {
		_, err := s.BeginVerify(windowOpen)
		Expect(err).To(MatchError(ErrNoReceipt))
	})

	It("refuses to verify after the window ran out", func() {
		Expect(s.SelectFile(pngReceipt(), windowOpen)).To(Succeed())
		_, err := s.BeginVerify(windowOpen.Add(5 * time.Minute))
		Expect(err).To(MatchError(ErrWindowExpired))
		Expect(s.Status()).To(Equal(Expired))
	})

	It("returns to previewing with the verdict after a rejection", func() {
		Expect(s.SelectFile(pngReceipt(), windowOpen)).To(Succeed())
		_, err := s.BeginVerify(windowOpen)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.SelectFile(pngReceipt(), windowOpen)).To(MatchError(ErrInvalidTransition))

		v, err := s.Complete(rejection(AmountMismatch), windowOpen.Add(10*time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Accepted).To(BeFalse())
		Expect(s.Status()).To(Equal(Previewing))
		last, ok := s.LastVerdict()
		Expect(ok).To(BeTrue())
		Expect(last.Reasons).To(ConsistOf(AmountMismatch))
	})

	It("turns a late acceptance into a window expiry", func() {
		Expect(s.SelectFile(pngReceipt(), windowOpen)).To(Succeed())
		_, err := s.BeginVerify(windowOpen.Add(290 * time.Second))
		Expect(err).NotTo(HaveOccurred())

		v, err := s.Complete(Verdict{Accepted: true, ReceiverMatched: true}, windowOpen.Add(301*time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Accepted).To(BeFalse())
		Expect(v.Reasons).To(ContainElement(WindowExpired))
		Expect(s.Status()).To(Equal(Expired))
	})

	It("expires mid-verification when the ticker fires", func() {
		Expect(s.SelectFile(pngReceipt(), windowOpen)).To(Succeed())
		_, err := s.BeginVerify(windowOpen.Add(299 * time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Tick(windowOpen.Add(300 * time.Second))).To(Equal(Expired))

		v, err := s.Complete(Verdict{Accepted: true}, windowOpen.Add(300*time.Second))
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Reasons).To(Equal([]ReasonCode{WindowExpired}))
	})

	It("retries into a fresh session with a new window", func() {
		s.Tick(windowOpen.Add(10 * time.Minute))
		later := windowOpen.Add(11 * time.Minute)
		next, err := s.Retry(later)
		Expect(err).NotTo(HaveOccurred())
		Expect(next.ID()).NotTo(Equal(s.ID()))
		Expect(next.WindowStart()).To(Equal(later))
		Expect(next.Status()).To(Equal(AwaitingUpload))
		Expect(next.RemainingSeconds(later)).To(Equal(300))
		Expect(s.Status()).To(Equal(Closed))
	})

	It("does not retry a succeeded session", func() {
		Expect(s.SelectFile(pngReceipt(), windowOpen)).To(Succeed())
		_, _ = s.BeginVerify(windowOpen)
		_, _ = s.Complete(Verdict{Accepted: true}, windowOpen)
		_, err := s.Retry(windowOpen)
		Expect(err).To(MatchError(ErrInvalidTransition))
	})

	It("renders the countdown", func() {
		snap := s.Snapshot(windowOpen.Add(275 * time.Second))
		Expect(snap.RemainingSeconds).To(Equal(25))
		Expect(snap.Remaining).To(Equal("0:25"))
		Expect(snap.Tone).To(Equal("warning"))
		Expect(FormatRemaining(300)).To(Equal("5:00"))
		Expect(Tone(10)).To(Equal("danger"))
		Expect(Tone(31)).To(Equal("safe"))
	})
})

var _ = Describe("UploadedReceipt", func() {
	DescribeTable("file type check",
		func(mime, name string, ok bool) {
			_, err := NewUploadedReceipt([]byte{1, 2, 3}, mime, name)
			if ok {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(ErrInvalidFileType))
			}
		},
		Entry("png by type", "image/png", "x", true),
		Entry("jpeg by type", "image/jpeg; charset=binary", "x", true),
		Entry("extension fallback", "", "shot.JPG", true),
		Entry("octet stream with png name", "application/octet-stream", "shot.png", true),
		Entry("pdf", "application/pdf", "receipt.pdf", false),
		Entry("heic", "image/heic", "IMG_0001.HEIC", false),
	)

	It("rejects empty uploads", func() {
		_, err := NewUploadedReceipt(nil, "image/png", "a.png")
		Expect(err).To(MatchError(ErrInvalidFileType))
	})

	It("formats sizes like the upload preview", func() {
		Expect(FormatFileSize(512)).To(Equal("512 B"))
		Expect(FormatFileSize(1536)).To(Equal("1.5 KB"))
		Expect(FormatFileSize(5 * 1024 * 1024)).To(Equal("5.00 MB"))
	})
})

var _ = Describe("Policy", func() {
	It("resolves presets by name", func() {
		p, err := PolicyByName("")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("strict"))
		p, err = PolicyByName("Lenient")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.LiteralAmountFallback).To(BeTrue())
		Expect(p.Dates).To(Equal(DateRecent))
		_, err = PolicyByName("yolo")
		Expect(err).To(HaveOccurred())
	})
})
