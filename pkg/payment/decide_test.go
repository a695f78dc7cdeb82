package payment

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"resumepay/pkg/extract"
)

const goodReceipt = "Transaction Successful. Amt: Nu 300.00 paid to Our Store A/C 215225591 on 27 Jan 2026 14:02"

var _ = Describe("Decide", func() {
	var in DecisionInput

	BeforeEach(func() {
		in = DecisionInput{
			Expected: decimal.NewFromInt(300),
			Receiver: extract.Receiver{Name: "Our Store", Account: "215225591"},
			Gate:     extract.DefaultGate(),
			Policy:   StrictPolicy(),
			Window:   Window{Start: windowOpen, Duration: DefaultWindow},
			Now:      windowOpen.Add(3 * time.Minute),
			Remaining: func() int {
				return 120
			},
		}
	})

	It("accepts a complete receipt", func() {
		v := Decide(goodReceipt, in)
		Expect(v.Accepted).To(BeTrue())
		Expect(v.Reasons).To(BeEmpty())
		Expect(v.ReceiverMatched).To(BeTrue())
		Expect(v.Amount.Equal(decimal.NewFromInt(300))).To(BeTrue())
	})

	It("repairs confusable digits in the amount", func() {
		v := Decide(strings.Replace(goodReceipt, "300.00", "3OO.OO", 1), in)
		Expect(v.Accepted).To(BeTrue())
	})

	It("stops at the receipt gate", func() {
		v := Decide("happy birthday photo 300 2026-01-27 14:02", in)
		Expect(v.Accepted).To(BeFalse())
		Expect(v.Reasons).To(Equal([]ReasonCode{NotAReceipt}))
		Expect(v.Amount).To(BeNil())
	})

	It("accumulates every failing check with an excerpt", func() {
		v := Decide("Transaction Successful. Amt: Nu 150.00 paid to Someone", in)
		Expect(v.Accepted).To(BeFalse())
		Expect(v.Reasons).To(Equal([]ReasonCode{AmountMismatch, ReceiverMismatch, DateNotFound}))
		Expect(v.Diagnostic).To(ContainSubstring(AmountMismatch.Message()))
		Expect(v.Diagnostic).To(ContainSubstring(DateNotFound.Message()))
		Expect(v.Diagnostic).To(ContainSubstring(`Detected text: "Transaction Successful.`))
	})

	It("truncates the excerpt", func() {
		long := goodReceipt + " " + strings.Repeat("x", 400)
		in.Expected = decimal.NewFromInt(999)
		v := Decide(long, in)
		Expect(v.Diagnostic).To(HaveSuffix("…\""))
	})

	It("treats the window end as inclusive", func() {
		at := func(clock string) Verdict {
			return Decide(strings.Replace(goodReceipt, "14:02", clock, 1), in)
		}
		Expect(at("14:05:00").Accepted).To(BeTrue())
		late := at("14:05:01")
		Expect(late.Accepted).To(BeFalse())
		Expect(late.Reasons).To(Equal([]ReasonCode{DateOutOfWindow}))
		Expect(late.Diagnostic).To(ContainSubstring("outside the 5-minute window"))
	})

	It("does not read a decimal fee as the transaction time", func() {
		v := Decide(strings.Replace(goodReceipt, "14:02", "09:12 Service fee Nu 14.02", 1), in)
		Expect(v.Accepted).To(BeFalse())
		Expect(v.Reasons).To(Equal([]ReasonCode{DateOutOfWindow}))
	})

	It("requires a time of day under the window strategy", func() {
		v := Decide(strings.Replace(goodReceipt, " 14:02", "", 1), in)
		Expect(v.Reasons).To(Equal([]ReasonCode{DateNotFound}))
	})

	It("rejects with WindowExpired when time ran out during OCR", func() {
		in.Remaining = func() int { return 0 }
		v := Decide(goodReceipt, in)
		Expect(v.Accepted).To(BeFalse())
		Expect(v.Reasons).To(Equal([]ReasonCode{WindowExpired}))
	})

	Context("with the lenient policy", func() {
		const styled = "Transaction Successful Our Store 3OO 27 Jan 2026"

		BeforeEach(func() {
			in.Policy = LenientPolicy()
			in.Now = time.Date(2026, 1, 28, 9, 0, 0, 0, time.UTC)
		})

		It("falls back to the literal amount once the receiver matched", func() {
			v := Decide(styled, in)
			Expect(v.Accepted).To(BeTrue())
			Expect(v.Amount.Equal(decimal.NewFromInt(300))).To(BeTrue())
		})

		It("accepts amounts within ten units", func() {
			v := Decide(strings.Replace(goodReceipt, "300.00", "308.00", 1), in)
			Expect(v.Accepted).To(BeTrue())
		})

		It("rejects dates older than yesterday", func() {
			in.Now = time.Date(2026, 1, 29, 9, 0, 0, 0, time.UTC)
			v := Decide(styled, in)
			Expect(v.Reasons).To(Equal([]ReasonCode{DateOutOfWindow}))
		})

		It("is not used by the strict policy", func() {
			in.Policy = StrictPolicy()
			v := Decide(styled, in)
			Expect(v.Reasons).To(ContainElements(AmountMismatch, DateNotFound))
		})
	})

	Describe("HasRequiredEvidence", func() {
		It("needs both amount and receiver", func() {
			enough := HasRequiredEvidence(decimal.NewFromInt(300), in.Receiver, StrictPolicy())
			Expect(enough("")).To(BeFalse())
			Expect(enough("Amt: Nu 300.00")).To(BeFalse())
			Expect(enough("Our Store A/C 215225591")).To(BeFalse())
			Expect(enough(goodReceipt)).To(BeTrue())
		})
	})
})
