package payment

import (
	"context"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("Manager", func() {
	var (
		clock    *fakeClock
		verified atomic.Int32
		m        *Manager
	)

	BeforeEach(func() {
		clock = newFakeClock(windowOpen)
		verified.Store(0)
		m = NewManager(ManagerConfig{
			Expected:     decimal.NewFromInt(300),
			TickInterval: 5 * time.Millisecond,
			DisplayDelay: 20 * time.Millisecond,
			Now:          clock.Now,
			OnVerified:   func(*Session) { verified.Add(1) },
		})
	})

	It("creates sessions at the configured price", func() {
		s := m.Create(decimal.Zero)
		Expect(s.ExpectedAmount().Equal(decimal.NewFromInt(300))).To(BeTrue())
		got, err := m.Get(s.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeIdenticalTo(s))

		custom := m.Create(decimal.NewFromInt(450))
		Expect(custom.ExpectedAmount().String()).To(Equal("450"))
	})

	It("reports unknown sessions", func() {
		_, err := m.Get("nope")
		Expect(err).To(MatchError(ErrSessionNotFound))
		Expect(m.Close("nope")).To(MatchError(ErrSessionNotFound))
	})

	It("expires sessions from the ticker", func() {
		s := m.Create(decimal.Zero)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = m.Run(ctx) }()

		clock.Advance(DefaultWindow)
		Eventually(s.Status).Should(Equal(Expired))
	})

	It("evicts expired sessions after retention", func() {
		s := m.Create(decimal.Zero)
		clock.Advance(DefaultWindow + DefaultRetention + time.Second)
		m.TickAll()
		_, err := m.Get(s.ID())
		Expect(err).To(MatchError(ErrSessionNotFound))
	})

	It("swaps a session on retry", func() {
		s := m.Create(decimal.Zero)
		clock.Advance(DefaultWindow)
		m.TickAll()
		next, err := m.Retry(s.ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(next.WindowStart()).To(Equal(clock.Now()))
		_, err = m.Get(s.ID())
		Expect(err).To(MatchError(ErrSessionNotFound))
		Expect(m.Len()).To(Equal(1))
	})

	It("runs the export continuation once after the display delay", func() {
		s := m.Create(decimal.Zero)
		Expect(s.SelectFile(pngReceipt(), clock.Now())).To(Succeed())
		_, err := s.BeginVerify(clock.Now())
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Complete(Verdict{Accepted: true}, clock.Now())
		Expect(err).NotTo(HaveOccurred())

		m.Succeeded(s)
		m.Succeeded(s)
		Expect(verified.Load()).To(BeZero())
		Eventually(verified.Load).Should(Equal(int32(1)))
		Consistently(verified.Load, 60*time.Millisecond).Should(Equal(int32(1)))
		Eventually(s.Status).Should(Equal(Closed))
		Expect(m.Len()).To(BeZero())
	})

	It("cancels the continuation when closed first", func() {
		s := m.Create(decimal.Zero)
		Expect(s.SelectFile(pngReceipt(), clock.Now())).To(Succeed())
		_, _ = s.BeginVerify(clock.Now())
		_, _ = s.Complete(Verdict{Accepted: true}, clock.Now())
		m.Succeeded(s)
		Expect(m.Close(s.ID())).To(Succeed())
		Consistently(verified.Load, 60*time.Millisecond).Should(BeZero())
	})
})
