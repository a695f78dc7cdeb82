package payment

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"resumepay/pkg/ocr"
)

// Metrics counts verification outcomes. A nil *Metrics records nothing.
type Metrics struct {
	verdicts *prometheus.CounterVec
	reasons  *prometheus.CounterVec
	passes   *prometheus.CounterVec
	duration prometheus.Histogram
	passTime *prometheus.HistogramVec
}

// NewMetrics registers the verification metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "resumepay_verifications_total",
			Help: "Receipt verifications by outcome",
		}, []string{"outcome", "policy"}),
		reasons: f.NewCounterVec(prometheus.CounterOpts{
			Name: "resumepay_rejection_reasons_total",
			Help: "Rejection reasons reported by verifications",
		}, []string{"reason"}),
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "resumepay_ocr_passes_total",
			Help: "OCR passes attempted by pass name and result",
		}, []string{"pass", "result"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "resumepay_verification_duration_seconds",
			Help:    "Wall time of one verification including all OCR passes",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		passTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resumepay_ocr_pass_duration_seconds",
			Help:    "Wall time of a single OCR pass",
			Buckets: prometheus.DefBuckets,
		}, []string{"pass"}),
	}
}

// ObserveVerdict records one finished verification.
func (m *Metrics) ObserveVerdict(v Verdict, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if v.Accepted {
		outcome = "accepted"
	}
	m.verdicts.WithLabelValues(outcome, v.Policy).Inc()
	for _, r := range v.Reasons {
		m.reasons.WithLabelValues(string(r)).Inc()
	}
	m.duration.Observe(took.Seconds())
}

// PassObserver adapts the metrics to the OCR runner's observer hook.
func (m *Metrics) PassObserver() ocr.PassObserver {
	return func(pass string, took time.Duration, err error) {
		if m == nil {
			return
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		m.passes.WithLabelValues(pass, result).Inc()
		m.passTime.WithLabelValues(pass).Observe(took.Seconds())
	}
}
