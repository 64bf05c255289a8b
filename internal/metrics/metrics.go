package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	LoansCreated         prometheus.Counter
	LoansReturned        prometheus.Counter
	EligibilityRejected  *prometheus.CounterVec
	WaitlistEnrollments  prometheus.Counter
	OverdueFinesRecorded prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		LoansCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_loans_created_total",
			Help: "Total number of loans committed",
		}),
		LoansReturned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_loans_returned_total",
			Help: "Total number of loans closed by a return",
		}),
		EligibilityRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "biblioteca_eligibility_rejected_total",
			Help: "Eligibility rejections by checklist step",
		}, []string{"check"}),
		WaitlistEnrollments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_waitlist_enrollments_total",
			Help: "Total number of wait-list enrollments",
		}),
		OverdueFinesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_overdue_fines_recorded_total",
			Help: "Fines recorded by the overdue sweep",
		}),
	}
}

func (m *Metrics) IncLoansCreated() {
	if m != nil {
		m.LoansCreated.Inc()
	}
}

func (m *Metrics) IncLoansReturned() {
	if m != nil {
		m.LoansReturned.Inc()
	}
}

func (m *Metrics) IncEligibilityRejected(check string) {
	if m != nil {
		m.EligibilityRejected.WithLabelValues(check).Inc()
	}
}

func (m *Metrics) IncWaitlistEnrollments() {
	if m != nil {
		m.WaitlistEnrollments.Inc()
	}
}

func (m *Metrics) IncOverdueFinesRecorded() {
	if m != nil {
		m.OverdueFinesRecorded.Inc()
	}
}
