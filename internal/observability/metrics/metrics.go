package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/entitlements/pkg/db"
)

const (
	OperationCreate          = "create"
	OperationUpdate          = "update"
	OperationSave            = "save"
	OperationFeatures        = "feature_quantities"
	OperationChildSlugs      = "child_slugs"
	OperationPayment         = "payment"
	OperationRenewal         = "renewal"
	OperationFeatureRefresh  = "feature_refresh"
	NotificationResultOK     = "ok"
	NotificationResultFailed = "failed"
)

const (
	ErrorTypeDeadlineExceeded = "deadline_exceeded"
	ErrorTypeLockConflict     = "lock_conflict"
	ErrorTypeUnknown          = "unknown"
)

// Config labels every series with the running service.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics exposes ledger and renewal scan instruments.
type Metrics struct {
	invoiceMutations  *prometheus.CounterVec
	paymentsRecorded  prometheus.Counter
	paymentAmount     prometheus.Counter
	renewalsCreated   prometheus.Counter
	notifications     *prometheus.CounterVec
	jobRuns           *prometheus.CounterVec
	jobErrors         *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobProcessed      *prometheus.CounterVec
	jobLockContention *prometheus.CounterVec
}

// New registers the instruments on registerer. A nil registerer uses the
// default Prometheus registry.
func New(registerer prometheus.Registerer, cfg Config) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "entitlements"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &Metrics{
		invoiceMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "entitlements",
			Name:        "invoice_mutations_total",
			Help:        "Committed invoice mutations by operation.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
		paymentsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "entitlements",
			Name:        "payments_recorded_total",
			Help:        "Payments recorded against invoices.",
			ConstLabels: constLabels,
		}),
		paymentAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "entitlements",
			Name:        "payment_amount_minor_units_total",
			Help:        "Sum of recorded payment amounts in minor currency units.",
			ConstLabels: constLabels,
		}),
		renewalsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "entitlements",
			Name:        "renewal_invoices_created_total",
			Help:        "Renewal invoices created from a predecessor.",
			ConstLabels: constLabels,
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "entitlements",
			Name:        "organization_notifications_total",
			Help:        "Organization refresh notifications by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "entitlements",
			Subsystem:   "scheduler",
			Name:        "job_runs_total",
			Help:        "Scheduler job runs.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "entitlements",
			Subsystem:   "scheduler",
			Name:        "job_errors_total",
			Help:        "Scheduler job errors by type.",
			ConstLabels: constLabels,
		}, []string{"job", "error_type"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "entitlements",
			Subsystem:   "scheduler",
			Name:        "job_duration_seconds",
			Help:        "Scheduler job duration.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		}, []string{"job"}),
		jobProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "entitlements",
			Subsystem:   "scheduler",
			Name:        "job_processed_total",
			Help:        "Items processed by scheduler jobs.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobLockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "entitlements",
			Subsystem:   "scheduler",
			Name:        "job_lock_skipped_total",
			Help:        "Job runs skipped because another instance held the lock.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	collectors := []prometheus.Collector{
		m.invoiceMutations,
		m.paymentsRecorded,
		m.paymentAmount,
		m.renewalsCreated,
		m.notifications,
		m.jobRuns,
		m.jobErrors,
		m.jobDuration,
		m.jobProcessed,
		m.jobLockContention,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) IncInvoiceMutation(operation string) {
	if m == nil {
		return
	}
	m.invoiceMutations.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordPayment(amount int64) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Inc()
	if amount > 0 {
		m.paymentAmount.Add(float64(amount))
	}
}

func (m *Metrics) IncRenewalCreated() {
	if m == nil {
		return
	}
	m.renewalsCreated.Inc()
}

func (m *Metrics) IncNotification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *Metrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyErrorType(err)).Inc()
}

func (m *Metrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) AddJobProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.jobProcessed.WithLabelValues(job).Add(float64(count))
}

func (m *Metrics) IncJobLockSkipped(job string) {
	if m == nil {
		return
	}
	m.jobLockContention.WithLabelValues(job).Inc()
}

func ClassifyErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorTypeDeadlineExceeded
	case db.IsLockConflict(err):
		return ErrorTypeLockConflict
	default:
		return ErrorTypeUnknown
	}
}
