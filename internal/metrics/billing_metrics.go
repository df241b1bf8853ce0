package metrics

import (
	"time"

	"github.com/Dhoini/parking-payments/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parking_payments"

// BillingMetrics интерфейс для метрик расчетов по сессиям
type BillingMetrics interface {
	IncOrderCreated()
	ObserveOrderSum(amount float64)
	IncOrderCorrected()
	IncPaymentStatus(status string)
	IncGatewayError(method, category string)
	ObserveGatewayCall(method string, d time.Duration)
	IncRefund(result string)
	ObserveRefundAmount(amount float64)
	IncSessionClosed()
	IncSweepSession(task, result string)
	ObserveSweepDuration(task string, d time.Duration)
}

type billingMetrics struct {
	log             *logger.Logger
	ordersCreated   prometheus.Counter
	ordersSum       prometheus.Histogram
	ordersCorrected prometheus.Counter
	paymentsStatus  *prometheus.CounterVec
	gatewayErrors   *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	refunds         *prometheus.CounterVec
	refundAmount    prometheus.Histogram
	sessionsClosed  prometheus.Counter
	sweepSessions   *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
}

// NewBillingMetrics регистрирует метрики в реестре
func NewBillingMetrics(registry prometheus.Registerer, log *logger.Logger) BillingMetrics {
	factory := promauto.With(registry)

	return &billingMetrics{
		log: log,
		ordersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "The total number of created debt orders",
		}),
		ordersSum: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "orders_sum",
			Help:      "Debt order amounts distribution",
			Buckets:   prometheus.ExponentialBuckets(10, 10, 5), // 10, 100, 1000, 10000, 100000
		}),
		ordersCorrected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_corrected_total",
			Help:      "Orders canceled because the ordered sum exceeded the debt",
		}),
		paymentsStatus: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_status_total",
			Help:      "The total number of payment status changes by status",
		}, []string{"status"}),
		gatewayErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Gateway failures by method and error category",
		}, []string{"method", "category"}),
		gatewayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Gateway request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		refunds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Per-order refund attempts by result",
		}, []string{"result"}),
		refundAmount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refund_amount",
			Help:      "Refunded amounts distribution",
			Buckets:   prometheus.ExponentialBuckets(10, 10, 5),
		}),
		sessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "The total number of settled and closed sessions",
		}),
		sweepSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_sessions_total",
			Help:      "Sessions processed by scheduled tasks",
		}, []string{"task", "result"}),
		sweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a scheduled task run",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"task"}),
	}
}

func (m *billingMetrics) IncOrderCreated()               { m.ordersCreated.Inc() }
func (m *billingMetrics) ObserveOrderSum(amount float64) { m.ordersSum.Observe(amount) }
func (m *billingMetrics) IncOrderCorrected()             { m.ordersCorrected.Inc() }
func (m *billingMetrics) IncSessionClosed()              { m.sessionsClosed.Inc() }

// IncPaymentStatus увеличивает счетчик статусов платежей
func (m *billingMetrics) IncPaymentStatus(status string) {
	m.paymentsStatus.WithLabelValues(status).Inc()
}

// IncGatewayError учитывает ошибку эквайринга. category "no_result" для недоступности.
func (m *billingMetrics) IncGatewayError(method, category string) {
	m.gatewayErrors.WithLabelValues(method, category).Inc()
}

func (m *billingMetrics) ObserveGatewayCall(method string, d time.Duration) {
	m.gatewayLatency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *billingMetrics) IncRefund(result string) {
	m.refunds.WithLabelValues(result).Inc()
}

func (m *billingMetrics) ObserveRefundAmount(amount float64) {
	m.refundAmount.Observe(amount)
}

func (m *billingMetrics) IncSweepSession(task, result string) {
	m.sweepSessions.WithLabelValues(task, result).Inc()
}

func (m *billingMetrics) ObserveSweepDuration(task string, d time.Duration) {
	m.sweepDuration.WithLabelValues(task).Observe(d.Seconds())
}

// NewNopBillingMetrics метрики на отдельном реестре, для тестов
func NewNopBillingMetrics() BillingMetrics {
	return NewBillingMetrics(prometheus.NewRegistry(), logger.NewNop())
}
