package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	verifiedCounter       *prometheus.CounterVec
	rateSourceCounter     *prometheus.CounterVec
	settledCounter        *prometheus.CounterVec
	rejectedCounter       *prometheus.CounterVec
	uncertainCounter      prometheus.Counter
	uncertainBacklogGauge prometheus.Gauge
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		verifiedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_verified_total",
			Help: "Inbound payments that passed verification",
		}, []string{"asset"})

		rateSourceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_source_applied_total",
			Help: "Conversion rate source used per settlement",
		}, []string{"source"})

		settledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlements_completed_total",
			Help: "Settlements with a confirmed outbound transfer",
		}, []string{"asset"})

		rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlements_rejected_total",
			Help: "Settlement requests refused, by failure kind",
		}, []string{"kind"})

		uncertainCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlements_uncertain_total",
			Help: "Outbound transfers whose confirmation timed out",
		})

		uncertainBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "settlements_uncertain_backlog",
			Help: "Current number of settlements awaiting reconciliation",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			verifiedCounter,
			rateSourceCounter,
			settledCounter,
			rejectedCounter,
			uncertainCounter,
			uncertainBacklogGauge,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func PaymentVerified(asset string) {
	if verifiedCounter == nil {
		return
	}
	verifiedCounter.WithLabelValues(asset).Inc()
}

func RateApplied(source string) {
	if rateSourceCounter == nil {
		return
	}
	rateSourceCounter.WithLabelValues(source).Inc()
}

func SettlementCompleted(asset string) {
	if settledCounter == nil {
		return
	}
	settledCounter.WithLabelValues(asset).Inc()
}

func SettlementRejected(kind string) {
	if rejectedCounter == nil {
		return
	}
	if kind == "" {
		kind = "INTERNAL"
	}
	rejectedCounter.WithLabelValues(kind).Inc()
}

func SettlementUncertain() {
	if uncertainCounter == nil {
		return
	}
	uncertainCounter.Inc()
}

func SetUncertainBacklog(size int64) {
	if uncertainBacklogGauge == nil {
		return
	}
	uncertainBacklogGauge.Set(float64(size))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
