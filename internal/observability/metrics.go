package observability

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

const namespace = "bp"

// Metrics owns every Prometheus collector of the process.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	batchTotal       *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
	pipelineDuration *prometheus.HistogramVec
	providerFailures *prometheus.CounterVec

	jobsTotal  *prometheus.CounterVec
	jobLatency *prometheus.HistogramVec
	queueDepth *prometheus.GaugeVec
	redisUp    prometheus.Gauge
	redisPing  prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED"))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Current returns the process-wide metrics, or nil when metrics are disabled.
func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once when METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		if !Enabled() {
			return
		}
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// New builds an isolated Metrics on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total", Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_duration_seconds", Help: "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "api_inflight_requests", Help: "HTTP requests in flight.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_requests_total", Help: "LLM provider calls by provider, model and status.",
		}, []string{"provider", "model", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_request_duration_seconds", Help: "LLM provider call latency including retries.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"provider"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_tokens_total", Help: "LLM tokens by provider and direction.",
		}, []string{"provider", "direction"}),
		batchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "batch_executions_total", Help: "Finished batch executions by terminal status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "batch_execution_duration_seconds", Help: "Batch execution wall time.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"status"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pipeline_duration_seconds", Help: "Per-pipeline fan-out and analysis time.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"pipeline"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_failures_total", Help: "Provider calls that produced no usable answer.",
		}, []string{"provider", "pipeline"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_total", Help: "Executed job runs by type and resulting status.",
		}, []string{"job_type", "status"}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "job_duration_seconds", Help: "Job handler wall time.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"job_type"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "job_queue_depth", Help: "Job runs by status.",
		}, []string{"status"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_up", Help: "Redis connectivity (1=up, 0=down).",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_ping_seconds", Help: "Last redis ping latency.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.batchTotal, m.batchDuration, m.pipelineDuration, m.providerFailures,
		m.jobsTotal, m.jobLatency,
		m.queueDepth, m.redisUp, m.redisPing,
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) ApiInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveLLMRequest(provider, model, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(provider, model, status).Inc()
	m.llmLatency.WithLabelValues(provider).Observe(dur.Seconds())
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) ObserveBatch(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.batchTotal.WithLabelValues(status).Inc()
	m.batchDuration.WithLabelValues(status).Observe(dur.Seconds())
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(jobType, status).Inc()
	m.jobLatency.WithLabelValues(jobType).Observe(dur.Seconds())
}

func (m *Metrics) ObservePipeline(pipeline string, dur time.Duration) {
	if m != nil {
		m.pipelineDuration.WithLabelValues(pipeline).Observe(dur.Seconds())
	}
}

func (m *Metrics) IncProviderFailure(provider, pipeline string) {
	if m != nil {
		m.providerFailures.WithLabelValues(provider, pipeline).Inc()
	}
}

func (m *Metrics) SetQueueDepth(counts map[string]int64) {
	if m == nil {
		return
	}
	for _, s := range []string{"queued", "running", "succeeded", "failed", "canceled"} {
		m.queueDepth.WithLabelValues(s).Set(float64(counts[s]))
	}
}

func scrapeInterval() time.Duration {
	if v := strings.TrimSpace(os.Getenv("METRICS_SCRAPE_INTERVAL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 15 * time.Second
}

// StartPostgresCollector registers database/sql pool stats.
func (m *Metrics) StartPostgresCollector(log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: postgres stats unavailable", "error", err)
		}
		return
	}
	if err := m.registry.Register(collectors.NewDBStatsCollector(sqlDB, "brandpulse")); err != nil && log != nil {
		log.Warn("metrics: register db stats failed", "error", err)
	}
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StartJobQueueCollector polls count by status on an interval.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, count func(ctx context.Context) (map[string]int64, error)) {
	if m == nil || count == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				counts, err := count(ctx)
				if err != nil {
					if log != nil {
						log.Warn("metrics: job queue depth failed", "error", err)
					}
					continue
				}
				m.SetQueueDepth(counts)
			}
		}
	}()
}
