package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/sitechat-backend/internal/domain"
	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
)

// Metrics is a small Prometheus text-format registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec
	vectorOps   *CounterVec
	scrapePages *CounterVec
	rateLimited *CounterVec
	chatReplies *CounterVec
	jobRuns     *CounterVec
	jobDuration *HistogramVec
	queueDepth  *GaugeVec
	redisUp     *Gauge
	redisPing   *Gauge

	all []collector
}

type collector interface {
	WritePrometheus(w io.Writer) error
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

// Init installs the process-wide registry when METRICS_ENABLED is set.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	latencyBuckets := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	m := &Metrics{
		apiRequests: NewCounterVec("sc_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec("sc_api_request_duration_seconds", "API latency by method/route/status.", []string{"method", "route", "status"}, latencyBuckets),
		apiInflight: NewGauge("sc_api_inflight_requests", "In-flight API requests."),
		llmRequests: NewCounterVec("sc_llm_requests_total", "OpenAI requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency:  NewHistogramVec("sc_llm_request_duration_seconds", "OpenAI latency by model/endpoint/status.", []string{"model", "endpoint", "status"}, latencyBuckets),
		llmTokens:   NewCounterVec("sc_llm_tokens_total", "Estimated tokens by model/kind.", []string{"model", "kind"}),
		vectorOps:   NewCounterVec("sc_vector_ops_total", "Vector store operations by op/status.", []string{"op", "status"}),
		scrapePages: NewCounterVec("sc_scrape_pages_total", "Scraped pages by status.", []string{"status"}),
		rateLimited: NewCounterVec("sc_rate_limit_decisions_total", "Rate limiter decisions by scope/decision.", []string{"scope", "decision"}),
		chatReplies: NewCounterVec("sc_chat_replies_total", "Chat replies by source/status.", []string{"source", "status"}),
		jobRuns:     NewCounterVec("sc_job_runs_total", "Job executions by type/status.", []string{"job_type", "status"}),
		jobDuration: NewHistogramVec("sc_job_duration_seconds", "Job execution time by type/status.", []string{"job_type", "status"}, []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800}),
		queueDepth:  NewGaugeVec("sc_job_queue_depth", "job_run rows by status.", []string{"status"}),
		redisUp:     NewGauge("sc_redis_up", "Redis reachable (1/0)."),
		redisPing:   NewGauge("sc_redis_ping_seconds", "Last Redis ping latency."),
	}
	m.all = []collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.vectorOps, m.scrapePages, m.rateLimited, m.chatReplies,
		m.jobRuns, m.jobDuration, m.queueDepth,
		m.redisUp, m.redisPing,
	}
	return m
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range m.all {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method = orDefault(method, "UNKNOWN")
	route = orDefault(route, "unknown")
	status = orDefault(status, "0")
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
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

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = orDefault(model, "unknown")
	endpoint = orDefault(endpoint, "unknown")
	status = orDefault(status, "0")
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) IncVectorOp(op, status string) {
	if m != nil {
		m.vectorOps.Inc(orDefault(op, "unknown"), orDefault(status, "ok"))
	}
}

func (m *Metrics) IncScrapedPage(status string) {
	if m != nil {
		m.scrapePages.Inc(orDefault(status, "ok"))
	}
}

func (m *Metrics) IncRateLimit(scope string, allowed bool) {
	if m == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "limited"
	}
	m.rateLimited.Inc(orDefault(scope, "unknown"), decision)
}

func (m *Metrics) IncChatReply(source, status string) {
	if m != nil {
		m.chatReplies.Inc(orDefault(source, "unknown"), orDefault(status, "ok"))
	}
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	jobType = orDefault(jobType, "unknown")
	status = orDefault(status, "unknown")
	m.jobRuns.Inc(jobType, status)
	m.jobDuration.Observe(dur.Seconds(), jobType, status)
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(scrapeInterval())
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

func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(scrapeInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var rows []struct {
					Status string
					Count  int64
				}
				if err := db.WithContext(ctx).
					Model(&domain.JobRun{}).
					Select("status, count(*) as count").
					Group("status").
					Scan(&rows).Error; err != nil {
					if log != nil {
						log.Warn("metrics: job queue depth query failed", "error", err)
					}
					continue
				}
				for _, s := range domain.JobStatuses {
					m.queueDepth.Set(0, s)
				}
				for _, row := range rows {
					m.queueDepth.Set(float64(row.Count), orDefault(row.Status, "unknown"))
				}
			}
		}
	}()
}

func orDefault(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
