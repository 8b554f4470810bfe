package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// EnsembleRequests 混排请求总数，按最终状态分类
	EnsembleRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemble_requests_total",
			Help: "Total number of ensemble recommend requests by result status.",
		},
		[]string{"status"}, // "ok", "invalid", "unavailable"
	)

	// EnsembleLatency 混排请求端到端耗时
	EnsembleLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ensemble_request_latency_seconds",
		Help:    "End-to-end latency of the ensemble recommend handler.",
		Buckets: prometheus.DefBuckets,
	})

	// BackendFailures 各召回源的失败次数（超时、网络错误、非 200）
	BackendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ensemble_backend_failures_total",
			Help: "Count of backend calls that errored or timed out, by source.",
		},
		[]string{"source"},
	)

	// ImpressionWriteFailures 曝光异步回写失败次数
	// 回写失败不影响响应，只能靠这里和日志观测到
	ImpressionWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ensemble_impression_write_failures_total",
		Help: "Count of fire-and-forget impression writes that failed.",
	})

	// ActiveSessions 当前会话存储中的会话数
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ensemble_active_sessions",
		Help: "Number of session states currently held in memory.",
	})
)

func Init() {
	prometheus.MustRegister(
		EnsembleRequests,
		EnsembleLatency,
		BackendFailures,
		ImpressionWriteFailures,
		ActiveSessions,
	)
}
