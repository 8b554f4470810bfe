package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ensemble_recommender/internal/backend"
	"ensemble_recommender/internal/ensemble"
	"ensemble_recommender/internal/logger"
	"ensemble_recommender/internal/metrics"
	"ensemble_recommender/internal/model"
	"ensemble_recommender/internal/session"
)

var (
	// ErrInvalidRequest 请求缺少必填参数，客户端错误，不重试
	ErrInvalidRequest = errors.New("router: liked_id is required")
	// ErrAllBackendsUnavailable 所有召回源都失败或为空，请求级致命错误
	ErrAllBackendsUnavailable = errors.New("router: all backends unavailable")
)

// Router 混排请求的编排器
// 流程：并发调用全部后端 -> 读会话偏好分布 -> 混排 -> 异步回写曝光 -> 返回
type Router struct {
	backends    []backend.Backend
	sessions    session.Store
	callTimeout time.Duration
}

// New 创建 Router，callTimeout 是单个后端调用的超时
func New(backends []backend.Backend, sessions session.Store, callTimeout time.Duration) *Router {
	if callTimeout <= 0 {
		callTimeout = 2 * time.Second
	}
	return &Router{
		backends:    backends,
		sessions:    sessions,
		callTimeout: callTimeout,
	}
}

// Sources 返回已配置的召回源标签
func (r *Router) Sources() []string {
	names := make([]string, 0, len(r.backends))
	for _, b := range r.backends {
		names = append(names, b.Name())
	}
	return names
}

// Handle 处理一次混排请求
// sessionKey 为空表示无个性化；count <= 0 时取默认值
func (r *Router) Handle(ctx context.Context, likedID, sessionKey string, count int) (*model.EnsembleResult, error) {
	if likedID == "" {
		return nil, ErrInvalidRequest
	}
	if count <= 0 {
		count = ensemble.DefaultCount
	}

	// 1. 并发扇出到所有后端
	// Best Effort 策略：只要有一个后端成功就继续，失败的源按空结果降级；
	// 全部失败才算请求失败
	results, err := r.fanout(ctx, likedID, count)
	if err != nil {
		return nil, err
	}

	// 2. 读取会话偏好分布（nil 表示无偏好，混排时退化为均匀分布）
	weights := r.sessions.GetDistribution(sessionKey, likedID)

	// 3. 混排
	result, err := ensemble.Select(weights, results, count)
	if err != nil {
		if errors.Is(err, ensemble.ErrEmptyInput) {
			return nil, ErrAllBackendsUnavailable
		}
		return nil, err
	}

	// 4. 异步回写曝光，不阻塞响应
	// 回写失败绝不影响用户可见的结果，只记日志和指标
	go func(key string, impressions map[string][]model.Recommendation) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("impression write panic: %v", rec)
				metrics.ImpressionWriteFailures.Inc()
			}
		}()
		r.sessions.RecordImpressions(key, impressions)
	}(sessionKey, result.Impressions)

	return result, nil
}

// fanout 并发调用全部后端，返回 source -> 结果列表
// 失败或超时的后端贡献空结果；全部失败时返回 ErrAllBackendsUnavailable
func (r *Router) fanout(ctx context.Context, likedID string, count int) (map[string][]model.Recommendation, error) {
	var wg sync.WaitGroup
	var successCount int32
	var mu sync.Mutex // 保护 results 和 failures
	results := make(map[string][]model.Recommendation, len(r.backends))
	var failures []string

	for _, b := range r.backends {
		wg.Add(1)
		go func(b backend.Backend) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					mu.Lock()
					failures = append(failures, fmt.Sprintf("backend %s panic: %v", b.Name(), rec))
					mu.Unlock()
					metrics.BackendFailures.WithLabelValues(b.Name()).Inc()
				}
			}()

			// 每个调用有独立超时，超时即放弃，迟到的结果直接丢弃
			callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
			defer cancel()

			recs, err := b.Recommend(callCtx, likedID, count)
			if err != nil {
				logger.Warn("backend '%s' degraded to empty contribution: %v", b.Name(), err)
				metrics.BackendFailures.WithLabelValues(b.Name()).Inc()
				mu.Lock()
				failures = append(failures, fmt.Sprintf("backend %s: %v", b.Name(), err))
				results[b.Name()] = nil
				mu.Unlock()
				return
			}

			mu.Lock()
			results[b.Name()] = recs
			mu.Unlock()
			atomic.AddInt32(&successCount, 1)
		}(b)
	}

	wg.Wait()

	if successCount == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAllBackendsUnavailable, strings.Join(failures, "; "))
	}
	if len(failures) > 0 {
		logger.Warn("fanout completed with %d degraded backends: %v", len(failures), failures)
	}
	return results, nil
}
