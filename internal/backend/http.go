package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ensemble_recommender/internal/model"
)

const defaultTimeout = 2 * time.Second

// HTTPBackend 通过 HTTP 调用远端相似检索服务的后端
// 协议: GET {endpoint}?id=<likedID>&k=<count>
// 响应: JSON 数组 [{"movie_id": "...", "title": "..."}, ...]，按相关性降序
type HTTPBackend struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// NewHTTPBackend 创建 HTTP 后端
func NewHTTPBackend(name string, cfg Config) (Backend, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("http backend '%s' missing 'endpoint'", name)
	}
	timeout := defaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	return &HTTPBackend{
		name:     name,
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (b *HTTPBackend) Name() string { return b.name }

func (b *HTTPBackend) Recommend(ctx context.Context, likedID string, count int) ([]model.Recommendation, error) {
	if count <= 0 {
		count = 6
	}

	q := url.Values{}
	q.Set("id", likedID)
	q.Set("k", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, "GET", b.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend '%s' request failed: %w", b.name, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend '%s' error (status %d): %s", b.name, resp.StatusCode, string(body))
	}

	var recs []model.Recommendation
	if err := json.Unmarshal(body, &recs); err != nil {
		return nil, fmt.Errorf("failed to parse backend '%s' response: %w", b.name, err)
	}
	return recs, nil
}
