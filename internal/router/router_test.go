package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ensemble_recommender/internal/backend"
	"ensemble_recommender/internal/model"
)

// fakeBackend 可编排成功、失败或慢响应
type fakeBackend struct {
	name  string
	recs  []model.Recommendation
	err   error
	delay time.Duration
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Recommend(ctx context.Context, likedID string, count int) ([]model.Recommendation, error) {
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.recs, nil
}

// stubStore 记录所有回写，便于验证 fire-and-forget 路径
type stubStore struct {
	mu       sync.Mutex
	dist     map[string]float64
	recorded []map[string][]model.Recommendation
}

func (s *stubStore) GetDistribution(sessionKey, likedID string) map[string]float64 {
	return s.dist
}

func (s *stubStore) RecordImpressions(sessionKey string, bySource map[string][]model.Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, bySource)
}

func (s *stubStore) Cleanup(time.Duration) int { return 0 }
func (s *stubStore) Len() int                  { return 0 }

func (s *stubStore) recordedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recorded)
}

func recs(source string, n int) []model.Recommendation {
	out := make([]model.Recommendation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.Recommendation{
			MovieID: fmt.Sprintf("%s-%d", source, i),
			Title:   fmt.Sprintf("Movie %s %d", source, i),
		})
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestHandleInvalidRequest(t *testing.T) {
	r := New(nil, &stubStore{}, time.Second)
	if _, err := r.Handle(context.Background(), "", "sess", 6); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestHandleHappyPath(t *testing.T) {
	store := &stubStore{}
	r := New([]backend.Backend{
		&fakeBackend{name: "color", recs: recs("color", 6)},
		&fakeBackend{name: "plot", recs: recs("plot", 6)},
	}, store, time.Second)

	res, err := r.Handle(context.Background(), "42", "sess", 6)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(res.Chosen) != 6 {
		t.Errorf("expected 6 chosen, got %d", len(res.Chosen))
	}
	if len(res.Distribution) != 2 {
		t.Errorf("expected 2 sources in distribution, got %v", res.Distribution)
	}

	// 曝光回写是异步的，轮询等待
	waitFor(t, func() bool { return store.recordedCount() == 1 })
}

func TestHandleDegradedBackend(t *testing.T) {
	store := &stubStore{}
	r := New([]backend.Backend{
		&fakeBackend{name: "color", recs: recs("color", 6)},
		&fakeBackend{name: "plot", err: errors.New("index not ready")},
	}, store, time.Second)

	res, err := r.Handle(context.Background(), "42", "sess", 6)
	if err != nil {
		t.Fatalf("expected graceful degradation, got %v", err)
	}
	if len(res.Chosen) == 0 || len(res.Chosen) > 6 {
		t.Errorf("expected 1..6 chosen, got %d", len(res.Chosen))
	}
	for _, rec := range res.Chosen {
		if rec.Source != "color" {
			t.Errorf("degraded source leaked into result: %+v", rec)
		}
	}
	if _, ok := res.Distribution["plot"]; ok {
		t.Errorf("failed source must not appear in distribution: %v", res.Distribution)
	}
}

func TestHandleBackendTimeout(t *testing.T) {
	store := &stubStore{}
	r := New([]backend.Backend{
		&fakeBackend{name: "color", recs: recs("color", 6)},
		&fakeBackend{name: "plot", recs: recs("plot", 6), delay: time.Second},
	}, store, 30*time.Millisecond)

	res, err := r.Handle(context.Background(), "42", "sess", 6)
	if err != nil {
		t.Fatalf("expected graceful degradation on timeout, got %v", err)
	}
	for _, rec := range res.Chosen {
		if rec.Source != "color" {
			t.Errorf("timed-out source contributed a result: %+v", rec)
		}
	}
}

func TestHandleAllBackendsFail(t *testing.T) {
	r := New([]backend.Backend{
		&fakeBackend{name: "color", err: errors.New("down")},
		&fakeBackend{name: "plot", err: errors.New("down")},
	}, &stubStore{}, time.Second)

	if _, err := r.Handle(context.Background(), "42", "sess", 6); !errors.Is(err, ErrAllBackendsUnavailable) {
		t.Errorf("expected ErrAllBackendsUnavailable, got %v", err)
	}
}

func TestHandleAllBackendsEmpty(t *testing.T) {
	// 后端调用成功但全都返回空列表，等价于全部不可用
	r := New([]backend.Backend{
		&fakeBackend{name: "color"},
		&fakeBackend{name: "plot"},
	}, &stubStore{}, time.Second)

	if _, err := r.Handle(context.Background(), "42", "sess", 6); !errors.Is(err, ErrAllBackendsUnavailable) {
		t.Errorf("expected ErrAllBackendsUnavailable, got %v", err)
	}
}

func TestHandleUsesSessionDistribution(t *testing.T) {
	// 会话偏好 9:1 偏向 plot，6 条中 plot 应占多数
	store := &stubStore{dist: map[string]float64{"color": 0.1, "plot": 0.9}}
	r := New([]backend.Backend{
		&fakeBackend{name: "color", recs: recs("color", 6)},
		&fakeBackend{name: "plot", recs: recs("plot", 6)},
	}, store, time.Second)

	res, err := r.Handle(context.Background(), "42", "sess", 6)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	plotCount := 0
	for _, rec := range res.Chosen {
		if rec.Source == "plot" {
			plotCount++
		}
	}
	if plotCount <= 3 {
		t.Errorf("expected plot majority under 0.9 weight, got %d of %d", plotCount, len(res.Chosen))
	}
}

func TestHandleNoSessionKey(t *testing.T) {
	// 无会话时退化为均匀分布，仍然成功
	store := &stubStore{}
	r := New([]backend.Backend{
		&fakeBackend{name: "color", recs: recs("color", 3)},
		&fakeBackend{name: "plot", recs: recs("plot", 3)},
	}, store, time.Second)

	res, err := r.Handle(context.Background(), "42", "", 6)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(res.Chosen) != 6 {
		t.Errorf("expected 6 chosen, got %d", len(res.Chosen))
	}
}
