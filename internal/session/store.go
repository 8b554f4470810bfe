package session

import (
	"hash/fnv"
	"sync"
	"time"

	"ensemble_recommender/internal/model"
)

// shardCount 分片数，固定为 2 的幂方便取模
const shardCount = 32

// Store 定义会话偏好状态的接口
// 会话状态只能通过这里的操作读写，Router 不直接持有状态引用
type Store interface {
	// GetDistribution 返回该会话的偏好分布
	// 若 likedID 能在曝光历史中找到归属源，则先给该源的计数加一（学习写入），
	// 再按计数比例返回总和为 1 的分布；
	// 找不到归属或会话全新时返回 nil，表示"尚无偏好"（冷启动，不是错误）
	GetDistribution(sessionKey, likedID string) map[string]float64

	// RecordImpressions 记录曝光：movieID -> source，同一 movieID 后写覆盖先写
	// 本操作不改变偏好计数，计数只在 GetDistribution 解析点击时变化
	RecordImpressions(sessionKey string, bySource map[string][]model.Recommendation)

	// Cleanup 清除空闲超过 maxIdle 的会话，返回清除数量
	Cleanup(maxIdle time.Duration) int

	// Len 返回当前持有的会话数
	Len() int
}

// state 单个会话的私有状态
type state struct {
	counts      map[string]int    // source -> 被点击次数
	impressions map[string]string // movieID -> source
	lastAccess  time.Time
}

type shard struct {
	mu       sync.Mutex
	sessions map[string]*state
}

// ShardedStore 基于分片锁的内存会话存储
// 不同会话落在不同分片时互不阻塞；同一会话的操作被分片锁串行化，
// 避免计数和曝光历史的丢失更新
type ShardedStore struct {
	shards  [shardCount]*shard
	journal *Journal // 可选的曝光流水，nil 表示不落盘
}

// NewShardedStore 创建会话存储，journal 传 nil 则不写曝光流水
func NewShardedStore(journal *Journal) *ShardedStore {
	s := &ShardedStore{journal: journal}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*state)}
	}
	return s
}

func (s *ShardedStore) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// getOrCreate 惰性创建会话状态，调用方必须持有分片锁
func (sh *shard) getOrCreate(key string) *state {
	st, ok := sh.sessions[key]
	if !ok {
		st = &state{
			counts:      make(map[string]int),
			impressions: make(map[string]string),
		}
		sh.sessions[key] = st
	}
	st.lastAccess = time.Now()
	return st
}

// GetDistribution 实现 Store 接口
func (s *ShardedStore) GetDistribution(sessionKey, likedID string) map[string]float64 {
	if sessionKey == "" {
		return nil // 无会话即无个性化
	}

	sh := s.shardFor(sessionKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st := sh.getOrCreate(sessionKey)

	src, ok := st.impressions[likedID]
	if !ok {
		// 冷启动路径：点击的电影不在曝光历史里，返回中性分布
		return nil
	}
	st.counts[src]++

	total := 0
	for _, c := range st.counts {
		total += c
	}
	dist := make(map[string]float64, len(st.counts))
	for source, c := range st.counts {
		dist[source] = float64(c) / float64(total)
	}
	return dist
}

// RecordImpressions 实现 Store 接口
func (s *ShardedStore) RecordImpressions(sessionKey string, bySource map[string][]model.Recommendation) {
	if sessionKey == "" || len(bySource) == 0 {
		return
	}

	sh := s.shardFor(sessionKey)
	sh.mu.Lock()
	st := sh.getOrCreate(sessionKey)
	for source, recs := range bySource {
		for _, rec := range recs {
			st.impressions[rec.MovieID] = source
		}
	}
	sh.mu.Unlock()

	// 流水写盘放在锁外，失败不影响内存状态
	if s.journal != nil {
		s.journal.Append(sessionKey, bySource)
	}
}

// Cleanup 实现 Store 接口
func (s *ShardedStore) Cleanup(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, st := range sh.sessions {
			if st.lastAccess.Before(cutoff) {
				delete(sh.sessions, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len 实现 Store 接口
func (s *ShardedStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}
