package model

// Recommendation 代表某条推荐结果（一部电影）
// 由后端产出后即不可变，Source 由 Router 标记为产出它的召回源
type Recommendation struct {
	MovieID string `json:"movie_id"`
	Title   string `json:"title"`
	Source  string `json:"source,omitempty"` // 召回源标记 (e.g., "color", "plot")
	Rank    int    `json:"rank"`             // 后端原始排序位置，0 为最相关
}

// Impression 代表一次曝光事实：某部电影以某个召回源的身份展示给了某个会话
type Impression struct {
	SessionKey string `json:"session_key"`
	MovieID    string `json:"movie_id"`
	Source     string `json:"source"`
	Timestamp  int64  `json:"timestamp"`
}

// EnsembleResult 是一次混排的完整输出
type EnsembleResult struct {
	// Distribution 归一化后的权重分布，只覆盖本次有结果的召回源，总和为 1
	Distribution map[string]float64 `json:"dist"`
	// Impressions 按召回源记录实际入选的条目（去重后），用于回写曝光
	Impressions map[string][]Recommendation `json:"-"`
	// Chosen 最终返回给调用方的有序去重列表
	Chosen []Recommendation `json:"items"`
}

// SourceMap 返回 movieID -> source 的映射，用于响应中的 sources 字段
func (r *EnsembleResult) SourceMap() map[string]string {
	m := make(map[string]string, len(r.Chosen))
	for _, rec := range r.Chosen {
		m[rec.MovieID] = rec.Source
	}
	return m
}

// MovieIDs 按最终顺序返回入选的 movieID 列表
func (r *EnsembleResult) MovieIDs() []string {
	ids := make([]string, 0, len(r.Chosen))
	for _, rec := range r.Chosen {
		ids = append(ids, rec.MovieID)
	}
	return ids
}
