package ensemble

import (
	"errors"
	"math"
	"sort"

	"ensemble_recommender/internal/model"
)

// DefaultCount 未指定时的默认返回条数
const DefaultCount = 6

// ErrEmptyInput 所有召回源都没有返回任何候选
var ErrEmptyInput = errors.New("ensemble: no source produced any candidate")

// Select 按权重分布对多路召回结果做混排
// 纯函数，无共享状态，可以被任意多个请求并发调用
//
// 处理顺序：
//  1. 只考虑有候选的召回源，全空则返回 ErrEmptyInput
//  2. 权重归一化；总权重为 0 时退化为均匀分布
//  3. 跨源按 movieID 去重，重复条目归属权重更高的源
//  4. 最大余数法按比例分配各源的名额，名额受候选数上限约束，
//     缺口按权重从高到低轮转补齐
//  5. 按权重降序轮转交织各源条目，源内保持后端原始排序
func Select(weights map[string]float64, results map[string][]model.Recommendation, count int) (*model.EnsembleResult, error) {
	if count <= 0 {
		count = DefaultCount
	}

	// 1. 收集有结果的召回源
	var sources []string
	for s, items := range results {
		if len(items) > 0 {
			sources = append(sources, s)
		}
	}
	if len(sources) == 0 {
		return nil, ErrEmptyInput
	}
	sort.Strings(sources)

	// 2. 归一化权重，缺失视为 0，负数按 0 处理
	dist := normalize(weights, sources)

	// 3. 跨源去重：同一部电影归属权重更高的源（权重相同取字典序小的）
	owned := dedup(results, sources, dist)

	// 4. 按比例分配名额
	target := count
	totalCap := 0
	for _, s := range sources {
		totalCap += len(owned[s])
	}
	if target > totalCap {
		target = totalCap
	}
	alloc := allocate(sources, dist, owned, target)

	// 5. 按权重降序轮转交织
	order := byWeightDesc(sources, dist)
	chosen := make([]model.Recommendation, 0, target)
	taken := make(map[string]int, len(sources))
	for len(chosen) < target {
		for _, s := range order {
			if len(chosen) >= target {
				break
			}
			if taken[s] < alloc[s] {
				chosen = append(chosen, owned[s][taken[s]])
				taken[s]++
			}
		}
	}

	impressions := make(map[string][]model.Recommendation, len(sources))
	for _, rec := range chosen {
		impressions[rec.Source] = append(impressions[rec.Source], rec)
	}

	return &model.EnsembleResult{
		Distribution: dist,
		Impressions:  impressions,
		Chosen:       chosen,
	}, nil
}

// normalize 对有结果的源做权重归一化，返回总和为 1 的分布
func normalize(weights map[string]float64, sources []string) map[string]float64 {
	dist := make(map[string]float64, len(sources))
	total := 0.0
	for _, s := range sources {
		w := weights[s]
		if w < 0 {
			w = 0
		}
		dist[s] = w
		total += w
	}

	// 总权重为 0：没有任何偏好信号，退化为均匀分布
	if total == 0 {
		for _, s := range sources {
			dist[s] = 1.0 / float64(len(sources))
		}
		return dist
	}

	for _, s := range sources {
		dist[s] /= total
	}
	return dist
}

// dedup 跨源去重，返回每个源"拥有"的候选列表（保持后端原始顺序）
// 同一 movieID 出现在多个源时，归属归一化权重最高的源
func dedup(results map[string][]model.Recommendation, sources []string, dist map[string]float64) map[string][]model.Recommendation {
	owner := make(map[string]string)
	for _, s := range sources {
		for _, rec := range results[s] {
			cur, exists := owner[rec.MovieID]
			if !exists || dist[s] > dist[cur] || (dist[s] == dist[cur] && s < cur) {
				owner[rec.MovieID] = s
			}
		}
	}

	owned := make(map[string][]model.Recommendation, len(sources))
	for _, s := range sources {
		seen := make(map[string]struct{})
		for rank, rec := range results[s] {
			if owner[rec.MovieID] != s {
				continue
			}
			// 源内重复只保留第一次出现
			if _, dup := seen[rec.MovieID]; dup {
				continue
			}
			seen[rec.MovieID] = struct{}{}
			rec.Source = s
			rec.Rank = rank
			owned[s] = append(owned[s], rec)
		}
	}
	return owned
}

// allocate 最大余数法分配名额，名额不超过各源候选数
// 因上限约束产生的缺口按权重从高到低（同权字典序）轮转补齐
func allocate(sources []string, dist map[string]float64, owned map[string][]model.Recommendation, target int) map[string]int {
	alloc := make(map[string]int, len(sources))
	frac := make(map[string]float64, len(sources))
	assigned := 0

	for _, s := range sources {
		quota := dist[s] * float64(target)
		base := int(math.Floor(quota))
		if c := len(owned[s]); base > c {
			base = c
		}
		alloc[s] = base
		frac[s] = quota - math.Floor(quota)
		assigned += base
	}

	// 第一轮：按余数从大到小，每源最多补一个
	remOrder := append([]string(nil), sources...)
	sort.Slice(remOrder, func(i, j int) bool {
		a, b := remOrder[i], remOrder[j]
		if frac[a] != frac[b] {
			return frac[a] > frac[b]
		}
		if dist[a] != dist[b] {
			return dist[a] > dist[b]
		}
		return a < b
	})
	for _, s := range remOrder {
		if assigned >= target {
			break
		}
		if alloc[s] < len(owned[s]) {
			alloc[s]++
			assigned++
		}
	}

	// 后续轮次：上限约束导致的缺口，按权重降序轮转
	order := byWeightDesc(sources, dist)
	for assigned < target {
		progressed := false
		for _, s := range order {
			if assigned >= target {
				break
			}
			if alloc[s] < len(owned[s]) {
				alloc[s]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return alloc
}

// byWeightDesc 按归一化权重降序排列源，同权按字典序
func byWeightDesc(sources []string, dist map[string]float64) []string {
	order := append([]string(nil), sources...)
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if dist[a] != dist[b] {
			return dist[a] > dist[b]
		}
		return a < b
	})
	return order
}
