package backend

import (
	"context"
	"fmt"
	"os"

	"ensemble_recommender/internal/model"

	"gopkg.in/yaml.v3"
)

// StaticBackend 基于静态目录文件的后端实现
// 目录文件预先给出每部电影的相似邻居列表（离线任务的产物），
// 适合本地开发和小规模数据集
type StaticBackend struct {
	name      string
	titles    map[string]string   // movieID -> title
	neighbors map[string][]string // movieID -> 按相似度降序的邻居
}

type catalogEntry struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	Neighbors []string `yaml:"neighbors"`
}

type catalogFile struct {
	Movies []catalogEntry `yaml:"movies"`
}

// NewStaticBackend 从 yaml 目录文件创建静态后端
func NewStaticBackend(name string, cfg Config) (Backend, error) {
	if cfg.Catalog == "" {
		return nil, fmt.Errorf("static backend '%s' missing 'catalog'", name)
	}

	data, err := os.ReadFile(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var catalog catalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	b := &StaticBackend{
		name:      name,
		titles:    make(map[string]string, len(catalog.Movies)),
		neighbors: make(map[string][]string, len(catalog.Movies)),
	}
	for _, m := range catalog.Movies {
		b.titles[m.ID] = m.Title
		b.neighbors[m.ID] = m.Neighbors
	}
	return b, nil
}

func (b *StaticBackend) Name() string { return b.name }

func (b *StaticBackend) Recommend(_ context.Context, likedID string, count int) ([]model.Recommendation, error) {
	if count <= 0 {
		count = 6
	}

	ids, ok := b.neighbors[likedID]
	if !ok {
		return nil, fmt.Errorf("movie '%s' not in catalog of backend '%s'", likedID, b.name)
	}

	if len(ids) > count {
		ids = ids[:count]
	}
	recs := make([]model.Recommendation, 0, len(ids))
	for _, id := range ids {
		recs = append(recs, model.Recommendation{
			MovieID: id,
			Title:   b.titles[id],
		})
	}
	return recs, nil
}
