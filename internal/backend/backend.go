package backend

import (
	"context"
	"fmt"

	"ensemble_recommender/internal/model"
)

// Backend 定义一路召回源的能力接口
// 每个实现对应一个独立的相似推荐服务（如按色彩、按剧情）
type Backend interface {
	// Name 返回源标签，同时用作权重分布的 key 和曝光归属标记
	Name() string
	// Recommend 返回与 likedID 相似的电影，按相关性降序
	// count <= 0 时由实现方取默认值 6
	Recommend(ctx context.Context, likedID string, count int) ([]model.Recommendation, error)
}

// Config 单个后端在 backends.yaml 中的配置片段
type Config struct {
	Type      string `yaml:"type"`               // "http" 或 "static"
	Endpoint  string `yaml:"endpoint,omitempty"` // http 后端的完整地址
	TimeoutMs int    `yaml:"timeout_ms,omitempty"`
	Catalog   string `yaml:"catalog,omitempty"` // static 后端的目录文件路径
}

// Factory 创建 Backend 的函数签名，name 是源标签
type Factory func(name string, cfg Config) (Backend, error)

// Registry 后端类型注册表
// 新增召回源通过注册 Factory 实现，不支持运行期动态注入代码
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register 注册一种后端类型
func (r *Registry) Register(kind string, factory Factory) {
	r.factories[kind] = factory
}

// Build 根据配置创建后端实例
func (r *Registry) Build(name string, cfg Config) (Backend, error) {
	factory, ok := r.factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
	return factory(name, cfg)
}
