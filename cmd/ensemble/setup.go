package main

import (
	"fmt"
	"sort"

	"ensemble_recommender/internal/backend"
)

// RegisterBackends 注册所有可用的后端类型
func RegisterBackends() *backend.Registry {
	registry := backend.NewRegistry()

	// HTTP 后端：远端相似检索服务
	registry.Register("http", backend.NewHTTPBackend)

	// 静态后端：离线产出的邻居目录文件
	registry.Register("static", backend.NewStaticBackend)

	return registry
}

// BuildBackends 根据配置实例化全部后端，按源标签字典序排列保证扇出顺序确定
func BuildBackends(registry *backend.Registry, cfg *BackendsConfig) ([]backend.Backend, error) {
	names := make([]string, 0, len(cfg.Backends))
	for name := range cfg.Backends {
		names = append(names, name)
	}
	sort.Strings(names)

	backends := make([]backend.Backend, 0, len(names))
	for _, name := range names {
		b, err := registry.Build(name, cfg.Backends[name])
		if err != nil {
			return nil, fmt.Errorf("failed to build backend '%s': %w", name, err)
		}
		backends = append(backends, b)
	}
	return backends, nil
}
