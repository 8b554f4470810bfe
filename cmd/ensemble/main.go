package main

import (
	"time"

	"ensemble_recommender/internal/logger"
	"ensemble_recommender/internal/metrics"
	"ensemble_recommender/internal/router"
	"ensemble_recommender/internal/server"
	"ensemble_recommender/internal/session"
)

func main() {
	// 1. 加载配置
	cfg := InitServerConfig()
	logger.SetDebug(cfg.Server.Debug)
	metrics.Init()

	// 2. 初始化曝光流水（可选）
	var journal *session.Journal
	if cfg.Paths.Journal != "" {
		j, err := session.NewJournal(cfg.Paths.Journal)
		if err != nil {
			// 流水只是旁路观测，初始化失败不阻止启动
			logger.Warn("impression journal disabled: %v", err)
		} else {
			journal = j
		}
	}

	// 3. 初始化会话存储和后台清理
	store := session.NewShardedStore(journal)
	ttl := time.Duration(cfg.Session.TTLMinutes) * time.Minute
	sweepInterval := time.Duration(cfg.Session.SweepIntervalMinutes) * time.Minute
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			removed := store.Cleanup(ttl)
			metrics.ActiveSessions.Set(float64(store.Len()))
			if removed > 0 {
				logger.Info("session sweep removed %d idle sessions, %d remaining", removed, store.Len())
			}
		}
	}()

	// 4. 加载后端配置并实例化
	backendsCfg, err := loadBackendsConfig(cfg.Paths.Backends)
	if err != nil {
		logger.Fatal("Failed to load backends config: %v", err)
	}
	registry := RegisterBackends()
	backends, err := BuildBackends(registry, backendsCfg)
	if err != nil {
		logger.Fatal("Failed to build backends: %v", err)
	}

	// 5. 组装 Router 和 HTTP Server
	r := router.New(backends, store, time.Duration(cfg.Ensemble.BackendTimeoutMs)*time.Millisecond)
	srv := server.NewServer(r, time.Duration(cfg.Ensemble.RequestTimeoutMs)*time.Millisecond)

	logger.Info("Starting ensemble server on port %s with %d backends: %v", cfg.Server.Port, len(backends), r.Sources())
	if err := srv.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Server failed: %v", err)
	}
}
