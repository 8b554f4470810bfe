package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"ensemble_recommender/internal/logger"
	"ensemble_recommender/internal/metrics"
	"ensemble_recommender/internal/model"
)

// Journal 曝光流水的 jsonl 追加日志，用于离线分析
// 尽力而为：写入失败只记日志和指标，绝不向上传播
type Journal struct {
	filePath string
	mu       sync.Mutex
}

// NewJournal 创建曝光流水，文件不存在时会自动创建
func NewJournal(filePath string) (*Journal, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open impression journal: %w", err)
	}
	f.Close()
	return &Journal{filePath: filePath}, nil
}

// Append 追加一批曝光记录
func (j *Journal) Append(sessionKey string, bySource map[string][]model.Recommendation) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.filePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		logger.Warn("impression journal open failed: %v", err)
		metrics.ImpressionWriteFailures.Inc()
		return
	}
	defer f.Close()

	now := time.Now().Unix()
	encoder := json.NewEncoder(f)
	for source, recs := range bySource {
		for _, rec := range recs {
			imp := model.Impression{
				SessionKey: sessionKey,
				MovieID:    rec.MovieID,
				Source:     source,
				Timestamp:  now,
			}
			if err := encoder.Encode(imp); err != nil {
				logger.Warn("impression journal write failed: %v", err)
				metrics.ImpressionWriteFailures.Inc()
				return
			}
		}
	}
}
