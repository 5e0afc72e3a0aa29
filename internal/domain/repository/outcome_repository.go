package repository

import (
	"context"

	"analog-forecast-api/internal/domain/entity"
)

// OutcomeRepository 历史实况存储
// 查询期只读；未命中的标识符直接缺席返回值，由调用方计数丢弃
type OutcomeRepository interface {
	// GetByIdentifiers 批量解析标识符对应的实况，键为标识符
	GetByIdentifiers(ctx context.Context, horizon int, identifiers []string) (map[string]*entity.Outcome, error)
	// HealthCheck 连接健康检查
	HealthCheck(ctx context.Context) error
	// Close 释放底层连接
	Close() error
}
