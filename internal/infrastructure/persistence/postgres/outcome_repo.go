package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"analog-forecast-api/internal/domain/entity"
)

// OutcomeRepository 历史实况仓储（Postgres 实现）
// analog_outcomes 表由索引构建流水线写入，查询期只读
type OutcomeRepository struct {
	client *Client
}

// NewOutcomeRepository 创建历史实况仓储
func NewOutcomeRepository(client *Client) *OutcomeRepository {
	return &OutcomeRepository{client: client}
}

// GetByIdentifiers 批量解析标识符对应的实况
// 未命中的标识符不出现在返回值里，由调用方计数丢弃
func (r *OutcomeRepository) GetByIdentifiers(ctx context.Context, horizon int, identifiers []string) (map[string]*entity.Outcome, error) {
	if len(identifiers) == 0 {
		return map[string]*entity.Outcome{}, nil
	}
	ctx, span := tracer.Start(ctx, "postgres.GetByIdentifiers",
		trace.WithAttributes(
			attribute.Int("horizon", horizon),
			attribute.Int("identifiers", len(identifiers)),
		))
	defer span.End()

	rows, err := r.client.db.QueryContext(ctx,
		`SELECT identifier, variable, value, valid
		   FROM analog_outcomes
		  WHERE horizon = $1 AND identifier = ANY($2)`,
		horizon, pq.Array(identifiers),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*entity.Outcome, len(identifiers))
	for rows.Next() {
		var (
			identifier string
			variable   string
			value      float64
			valid      bool
		)
		if err := rows.Scan(&identifier, &variable, &value, &valid); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		o, ok := out[identifier]
		if !ok {
			o = &entity.Outcome{
				Identifier: identifier,
				Horizon:    horizon,
				Values:     make(map[string]float64),
				Valid:      make(map[string]bool),
			}
			out[identifier] = o
		}
		o.Values[variable] = value
		o.Valid[variable] = valid
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// HealthCheck 连接健康检查
func (r *OutcomeRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

// Close 释放底层连接
func (r *OutcomeRepository) Close() error {
	return r.client.Close()
}
