// Package sqlite 提供基于索引文件的历史实况访问实现
// 面向无 Postgres 的单机/文件部署：实况与向量同在一个 horizon 索引文件里
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite" // 注册纯 Go SQLite 驱动

	"analog-forecast-api/internal/domain/entity"
	"analog-forecast-api/internal/infrastructure/vectorindex"
)

var tracer = otel.Tracer("sqlite")

// OutcomeRepository 历史实况仓储（SQLite 文件实现）
type OutcomeRepository struct {
	dir string

	mu  sync.Mutex
	dbs map[int]*sql.DB
}

// NewOutcomeRepository 创建文件实况仓储
func NewOutcomeRepository(dir string) *OutcomeRepository {
	return &OutcomeRepository{
		dir: dir,
		dbs: make(map[int]*sql.DB),
	}
}

// db 按 horizon 打开（并缓存）只读连接
func (r *OutcomeRepository) db(horizon int) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if db, ok := r.dbs[horizon]; ok {
		return db, nil
	}
	path := vectorindex.FilePath(r.dir, horizon)
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open outcome source %s: %w", path, err)
	}
	r.dbs[horizon] = db
	return db, nil
}

// GetByIdentifiers 批量解析标识符对应的实况
func (r *OutcomeRepository) GetByIdentifiers(ctx context.Context, horizon int, identifiers []string) (map[string]*entity.Outcome, error) {
	if len(identifiers) == 0 {
		return map[string]*entity.Outcome{}, nil
	}
	ctx, span := tracer.Start(ctx, "sqlite.GetByIdentifiers",
		trace.WithAttributes(
			attribute.Int("horizon", horizon),
			attribute.Int("identifiers", len(identifiers)),
		))
	defer span.End()

	db, err := r.db(horizon)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// SQLite 无数组绑定，按需展开占位符
	args := make([]any, 0, len(identifiers))
	placeholders := ""
	for i, id := range identifiers {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, id)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT identifier, variable, value, valid FROM outcomes WHERE identifier IN (`+placeholders+`)`,
		args...,
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
			valid      int
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
		o.Valid[variable] = valid != 0
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// HealthCheck 对首个已打开的库执行 ping
func (r *OutcomeRepository) HealthCheck(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, db := range r.dbs {
		return db.PingContext(ctx)
	}
	return nil
}

// Close 关闭全部已打开的库
func (r *OutcomeRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for h, db := range r.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.dbs, h)
	}
	return firstErr
}
