package forecast

import (
	"context"

	"analog-forecast-api/internal/domain/repository"
	"analog-forecast-api/pkg/errors"
	"analog-forecast-api/pkg/logger"
)

// Registry 启动期全量加载的索引注册表，实现 repository.IndexProvider
// 与 LazyIndexCache 互斥使用：要么启动时全部就绪，要么按需加载
type Registry struct {
	indexes map[int]repository.VectorIndex
	permits map[int]*Permit
}

// NewPreloadedRegistry 按配置的 horizon 列表逐个加载索引
// 任一 horizon 加载失败即整体失败，已加载的索引回滚释放
func NewPreloadedRegistry(ctx context.Context, horizons []int, budget *BudgetTracker, loader IndexLoader, sizer IndexSizer) (*Registry, error) {
	r := &Registry{
		indexes: make(map[int]repository.VectorIndex, len(horizons)),
		permits: make(map[int]*Permit, len(horizons)),
	}
	for _, h := range horizons {
		size, err := sizer(h)
		if err != nil {
			r.rollback(ctx)
			return nil, errors.ErrIndexUnavailable.WithDetailf("horizon=%d: %v", h, err)
		}
		permit, err := budget.Acquire(size)
		if err != nil {
			r.rollback(ctx)
			return nil, err
		}
		idx, err := loader(ctx, h)
		if err != nil {
			permit.Release()
			r.rollback(ctx)
			return nil, err
		}
		r.indexes[h] = idx
		r.permits[h] = permit
		logger.Info(ctx, "index preloaded",
			"horizon", h,
			"entries", idx.Size(),
			"index_type", string(idx.Type()),
			"resident_bytes", idx.SizeBytes(),
		)
	}
	return r, nil
}

func (r *Registry) rollback(ctx context.Context) {
	for h, idx := range r.indexes {
		if err := idx.Close(); err != nil {
			logger.Warn(ctx, "index close failed", "horizon", h, "error", err)
		}
	}
	for _, p := range r.permits {
		p.Release()
	}
	r.indexes = map[int]repository.VectorIndex{}
	r.permits = map[int]*Permit{}
}

// Index 返回已加载的索引
func (r *Registry) Index(_ context.Context, horizon int) (repository.VectorIndex, error) {
	idx, ok := r.indexes[horizon]
	if !ok {
		return nil, errors.ErrIndexUnavailable.WithDetailf("horizon=%d not loaded", horizon)
	}
	return idx, nil
}

// Close 释放全部索引与预算额度
func (r *Registry) Close() error {
	r.rollback(context.Background())
	return nil
}
