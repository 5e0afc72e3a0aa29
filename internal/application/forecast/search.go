package forecast

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"analog-forecast-api/internal/domain/entity"
	"analog-forecast-api/internal/domain/repository"
	"analog-forecast-api/pkg/errors"
	"analog-forecast-api/pkg/logger"
	"analog-forecast-api/pkg/metrics"
)

var tracer = otel.Tracer("application.forecast")

// Engine 单个 horizon 上的 k-NN 检索入口
// 查询校验、句柄获取、检索计时都在这里收口
type Engine struct {
	provider repository.IndexProvider
	pool     *HandlePool
	device   *Device
	dim      int
	maxK     int
}

// NewEngine 构造检索引擎
func NewEngine(provider repository.IndexProvider, pool *HandlePool, device *Device, dim, maxK int) *Engine {
	return &Engine{
		provider: provider,
		pool:     pool,
		device:   device,
		dim:      dim,
		maxK:     maxK,
	}
}

// Search 在指定 horizon 上检索 k 条近邻
// 查询向量必须已归一化；k 超过上限按上限截断
func (e *Engine) Search(ctx context.Context, horizon int, query []float32, k int) (*entity.SearchResult, error) {
	ctx, span := tracer.Start(ctx, "engine.search", trace.WithAttributes(
		attribute.Int("horizon", horizon),
		attribute.Int("k", k),
	))
	defer span.End()

	if len(query) != e.dim {
		return nil, errors.ErrQueryMalformed.WithDetailf("embedding dimension %d, expected %d", len(query), e.dim)
	}
	emb := entity.Embedding{Vector: query, Horizon: horizon}
	if err := emb.VerifyNormalized(); err != nil {
		return nil, errors.ErrQueryMalformed.WithDetail(err.Error())
	}
	if k <= 0 {
		return nil, errors.ErrQueryMalformed.WithDetailf("k must be positive, got %d", k)
	}
	if k > e.maxK {
		k = e.maxK
	}

	idx, err := e.provider.Index(ctx, horizon)
	if err != nil {
		if errors.IsAppError(err) {
			return nil, err
		}
		return nil, errors.ErrIndexUnavailable.WithError(err).WithDetailf("horizon=%d", horizon)
	}
	if d := idx.Dim(); d != e.dim {
		return nil, errors.ErrIndexUnavailable.WithDetailf("horizon=%d index dimension %d, expected %d", horizon, d, e.dim)
	}

	release, err := e.pool.Acquire(ctx, horizon)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	neighbors, err := idx.Search(ctx, query, k)
	latency := time.Since(start)
	label := strconv.Itoa(horizon)
	indexType := string(idx.Type())
	metrics.SearchDuration.WithLabelValues(label, indexType).Observe(latency.Seconds())
	if err != nil {
		metrics.SearchTotal.WithLabelValues(label, indexType, "error").Inc()
		if errors.IsAppError(err) || ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.ErrIndexUnavailable.WithError(err).WithDetailf("horizon=%d search failed", horizon)
	}
	metrics.SearchTotal.WithLabelValues(label, indexType, "ok").Inc()

	logger.Debug(ctx, "search completed",
		"horizon", horizon,
		"k", k,
		"hits", len(neighbors),
		"index_type", indexType,
		"latency_ms", latency.Milliseconds(),
	)
	span.SetAttributes(attribute.Int("hits", len(neighbors)))

	return &entity.SearchResult{
		Horizon:   horizon,
		Neighbors: neighbors,
		Latency:   latency,
		IndexType: idx.Type(),
		Device:    e.device.Path,
	}, nil
}
