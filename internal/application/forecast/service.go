package forecast

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"analog-forecast-api/internal/config"
	"analog-forecast-api/internal/domain/entity"
	"analog-forecast-api/internal/domain/repository"
	"analog-forecast-api/pkg/errors"
	"analog-forecast-api/pkg/logger"
	"analog-forecast-api/pkg/metrics"
)

// ResultCache 最终预报结果的可选缓存
// 键由请求全部输入派生，同键结果逐字节一致，质量判定绝不单独缓存
type ResultCache interface {
	Key(horizon, k int, variables []string, query []float32) string
	Get(ctx context.Context, key string) (*entity.ForecastResult, error)
	Put(ctx context.Context, key string, result *entity.ForecastResult)
}

// Query 一次预报请求
type Query struct {
	Horizon   int
	Embedding []float32
	K         int
	Variables []string
}

// Service 预报编排：检索、质量判定、实况解析、加权聚合
type Service struct {
	cfg        *config.Config
	engine     *Engine
	validator  *Validator
	aggregator *Aggregator
	outcomes   repository.OutcomeRepository
	cache      ResultCache

	horizons map[int]bool
}

// NewService 构造预报服务，cache 可为 nil
func NewService(
	cfg *config.Config,
	engine *Engine,
	validator *Validator,
	aggregator *Aggregator,
	outcomes repository.OutcomeRepository,
	cache ResultCache,
) *Service {
	horizons := make(map[int]bool, len(cfg.Index.Horizons))
	for _, h := range cfg.Index.Horizons {
		horizons[h] = true
	}
	return &Service{
		cfg:        cfg,
		engine:     engine,
		validator:  validator,
		aggregator: aggregator,
		outcomes:   outcomes,
		cache:      cache,
		horizons:   horizons,
	}
}

// Horizons 返回已配置的预报时效列表
func (s *Service) Horizons() []int {
	return append([]int(nil), s.cfg.Index.Horizons...)
}

// IndexInfo 返回索引的维度与后端描述
func (s *Service) IndexInfo() (dim int, backend string) {
	return s.cfg.Index.Dim, s.cfg.Index.Backend
}

// Forecast 执行一次完整的类比预报
func (s *Service) Forecast(ctx context.Context, q Query) (*entity.ForecastResult, error) {
	ctx, span := tracer.Start(ctx, "service.forecast", trace.WithAttributes(
		attribute.Int("horizon", q.Horizon),
	))
	defer span.End()

	start := time.Now()
	label := strconv.Itoa(q.Horizon)

	result, err := s.forecast(ctx, q, start)
	if err != nil {
		metrics.ForecastTotal.WithLabelValues(label, "error").Inc()
		return nil, err
	}
	metrics.ForecastTotal.WithLabelValues(label, "ok").Inc()
	return result, nil
}

func (s *Service) forecast(ctx context.Context, q Query, start time.Time) (*entity.ForecastResult, error) {
	if !s.horizons[q.Horizon] {
		return nil, errors.ErrHorizonUnknown.WithDetailf("horizon=%d, configured=%v", q.Horizon, s.cfg.Index.Horizons)
	}
	if q.K <= 0 {
		q.K = s.cfg.Forecast.DefaultK
	}
	if q.K > s.cfg.Forecast.MaxK {
		q.K = s.cfg.Forecast.MaxK
	}
	if len(q.Variables) == 0 {
		q.Variables = entity.DefaultVariables()
	}
	for _, v := range q.Variables {
		if !entity.KnownVariable(v) {
			return nil, errors.ErrVariableUnknown.WithDetailf("variable=%s", v)
		}
	}

	var cacheKey string
	if s.cache != nil {
		cacheKey = s.cache.Key(q.Horizon, q.K, q.Variables, q.Embedding)
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
			logger.Debug(ctx, "forecast served from cache", "horizon", q.Horizon)
			return cached, nil
		}
	}

	search, err := s.engine.Search(ctx, q.Horizon, q.Embedding, q.K)
	if err != nil {
		return nil, err
	}

	verdict := s.validator.Validate(search)
	fallback := false
	if verdict.Degenerate() {
		// 空结果没有可聚合的样本，降级也救不回来
		if !s.cfg.Forecast.FallbackAllowed || verdict.Reason == entity.ReasonEmptyResult {
			return nil, errors.ErrDegenerateResult.WithDetailf("horizon=%d reason=%s", q.Horizon, verdict.Reason)
		}
		fallback = true
		metrics.ForecastFallbacks.WithLabelValues(strconv.Itoa(q.Horizon), verdict.Reason).Inc()
		logger.Warn(ctx, "serving labeled fallback forecast",
			"horizon", q.Horizon,
			"reason", verdict.Reason,
		)
	}

	outcomes, dropped, err := s.resolveOutcomes(ctx, q.Horizon, search.Neighbors)
	if err != nil {
		return nil, err
	}

	variables := s.aggregator.Aggregate(search.Neighbors, outcomes, q.Variables, q.Horizon)

	analogCount := len(outcomes)
	requested := len(variables)
	available := 0
	var confSum float64
	for _, vf := range variables {
		if vf.Available {
			available++
			confSum += vf.Confidence
		}
	}

	// 样本不足按单变量标记，不终止请求；不可用变量按占比拉低整体置信度
	var confidence float64
	if requested > 0 {
		confidence = confSum / float64(requested)
	}
	if available < requested {
		logger.Warn(ctx, "variables below analog minimum marked unavailable",
			"horizon", q.Horizon,
			"requested", requested,
			"available", available,
			"resolved", analogCount,
			"dropped", dropped,
		)
	}
	searchPath := entity.SearchPathPrimary
	if fallback {
		searchPath = entity.SearchPathFallback
		confidence = confidence / 2
	}

	latency := time.Since(start)
	result := &entity.ForecastResult{
		Horizon:            q.Horizon,
		Variables:          variables,
		Confidence:         confidence,
		Verdict:            verdict,
		SearchPath:         searchPath,
		IsFallback:         fallback,
		IndexType:          search.IndexType,
		Device:             search.Device,
		AnalogCount:        analogCount,
		Latency:            latency,
		LatencyMs:          latency.Milliseconds(),
		DroppedIdentifiers: dropped,
	}

	if s.cache != nil && !fallback {
		s.cache.Put(ctx, cacheKey, result)
	}
	return result, nil
}

// resolveOutcomes 批量解析近邻标识符的实况，缺席者计入丢弃数
func (s *Service) resolveOutcomes(ctx context.Context, horizon int, neighbors []entity.Neighbor) (map[string]*entity.Outcome, int, error) {
	ids := make([]string, 0, len(neighbors))
	seen := make(map[string]struct{}, len(neighbors))
	for _, n := range neighbors {
		if _, dup := seen[n.Identifier]; dup {
			continue
		}
		seen[n.Identifier] = struct{}{}
		ids = append(ids, n.Identifier)
	}

	fetchCtx := ctx
	if t := s.cfg.Outcome.FetchTimeout; t > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	outcomes, err := s.outcomes.GetByIdentifiers(fetchCtx, horizon, ids)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.CodeOutcomeStoreError, "outcome lookup failed")
	}

	dropped := len(ids) - len(outcomes)
	if dropped > 0 {
		metrics.DroppedIdentifiers.WithLabelValues(strconv.Itoa(horizon)).Add(float64(dropped))
		logger.Warn(ctx, "neighbors dropped without outcomes",
			"horizon", horizon,
			"requested", len(ids),
			"resolved", len(outcomes),
		)
	}
	return outcomes, dropped, nil
}

// HealthCheck 检查下游依赖可用性
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.outcomes.HealthCheck(ctx)
}
