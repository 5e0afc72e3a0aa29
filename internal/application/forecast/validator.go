package forecast

import (
	"math"
	"strconv"

	"analog-forecast-api/internal/config"
	"analog-forecast-api/internal/domain/entity"
	"analog-forecast-api/pkg/metrics"
)

// Validator 对每次检索结果做退化检查
// 判定只依赖当次结果，绝不跨查询复用
type Validator struct {
	minUniqueness float64
	minStddev     float64
}

// NewValidator 构造质量校验器
func NewValidator(cfg *config.QualityConfig) *Validator {
	return &Validator{
		minUniqueness: cfg.MinUniquenessRatio,
		minStddev:     cfg.MinSimilarityStddev,
	}
}

// Validate 依次检查空结果、相似度值域、距离单调性、方差和标识符唯一性
// 失效（degenerate）判定优先于降级（degraded）
func (v *Validator) Validate(result *entity.SearchResult) entity.QualityVerdict {
	verdict := v.classify(result)
	metrics.ValidationVerdicts.WithLabelValues(
		strconv.Itoa(result.Horizon), string(verdict.Class), verdict.Reason,
	).Inc()
	return verdict
}

func (v *Validator) classify(result *entity.SearchResult) entity.QualityVerdict {
	if result.Len() == 0 {
		return entity.QualityVerdict{Class: entity.VerdictDegenerate, Reason: entity.ReasonEmptyResult}
	}

	prev := math.Inf(-1)
	for _, n := range result.Neighbors {
		if math.IsNaN(n.Distance) || math.IsInf(n.Distance, 0) || n.Distance < 0 || n.Distance > 2 {
			return entity.QualityVerdict{Class: entity.VerdictDegenerate, Reason: entity.ReasonOutOfRange}
		}
		if n.Distance < prev {
			return entity.QualityVerdict{Class: entity.VerdictDegenerate, Reason: entity.ReasonNonMonotonic}
		}
		prev = n.Distance
	}

	stddev := similarityStddev(result)
	unique := uniquenessRatio(result)

	// 单条命中无方差可言，跳过塌缩检查
	if result.Len() >= 2 && stddev < v.minStddev {
		return entity.QualityVerdict{
			Class:            entity.VerdictDegenerate,
			Reason:           entity.ReasonLowVariance,
			UniquenessRatio:  unique,
			SimilarityStddev: stddev,
		}
	}
	if unique < v.minUniqueness {
		return entity.QualityVerdict{
			Class:            entity.VerdictDegraded,
			Reason:           entity.ReasonLowUniqueness,
			UniquenessRatio:  unique,
			SimilarityStddev: stddev,
		}
	}
	return entity.QualityVerdict{
		Class:            entity.VerdictHealthy,
		UniquenessRatio:  unique,
		SimilarityStddev: stddev,
	}
}

// similarityStddev 相似度序列的总体标准差
func similarityStddev(result *entity.SearchResult) float64 {
	sims := result.Similarities()
	if len(sims) < 2 {
		return 0
	}
	var sum float64
	for _, s := range sims {
		sum += s
	}
	mean := sum / float64(len(sims))
	var acc float64
	for _, s := range sims {
		d := s - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(sims)))
}

// uniquenessRatio 去重标识符数量占命中总数的比例
func uniquenessRatio(result *entity.SearchResult) float64 {
	seen := make(map[string]struct{}, result.Len())
	for _, n := range result.Neighbors {
		seen[n.Identifier] = struct{}{}
	}
	return float64(len(seen)) / float64(result.Len())
}
