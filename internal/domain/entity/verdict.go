package entity

// VerdictClass 检索结果质量分级
type VerdictClass string

const (
	VerdictHealthy    VerdictClass = "healthy"
	VerdictDegraded   VerdictClass = "degraded"
	VerdictDegenerate VerdictClass = "degenerate"
)

// 降级/失效原因
const (
	ReasonNonMonotonic  = "non_monotonic"
	ReasonOutOfRange    = "out_of_range"
	ReasonLowUniqueness = "low_uniqueness"
	ReasonLowVariance   = "low_variance"
	ReasonEmptyResult   = "empty_result"
)

// QualityVerdict 对单次检索结果的质量判定
// 每次检索重新计算，不跨查询缓存
type QualityVerdict struct {
	Class            VerdictClass `json:"class"`
	Reason           string       `json:"reason,omitempty"`
	UniquenessRatio  float64      `json:"uniqueness_ratio"`
	SimilarityStddev float64      `json:"similarity_stddev"`
}

// Healthy 判定是否健康
func (v QualityVerdict) Healthy() bool {
	return v.Class == VerdictHealthy
}

// Degenerate 判定是否失效
func (v QualityVerdict) Degenerate() bool {
	return v.Class == VerdictDegenerate
}
