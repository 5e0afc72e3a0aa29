// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"analog-forecast-api/internal/domain/entity"
)

// ForecastRequest 预报请求
// Embedding 必须是构建索引时同一模型产出的单位化向量
type ForecastRequest struct {
	Horizon   int       `json:"horizon" binding:"required"`
	Embedding []float32 `json:"embedding" binding:"required"`
	TopK      int       `json:"top_k,omitempty"`
	Variables []string  `json:"variables,omitempty"`
}

// VariableForecast 单变量预报
type VariableForecast struct {
	Available   bool     `json:"available"`
	Median      *float64 `json:"median,omitempty"`
	P05         *float64 `json:"p05,omitempty"`
	P95         *float64 `json:"p95,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	AnalogCount int      `json:"analog_count"`
	Unit        string   `json:"unit,omitempty"`
}

// QualityVerdict 检索质量判定
type QualityVerdict struct {
	Class            string  `json:"class"`
	Reason           string  `json:"reason,omitempty"`
	UniquenessRatio  float64 `json:"uniqueness_ratio"`
	SimilarityStddev float64 `json:"similarity_stddev"`
}

// ForecastResponse 预报响应
type ForecastResponse struct {
	Horizon            int                          `json:"horizon"`
	Variables          map[string]*VariableForecast `json:"variables"`
	Confidence         float64                      `json:"confidence"`
	Verdict            QualityVerdict               `json:"verdict"`
	SearchPath         string                       `json:"search_path"`
	IsFallback         bool                         `json:"is_fallback"`
	IndexType          string                       `json:"index_type,omitempty"`
	Device             string                       `json:"device,omitempty"`
	AnalogCount        int                          `json:"analog_count"`
	LatencyMs          int64                        `json:"latency_ms"`
	DroppedIdentifiers int                          `json:"dropped_identifiers,omitempty"`
}

// HorizonsResponse 已配置时效列表与索引描述
type HorizonsResponse struct {
	Horizons []int  `json:"horizons"`
	Dim      int    `json:"dim"`
	Backend  string `json:"backend"`
}

// NewForecastResponse 从领域结果构建响应
// 不可用变量不输出数值字段，调用方据 available 展示“不可用”
func NewForecastResponse(result *entity.ForecastResult) *ForecastResponse {
	variables := make(map[string]*VariableForecast, len(result.Variables))
	for name, vf := range result.Variables {
		out := &VariableForecast{
			Available:   vf.Available,
			AnalogCount: vf.AnalogCount,
			Unit:        vf.Unit,
		}
		if vf.Available {
			median, p05, p95, conf := vf.Median, vf.P05, vf.P95, vf.Confidence
			out.Median = &median
			out.P05 = &p05
			out.P95 = &p95
			out.Confidence = &conf
		}
		variables[name] = out
	}

	return &ForecastResponse{
		Horizon:    result.Horizon,
		Variables:  variables,
		Confidence: result.Confidence,
		Verdict: QualityVerdict{
			Class:            string(result.Verdict.Class),
			Reason:           result.Verdict.Reason,
			UniquenessRatio:  result.Verdict.UniquenessRatio,
			SimilarityStddev: result.Verdict.SimilarityStddev,
		},
		SearchPath:         string(result.SearchPath),
		IsFallback:         result.IsFallback,
		IndexType:          string(result.IndexType),
		Device:             result.Device,
		AnalogCount:        result.AnalogCount,
		LatencyMs:          result.LatencyMs,
		DroppedIdentifiers: result.DroppedIdentifiers,
	}
}
