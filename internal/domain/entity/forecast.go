package entity

import "time"

// VariableForecast 单变量的概率预报
// Available 为 false 时数值字段无意义，展示层必须显示“不可用”而非零值
type VariableForecast struct {
	Available   bool    `json:"available"`
	Median      float64 `json:"median,omitempty"`
	P05         float64 `json:"p05,omitempty"`
	P95         float64 `json:"p95,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	AnalogCount int     `json:"analog_count"`
	Unit        string  `json:"unit,omitempty"`
}

// SearchPath 结果来源路径
type SearchPath string

const (
	SearchPathPrimary  SearchPath = "primary"
	SearchPathFallback SearchPath = "fallback"
)

// ForecastResult 一次预报请求的完整结果
// 每请求构建一次；透明度字段供调用方决定是否信任该结果
type ForecastResult struct {
	Horizon    int                          `json:"horizon"`
	Variables  map[string]*VariableForecast `json:"variables"`
	Confidence float64                      `json:"confidence"`
	Verdict    QualityVerdict               `json:"verdict"`
	SearchPath SearchPath                   `json:"search_path"`
	IsFallback bool                         `json:"is_fallback"`
	IndexType  IndexType                    `json:"index_type,omitempty"`
	Device     string                       `json:"device,omitempty"`
	// AnalogCount 聚合实际用到的去重近邻数
	AnalogCount int           `json:"analog_count"`
	Latency     time.Duration `json:"-"`
	LatencyMs   int64         `json:"latency_ms"`
	// DroppedIdentifiers 在实况表中无法解析而被丢弃的标识符数
	DroppedIdentifiers int `json:"dropped_identifiers,omitempty"`
}
