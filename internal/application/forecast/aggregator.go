package forecast

import (
	"math"
	"sort"
	"strconv"

	"analog-forecast-api/internal/config"
	"analog-forecast-api/internal/domain/entity"
	"analog-forecast-api/pkg/metrics"
)

// Aggregator 将近邻实况按相似度加权聚合为分位数预报
// 权重取高斯核 w = exp(-(d/sigma)^2)，d 为余弦距离
type Aggregator struct {
	cfg  *config.ForecastConfig
	unit entity.TemperatureUnit
}

// NewAggregator 构造集合聚合器
func NewAggregator(cfg *config.ForecastConfig) *Aggregator {
	return &Aggregator{cfg: cfg, unit: entity.TemperatureUnit(cfg.TemperatureUnit)}
}

// weightedSample 单条加权样本
type weightedSample struct {
	value  float64
	weight float64
	// rank 近邻序号，分位数并列时按 rank 决断保证确定性
	rank int
}

// Aggregate 对每个请求变量计算加权分位数
// 有效样本数低于该变量的下限时该变量标记为不可用，数值字段不输出
func (a *Aggregator) Aggregate(
	neighbors []entity.Neighbor,
	outcomes map[string]*entity.Outcome,
	variables []string,
	horizon int,
) map[string]*entity.VariableForecast {
	out := make(map[string]*entity.VariableForecast, len(variables))
	for _, variable := range variables {
		out[variable] = a.aggregateVariable(neighbors, outcomes, variable, horizon)
	}
	return out
}

func (a *Aggregator) aggregateVariable(
	neighbors []entity.Neighbor,
	outcomes map[string]*entity.Outcome,
	variable string,
	horizon int,
) *entity.VariableForecast {
	samples := make([]weightedSample, 0, len(neighbors))
	for rank, n := range neighbors {
		o, ok := outcomes[n.Identifier]
		if !ok {
			continue
		}
		value, ok := o.ValidValue(variable)
		if !ok {
			continue
		}
		samples = append(samples, weightedSample{
			value:  value,
			weight: a.kernel(n.Distance),
			rank:   rank,
		})
	}

	minAnalogs := a.cfg.MinAnalogsFor(variable)
	if len(samples) < minAnalogs {
		metrics.UnavailableVariables.WithLabelValues(strconv.Itoa(horizon), variable).Inc()
		return &entity.VariableForecast{Available: false, AnalogCount: len(samples)}
	}

	median := weightedQuantile(samples, 0.5)
	p05 := weightedQuantile(samples, 0.05)
	p95 := weightedQuantile(samples, 0.95)

	if entity.IsTemperature(variable) {
		median = entity.ConvertTemperature(median, a.unit)
		p05 = entity.ConvertTemperature(p05, a.unit)
		p95 = entity.ConvertTemperature(p95, a.unit)
	}

	return &entity.VariableForecast{
		Available:   true,
		Median:      median,
		P05:         p05,
		P95:         p95,
		Confidence:  a.confidence(samples),
		AnalogCount: len(samples),
		Unit:        entity.DisplayUnit(variable, a.unit),
	}
}

// kernel 高斯相似度核
func (a *Aggregator) kernel(distance float64) float64 {
	r := distance / a.cfg.KernelSigma
	return math.Exp(-r * r)
}

// weightedQuantile 加权经验分位数
// 按值升序累积权重，第一个累积占比达到 q 的样本即为分位点；
// 值相同的样本按 rank 升序排列，保证同一输入的输出逐字节一致
func weightedQuantile(samples []weightedSample, q float64) float64 {
	sorted := make([]weightedSample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].value != sorted[j].value {
			return sorted[i].value < sorted[j].value
		}
		return sorted[i].rank < sorted[j].rank
	})

	var total float64
	for _, s := range sorted {
		total += s.weight
	}
	if total <= 0 {
		// 权重全部下溢时退化为无权经验分位数
		idx := int(math.Ceil(q*float64(len(sorted)))) - 1
		if idx < 0 {
			idx = 0
		}
		return sorted[idx].value
	}

	target := q * total
	var cum float64
	for _, s := range sorted {
		cum += s.weight
		if cum >= target {
			return s.value
		}
	}
	return sorted[len(sorted)-1].value
}

// confidence 由样本量和权重集中度合成的置信度
// 集中度用归一化有效样本数 (sum w)^2 / sum w^2 度量
func (a *Aggregator) confidence(samples []weightedSample) float64 {
	var sum, sumSq float64
	for _, s := range samples {
		sum += s.weight
		sumSq += s.weight * s.weight
	}
	if sumSq == 0 {
		return 0
	}
	effective := sum * sum / sumSq
	coverage := float64(len(samples)) / float64(a.cfg.MaxK)
	if coverage > 1 {
		coverage = 1
	}
	c := (effective / float64(len(samples))) * (0.5 + 0.5*coverage)
	if c > 1 {
		c = 1
	}
	return c
}
