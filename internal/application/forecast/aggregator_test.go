package forecast

import (
	"fmt"
	"math"
	"testing"

	"analog-forecast-api/internal/config"
	"analog-forecast-api/internal/domain/entity"
)

func newTestAggregator(unit string) *Aggregator {
	return NewAggregator(&config.ForecastConfig{
		DefaultK:        50,
		MaxK:            200,
		MinAnalogs:      3,
		KernelSigma:     0.2,
		TemperatureUnit: unit,
		MinAnalogsPerVariable: map[string]int{
			"precip": 5,
		},
	})
}

func analogSet(n int, variable string, start, step float64) ([]entity.Neighbor, map[string]*entity.Outcome) {
	neighbors := make([]entity.Neighbor, n)
	outcomes := make(map[string]*entity.Outcome, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("analog_%03d", i)
		neighbors[i] = entity.Neighbor{Identifier: id, Distance: 0.05 + float64(i)*0.01}
		outcomes[id] = &entity.Outcome{
			Identifier: id,
			Horizon:    24,
			Values:     map[string]float64{variable: start + float64(i)*step},
			Valid:      map[string]bool{variable: true},
		}
	}
	return neighbors, outcomes
}

func TestAggregateQuantileOrdering(t *testing.T) {
	agg := newTestAggregator("kelvin")
	neighbors, outcomes := analogSet(30, "t2m", 280, 0.5)

	result := agg.Aggregate(neighbors, outcomes, []string{"t2m"}, 24)
	vf := result["t2m"]
	if vf == nil || !vf.Available {
		t.Fatalf("t2m = %+v, want available", vf)
	}
	if !(vf.P05 <= vf.Median && vf.Median <= vf.P95) {
		t.Errorf("quantiles out of order: p05=%f median=%f p95=%f", vf.P05, vf.Median, vf.P95)
	}
	if vf.Median < 280 || vf.Median > 280+29*0.5 {
		t.Errorf("median %f outside sample range", vf.Median)
	}
	if vf.AnalogCount != 30 {
		t.Errorf("analog count = %d, want 30", vf.AnalogCount)
	}
	if vf.Confidence <= 0 || vf.Confidence > 1 {
		t.Errorf("confidence %f outside (0, 1]", vf.Confidence)
	}
}

func TestAggregateInsufficientAnalogs(t *testing.T) {
	agg := newTestAggregator("kelvin")
	neighbors, outcomes := analogSet(2, "t2m", 285, 1)

	result := agg.Aggregate(neighbors, outcomes, []string{"t2m"}, 24)
	vf := result["t2m"]
	if vf == nil || vf.Available {
		t.Fatalf("t2m = %+v, want unavailable below min analogs", vf)
	}
	if vf.AnalogCount != 2 {
		t.Errorf("analog count = %d, want 2", vf.AnalogCount)
	}
}

func TestAggregatePerVariableMinimum(t *testing.T) {
	agg := newTestAggregator("kelvin")
	// 4 条样本满足全局下限 3，但低于 precip 的专属下限 5
	neighbors, outcomes := analogSet(4, "precip", 0, 2)

	result := agg.Aggregate(neighbors, outcomes, []string{"precip"}, 24)
	if result["precip"].Available {
		t.Error("precip should be unavailable below its per-variable minimum")
	}
}

func TestAggregateInvalidValuesExcluded(t *testing.T) {
	agg := newTestAggregator("kelvin")
	neighbors, outcomes := analogSet(10, "t2m", 280, 1)
	// 8 条标记无效，只剩 2 条有效样本，低于下限
	for i := 0; i < 8; i++ {
		outcomes[fmt.Sprintf("analog_%03d", i)].Valid["t2m"] = false
	}

	result := agg.Aggregate(neighbors, outcomes, []string{"t2m"}, 24)
	vf := result["t2m"]
	if vf.Available {
		t.Error("t2m should be unavailable with only 2 valid samples")
	}
	if vf.AnalogCount != 2 {
		t.Errorf("analog count = %d, want 2", vf.AnalogCount)
	}
}

func TestAggregateMissingOutcomesExcluded(t *testing.T) {
	agg := newTestAggregator("kelvin")
	neighbors, outcomes := analogSet(10, "t2m", 280, 1)
	delete(outcomes, "analog_000")
	delete(outcomes, "analog_001")

	result := agg.Aggregate(neighbors, outcomes, []string{"t2m"}, 24)
	if got := result["t2m"].AnalogCount; got != 8 {
		t.Errorf("analog count = %d, want 8 after dropping unresolved", got)
	}
}

func TestAggregateTemperatureConversion(t *testing.T) {
	agg := newTestAggregator("celsius")
	neighbors, outcomes := analogSet(10, "t2m", 300, 0)

	result := agg.Aggregate(neighbors, outcomes, []string{"t2m"}, 24)
	vf := result["t2m"]
	if !vf.Available {
		t.Fatal("t2m should be available")
	}
	if math.Abs(vf.Median-26.85) > 1e-9 {
		t.Errorf("median = %f, want 26.85 celsius", vf.Median)
	}
	if vf.Unit != "celsius" {
		t.Errorf("unit = %s, want celsius", vf.Unit)
	}
}

func TestAggregateNonTemperatureUnit(t *testing.T) {
	agg := newTestAggregator("celsius")
	neighbors, outcomes := analogSet(10, "wind10m", 5, 0.5)

	result := agg.Aggregate(neighbors, outcomes, []string{"wind10m"}, 24)
	vf := result["wind10m"]
	if vf.Unit != "m/s" {
		t.Errorf("unit = %s, want m/s", vf.Unit)
	}
	// 非温度变量不做单位换算
	if vf.Median < 5 || vf.Median > 9.5 {
		t.Errorf("median %f outside raw sample range", vf.Median)
	}
}

func TestAggregateDeterministic(t *testing.T) {
	agg := newTestAggregator("kelvin")
	neighbors, outcomes := analogSet(25, "t2m", 280, 0)
	// 全部同值时分位数必须按 rank 决断并保持稳定
	first := agg.Aggregate(neighbors, outcomes, []string{"t2m"}, 24)
	for i := 0; i < 5; i++ {
		again := agg.Aggregate(neighbors, outcomes, []string{"t2m"}, 24)
		if *again["t2m"] != *first["t2m"] {
			t.Fatalf("run %d = %+v, want %+v", i, again["t2m"], first["t2m"])
		}
	}
	if first["t2m"].Median != 280 {
		t.Errorf("median = %f, want 280", first["t2m"].Median)
	}
}

func TestWeightedQuantileSkew(t *testing.T) {
	// 一条权重占优的样本应主导中位数
	samples := []weightedSample{
		{value: 10, weight: 0.01, rank: 0},
		{value: 20, weight: 1.0, rank: 1},
		{value: 30, weight: 0.01, rank: 2},
	}
	if got := weightedQuantile(samples, 0.5); got != 20 {
		t.Errorf("weighted median = %f, want 20", got)
	}
}
