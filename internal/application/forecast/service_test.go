package forecast

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"analog-forecast-api/internal/config"
	"analog-forecast-api/internal/domain/entity"
	"analog-forecast-api/internal/domain/repository"
	"analog-forecast-api/internal/infrastructure/vectorindex"
	"analog-forecast-api/pkg/errors"
)

// fakeSearchIndex 返回固定近邻的索引
type fakeSearchIndex struct {
	neighbors []entity.Neighbor
}

func (f *fakeSearchIndex) Search(ctx context.Context, query []float32, k int) ([]entity.Neighbor, error) {
	if k > len(f.neighbors) {
		k = len(f.neighbors)
	}
	return append([]entity.Neighbor(nil), f.neighbors[:k]...), nil
}
func (f *fakeSearchIndex) Size() int              { return len(f.neighbors) }
func (f *fakeSearchIndex) Dim() int               { return 8 }
func (f *fakeSearchIndex) Type() entity.IndexType { return entity.IndexTypeFlat }
func (f *fakeSearchIndex) SizeBytes() int64       { return 0 }
func (f *fakeSearchIndex) Close() error           { return nil }

// fakeProvider 固定索引提供者
type fakeProvider struct {
	index repository.VectorIndex
}

func (p *fakeProvider) Index(ctx context.Context, horizon int) (repository.VectorIndex, error) {
	return p.index, nil
}

// fakeOutcomeRepo 内存实况存储
type fakeOutcomeRepo struct {
	outcomes map[string]*entity.Outcome
}

func (r *fakeOutcomeRepo) GetByIdentifiers(ctx context.Context, horizon int, ids []string) (map[string]*entity.Outcome, error) {
	out := make(map[string]*entity.Outcome, len(ids))
	for _, id := range ids {
		if o, ok := r.outcomes[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}
func (r *fakeOutcomeRepo) HealthCheck(ctx context.Context) error { return nil }
func (r *fakeOutcomeRepo) Close() error                          { return nil }

func testConfig(fallback bool) *config.Config {
	return &config.Config{
		Index: config.IndexConfig{
			Dim:      8,
			Horizons: []int{24, 48},
		},
		Outcome: config.OutcomeConfig{FetchTimeout: time.Second},
		Quality: config.QualityConfig{
			MinUniquenessRatio:  0.95,
			MinSimilarityStddev: 0.001,
		},
		Forecast: config.ForecastConfig{
			DefaultK:        10,
			MaxK:            50,
			MinAnalogs:      2,
			KernelSigma:     0.2,
			FallbackAllowed: fallback,
			TemperatureUnit: "kelvin",
		},
	}
}

func healthyNeighbors(n int) ([]entity.Neighbor, map[string]*entity.Outcome) {
	neighbors := make([]entity.Neighbor, n)
	outcomes := make(map[string]*entity.Outcome, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("pattern_%03d", i)
		neighbors[i] = entity.Neighbor{Identifier: id, Distance: 0.05 + float64(i)*0.02}
		outcomes[id] = &entity.Outcome{
			Identifier: id,
			Horizon:    24,
			Values:     map[string]float64{"t2m": 285 + float64(i)},
			Valid:      map[string]bool{"t2m": true},
		}
	}
	return neighbors, outcomes
}

func collapsedNeighbors(n int) ([]entity.Neighbor, map[string]*entity.Outcome) {
	neighbors, outcomes := healthyNeighbors(n)
	for i := range neighbors {
		neighbors[i].Distance = 0.5
	}
	return neighbors, outcomes
}

func newTestService(cfg *config.Config, neighbors []entity.Neighbor, outcomes map[string]*entity.Outcome) *Service {
	device := &Device{Path: DeviceScalar, Distance: vectorindex.ScalarDistance}
	provider := &fakeProvider{index: &fakeSearchIndex{neighbors: neighbors}}
	pool := NewHandlePool(4, time.Second)
	engine := NewEngine(provider, pool, device, cfg.Index.Dim, cfg.Forecast.MaxK)
	return NewService(cfg,
		engine,
		NewValidator(&cfg.Quality),
		NewAggregator(&cfg.Forecast),
		&fakeOutcomeRepo{outcomes: outcomes},
		nil,
	)
}

func unitQuery() []float32 {
	q := make([]float32, 8)
	q[0] = 1
	return q
}

func TestServiceForecast(t *testing.T) {
	neighbors, outcomes := healthyNeighbors(10)
	svc := newTestService(testConfig(false), neighbors, outcomes)

	result, err := svc.Forecast(context.Background(), Query{
		Horizon:   24,
		Embedding: unitQuery(),
		Variables: []string{"t2m"},
	})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if result.SearchPath != entity.SearchPathPrimary || result.IsFallback {
		t.Errorf("search path = %s fallback=%v, want primary", result.SearchPath, result.IsFallback)
	}
	if !result.Verdict.Healthy() {
		t.Errorf("verdict = %+v, want healthy", result.Verdict)
	}
	vf := result.Variables["t2m"]
	if vf == nil || !vf.Available {
		t.Fatalf("t2m = %+v, want available", vf)
	}
	if result.AnalogCount != 10 {
		t.Errorf("analog count = %d, want 10", result.AnalogCount)
	}
	if result.Device != DeviceScalar {
		t.Errorf("device = %s, want scalar", result.Device)
	}
}

func TestServiceUnknownHorizon(t *testing.T) {
	neighbors, outcomes := healthyNeighbors(10)
	svc := newTestService(testConfig(false), neighbors, outcomes)

	_, err := svc.Forecast(context.Background(), Query{Horizon: 72, Embedding: unitQuery()})
	if !errors.IsCode(err, errors.CodeHorizonUnknown) {
		t.Errorf("error = %v, want CodeHorizonUnknown", err)
	}
}

func TestServiceUnknownVariable(t *testing.T) {
	neighbors, outcomes := healthyNeighbors(10)
	svc := newTestService(testConfig(false), neighbors, outcomes)

	_, err := svc.Forecast(context.Background(), Query{
		Horizon:   24,
		Embedding: unitQuery(),
		Variables: []string{"vorticity"},
	})
	if !errors.IsCode(err, errors.CodeVariableUnknown) {
		t.Errorf("error = %v, want CodeVariableUnknown", err)
	}
}

func TestServiceMalformedEmbedding(t *testing.T) {
	neighbors, outcomes := healthyNeighbors(10)
	svc := newTestService(testConfig(false), neighbors, outcomes)

	// 未归一化的向量
	bad := make([]float32, 8)
	bad[0] = 3
	_, err := svc.Forecast(context.Background(), Query{Horizon: 24, Embedding: bad, Variables: []string{"t2m"}})
	if !errors.IsCode(err, errors.CodeQueryMalformed) {
		t.Errorf("error = %v, want CodeQueryMalformed", err)
	}
}

func TestServiceDegenerateWithoutFallback(t *testing.T) {
	neighbors, outcomes := collapsedNeighbors(10)
	svc := newTestService(testConfig(false), neighbors, outcomes)

	_, err := svc.Forecast(context.Background(), Query{
		Horizon:   24,
		Embedding: unitQuery(),
		Variables: []string{"t2m"},
	})
	if !errors.IsCode(err, errors.CodeDegenerateResult) {
		t.Errorf("error = %v, want CodeDegenerateResult", err)
	}
}

func TestServiceDegenerateWithFallback(t *testing.T) {
	neighbors, outcomes := collapsedNeighbors(10)
	svc := newTestService(testConfig(true), neighbors, outcomes)

	result, err := svc.Forecast(context.Background(), Query{
		Horizon:   24,
		Embedding: unitQuery(),
		Variables: []string{"t2m"},
	})
	if err != nil {
		t.Fatalf("Forecast with fallback: %v", err)
	}
	if !result.IsFallback || result.SearchPath != entity.SearchPathFallback {
		t.Errorf("result = path=%s fallback=%v, want labeled fallback", result.SearchPath, result.IsFallback)
	}
	if result.Verdict.Class != entity.VerdictDegenerate {
		t.Errorf("verdict class = %s, want degenerate retained in response", result.Verdict.Class)
	}
}

func TestServiceDroppedIdentifiers(t *testing.T) {
	neighbors, outcomes := healthyNeighbors(10)
	delete(outcomes, "pattern_003")
	delete(outcomes, "pattern_007")
	svc := newTestService(testConfig(false), neighbors, outcomes)

	result, err := svc.Forecast(context.Background(), Query{
		Horizon:   24,
		Embedding: unitQuery(),
		Variables: []string{"t2m"},
	})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if result.DroppedIdentifiers != 2 {
		t.Errorf("dropped = %d, want 2", result.DroppedIdentifiers)
	}
	if result.AnalogCount != 8 {
		t.Errorf("analog count = %d, want 8", result.AnalogCount)
	}
}

func TestServiceInsufficientAnalogsNonFatal(t *testing.T) {
	neighbors, _ := healthyNeighbors(10)
	// 所有实况缺席：变量标记为不可用，请求本身仍须成功
	svc := newTestService(testConfig(false), neighbors, map[string]*entity.Outcome{})

	result, err := svc.Forecast(context.Background(), Query{
		Horizon:   24,
		Embedding: unitQuery(),
		Variables: []string{"t2m"},
	})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	vf := result.Variables["t2m"]
	if vf == nil {
		t.Fatal("t2m missing from result")
	}
	if vf.Available {
		t.Errorf("t2m available = true, want unavailable")
	}
	if result.Confidence != 0 {
		t.Errorf("confidence = %f, want 0", result.Confidence)
	}
}

func TestServiceUnavailableVariableLowersConfidence(t *testing.T) {
	neighbors, outcomes := healthyNeighbors(10)
	// precip 只有一条有效实况，低于下限 2
	outcomes["pattern_000"].Values["precip"] = 1.2
	outcomes["pattern_000"].Valid["precip"] = true
	svc := newTestService(testConfig(false), neighbors, outcomes)

	solo, err := svc.Forecast(context.Background(), Query{
		Horizon:   24,
		Embedding: unitQuery(),
		Variables: []string{"t2m"},
	})
	if err != nil {
		t.Fatalf("Forecast t2m only: %v", err)
	}

	both, err := svc.Forecast(context.Background(), Query{
		Horizon:   24,
		Embedding: unitQuery(),
		Variables: []string{"t2m", "precip"},
	})
	if err != nil {
		t.Fatalf("Forecast t2m+precip: %v", err)
	}

	pf := both.Variables["precip"]
	if pf == nil || pf.Available {
		t.Fatalf("precip = %+v, want present and unavailable", pf)
	}
	tf := both.Variables["t2m"]
	if tf == nil || !tf.Available {
		t.Fatalf("t2m = %+v, want available", tf)
	}
	if tf.Confidence != solo.Variables["t2m"].Confidence {
		t.Errorf("t2m confidence = %f, want unaffected %f", tf.Confidence, solo.Variables["t2m"].Confidence)
	}
	want := solo.Confidence / 2
	if math.Abs(both.Confidence-want) > 1e-12 {
		t.Errorf("overall confidence = %f, want %f (one of two variables unavailable)", both.Confidence, want)
	}
}
