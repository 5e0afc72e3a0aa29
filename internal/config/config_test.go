package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Guardrail: GuardrailConfig{
			MemoryBudgetBytes: 1 << 30,
			Device:            DeviceConfig{Preference: "auto", MinCapability: "avx2"},
			Profiler:          ProfilerConfig{Enabled: true, Interval: time.Second},
			Pool:              PoolConfig{HandlesPerHorizon: 8, AcquireTimeout: time.Second},
		},
		Index: IndexConfig{
			Backend:       "file",
			Dim:           256,
			Horizons:      []int{6, 12, 24},
			LazyLoad:      true,
			CacheCapacity: 4,
			MinRecall:     0.9,
		},
		Quality: QualityConfig{
			MinUniquenessRatio:  0.95,
			MinSimilarityStddev: 0.001,
		},
		Forecast: ForecastConfig{
			DefaultK:        50,
			MaxK:            200,
			MinAnalogs:      20,
			KernelSigma:     0.2,
			TemperatureUnit: "celsius",
		},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_budget", func(c *Config) { c.Guardrail.MemoryBudgetBytes = 0 }},
		{"bad_preference", func(c *Config) { c.Guardrail.Device.Preference = "gpu" }},
		{"profiler_too_fast", func(c *Config) { c.Guardrail.Profiler.Interval = 100 * time.Millisecond }},
		{"profiler_too_slow", func(c *Config) { c.Guardrail.Profiler.Interval = 10 * time.Second }},
		{"zero_handles", func(c *Config) { c.Guardrail.Pool.HandlesPerHorizon = 0 }},
		{"zero_dim", func(c *Config) { c.Index.Dim = 0 }},
		{"no_horizons", func(c *Config) { c.Index.Horizons = nil }},
		{"bad_backend", func(c *Config) { c.Index.Backend = "faiss" }},
		{"lazy_without_capacity", func(c *Config) { c.Index.CacheCapacity = 0 }},
		{"recall_above_one", func(c *Config) { c.Index.MinRecall = 1.5 }},
		{"zero_uniqueness", func(c *Config) { c.Quality.MinUniquenessRatio = 0 }},
		{"negative_stddev", func(c *Config) { c.Quality.MinSimilarityStddev = -1 }},
		{"default_k_above_max", func(c *Config) { c.Forecast.DefaultK = 500 }},
		{"zero_sigma", func(c *Config) { c.Forecast.KernelSigma = 0 }},
		{"bad_unit", func(c *Config) { c.Forecast.TemperatureUnit = "rankine" }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestValidateProfilerDisabledSkipsInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Guardrail.Profiler.Enabled = false
	cfg.Guardrail.Profiler.Interval = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled profiler interval should not be validated: %v", err)
	}
}

func TestMinAnalogsFor(t *testing.T) {
	cfg := &ForecastConfig{
		MinAnalogs:            20,
		MinAnalogsPerVariable: map[string]int{"precip": 30},
	}
	if got := cfg.MinAnalogsFor("precip"); got != 30 {
		t.Errorf("precip minimum = %d, want per-variable 30", got)
	}
	if got := cfg.MinAnalogsFor("t2m"); got != 20 {
		t.Errorf("t2m minimum = %d, want global 20", got)
	}
}
