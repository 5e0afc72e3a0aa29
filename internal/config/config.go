// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Guardrail     GuardrailConfig     `yaml:"guardrail" mapstructure:"guardrail"`
	Index         IndexConfig         `yaml:"index" mapstructure:"index"`
	Outcome       OutcomeConfig       `yaml:"outcome" mapstructure:"outcome"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Quality       QualityConfig       `yaml:"quality" mapstructure:"quality"`
	Forecast      ForecastConfig      `yaml:"forecast" mapstructure:"forecast"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// GuardrailConfig 资源管控配置
type GuardrailConfig struct {
	// MemoryBudgetBytes 进程内索引加载的内存预算（字节）
	MemoryBudgetBytes int64 `yaml:"memory_budget_bytes" mapstructure:"memory_budget_bytes"`
	// FailFast 预算超限时立即拒绝；关闭后仅记录告警
	FailFast bool   `yaml:"fail_fast" mapstructure:"fail_fast"`
	Device   DeviceConfig   `yaml:"device" mapstructure:"device"`
	Profiler ProfilerConfig `yaml:"profiler" mapstructure:"profiler"`
	Pool     PoolConfig     `yaml:"pool" mapstructure:"pool"`
}

// DeviceConfig 执行路径选择配置
type DeviceConfig struct {
	// Preference 取值 accelerated / scalar / auto
	Preference string `yaml:"preference" mapstructure:"preference"`
	// ForceScalar 强制标量路径（调试用）
	ForceScalar bool `yaml:"force_scalar" mapstructure:"force_scalar"`
	// MinCapability 加速路径要求的最低 CPU 指令集标志，如 avx2
	MinCapability string `yaml:"min_capability" mapstructure:"min_capability"`
}

// ProfilerConfig 后台内存采样配置
type ProfilerConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Interval 采样间隔，合法区间 [500ms, 5s]
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	// CriticalBytes 持续越过该常驻内存阈值时触发告警事件
	CriticalBytes int64 `yaml:"critical_bytes" mapstructure:"critical_bytes"`
	// SustainedSamples 连续多少个样本越界算作持续越界
	SustainedSamples int `yaml:"sustained_samples" mapstructure:"sustained_samples"`
}

// PoolConfig 每个 horizon 的检索句柄池配置
type PoolConfig struct {
	HandlesPerHorizon int           `yaml:"handles_per_horizon" mapstructure:"handles_per_horizon"`
	AcquireTimeout    time.Duration `yaml:"acquire_timeout" mapstructure:"acquire_timeout"`
}

// IndexConfig 向量索引配置
type IndexConfig struct {
	// Backend 取值 file / milvus
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Dir 每 horizon 索引文件所在目录（file 后端）
	Dir string `yaml:"dir" mapstructure:"dir"`
	// Dim 期望的向量维度，加载时强校验
	Dim int `yaml:"dim" mapstructure:"dim"`
	// Horizons 已构建索引的预报时效（小时）
	Horizons []int `yaml:"horizons" mapstructure:"horizons"`
	// LazyLoad 按需加载索引；关闭则启动时全量预载
	LazyLoad bool `yaml:"lazy_load" mapstructure:"lazy_load"`
	// CacheCapacity 懒加载缓存容量（索引个数）
	CacheCapacity int `yaml:"cache_capacity" mapstructure:"cache_capacity"`
	// LoadTimeout 单个索引懒加载超时
	LoadTimeout time.Duration `yaml:"load_timeout" mapstructure:"load_timeout"`
	// QuantizedThreshold 条目数超过该值的索引使用量化近似检索
	QuantizedThreshold int `yaml:"quantized_threshold" mapstructure:"quantized_threshold"`
	// MinRecall 量化索引相对精确索引的最低 top-k 召回率（测试属性）
	MinRecall float64      `yaml:"min_recall" mapstructure:"min_recall"`
	Milvus    MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Host             string `yaml:"host" mapstructure:"host"`
	Port             int    `yaml:"port" mapstructure:"port"`
	User             string `yaml:"user" mapstructure:"user"`
	Password         string `yaml:"password" mapstructure:"password"`
	CollectionPrefix string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
}

// OutcomeConfig 历史实况存储配置
type OutcomeConfig struct {
	// Backend 取值 postgres / sqlite
	Backend  string         `yaml:"backend" mapstructure:"backend"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	// FetchTimeout 单次实况批量查询超时
	FetchTimeout time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis  RedisConfig       `yaml:"redis" mapstructure:"redis"`
	Result ResultCacheConfig `yaml:"result" mapstructure:"result"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// ResultCacheConfig 预报结果缓存配置
type ResultCacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// QualityConfig 检索质量阈值配置
type QualityConfig struct {
	// MinUniquenessRatio 去重标识符占比下限
	MinUniquenessRatio float64 `yaml:"min_uniqueness_ratio" mapstructure:"min_uniqueness_ratio"`
	// MinSimilarityStddev 相似度标准差下限，低于视为表征塌缩
	MinSimilarityStddev float64 `yaml:"min_similarity_stddev" mapstructure:"min_similarity_stddev"`
}

// ForecastConfig 集合聚合配置
type ForecastConfig struct {
	// DefaultK 缺省近邻数
	DefaultK int `yaml:"default_k" mapstructure:"default_k"`
	// MaxK 近邻数上限
	MaxK int `yaml:"max_k" mapstructure:"max_k"`
	// MinAnalogs 每变量有效类比样本数下限
	MinAnalogs int `yaml:"min_analogs" mapstructure:"min_analogs"`
	// MinAnalogsPerVariable 针对单个变量的覆盖值
	MinAnalogsPerVariable map[string]int `yaml:"min_analogs_per_variable" mapstructure:"min_analogs_per_variable"`
	// KernelSigma 相似度核函数带宽
	KernelSigma float64 `yaml:"kernel_sigma" mapstructure:"kernel_sigma"`
	// FallbackAllowed 允许以明确标记的降级结果代替服务错误
	FallbackAllowed bool `yaml:"fallback_allowed" mapstructure:"fallback_allowed"`
	// TemperatureUnit 展示单位：kelvin / celsius / fahrenheit
	TemperatureUnit string `yaml:"temperature_unit" mapstructure:"temperature_unit"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// MinAnalogsFor 返回变量的有效类比样本数下限
func (c *ForecastConfig) MinAnalogsFor(variable string) int {
	if v, ok := c.MinAnalogsPerVariable[variable]; ok && v > 0 {
		return v
	}
	return c.MinAnalogs
}

// Validate 校验配置取值范围，启动时调用一次
func (c *Config) Validate() error {
	if c.Guardrail.MemoryBudgetBytes <= 0 {
		return fmt.Errorf("guardrail.memory_budget_bytes must be positive, got %d", c.Guardrail.MemoryBudgetBytes)
	}
	switch c.Guardrail.Device.Preference {
	case "accelerated", "scalar", "auto":
	default:
		return fmt.Errorf("guardrail.device.preference must be accelerated/scalar/auto, got %q", c.Guardrail.Device.Preference)
	}
	if iv := c.Guardrail.Profiler.Interval; c.Guardrail.Profiler.Enabled &&
		(iv < 500*time.Millisecond || iv > 5*time.Second) {
		return fmt.Errorf("guardrail.profiler.interval must be within [500ms, 5s], got %s", iv)
	}
	if c.Guardrail.Pool.HandlesPerHorizon <= 0 {
		return fmt.Errorf("guardrail.pool.handles_per_horizon must be positive")
	}
	if c.Index.Dim <= 0 {
		return fmt.Errorf("index.dim must be positive, got %d", c.Index.Dim)
	}
	if len(c.Index.Horizons) == 0 {
		return fmt.Errorf("index.horizons must not be empty")
	}
	switch c.Index.Backend {
	case "file", "milvus":
	default:
		return fmt.Errorf("index.backend must be file/milvus, got %q", c.Index.Backend)
	}
	if c.Index.LazyLoad && c.Index.CacheCapacity <= 0 {
		return fmt.Errorf("index.cache_capacity must be positive when lazy_load is on")
	}
	if r := c.Index.MinRecall; r < 0 || r > 1 {
		return fmt.Errorf("index.min_recall must be within [0,1], got %f", r)
	}
	if r := c.Quality.MinUniquenessRatio; r <= 0 || r > 1 {
		return fmt.Errorf("quality.min_uniqueness_ratio must be within (0,1], got %f", r)
	}
	if c.Quality.MinSimilarityStddev < 0 {
		return fmt.Errorf("quality.min_similarity_stddev must not be negative")
	}
	if c.Forecast.MaxK <= 0 || c.Forecast.DefaultK <= 0 || c.Forecast.DefaultK > c.Forecast.MaxK {
		return fmt.Errorf("forecast.default_k/max_k misconfigured: default=%d max=%d", c.Forecast.DefaultK, c.Forecast.MaxK)
	}
	if c.Forecast.KernelSigma <= 0 {
		return fmt.Errorf("forecast.kernel_sigma must be positive")
	}
	switch c.Forecast.TemperatureUnit {
	case "kelvin", "celsius", "fahrenheit":
	default:
		return fmt.Errorf("forecast.temperature_unit must be kelvin/celsius/fahrenheit, got %q", c.Forecast.TemperatureUnit)
	}
	return nil
}
