// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, "configs/config.yaml", false); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := fmt.Sprintf("configs/config.%s.yaml", env)
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值 (兜底)
	setDefaults(v)

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnv(string(content))

	reader := strings.NewReader(expanded)
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		// 手动标记已加载文件，防止后续 ReadInConfig 报错
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
func expandEnv(s string) string {
	re := regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		submatch := re.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		val, ok := os.LookupEnv(key)
		if ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		// 保留原样以便识别未定义的变量
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "analog-forecast-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	// HTTP 服务器默认值
	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "15s")
	v.SetDefault("server.http.write_timeout", "30s")
	v.SetDefault("server.http.idle_timeout", "120s")

	// 资源管控默认值
	v.SetDefault("guardrail.memory_budget_bytes", 2<<30)
	v.SetDefault("guardrail.fail_fast", true)
	v.SetDefault("guardrail.device.preference", "auto")
	v.SetDefault("guardrail.device.force_scalar", false)
	v.SetDefault("guardrail.device.min_capability", "avx2")
	v.SetDefault("guardrail.profiler.enabled", true)
	v.SetDefault("guardrail.profiler.interval", "2s")
	v.SetDefault("guardrail.profiler.critical_bytes", 3<<30)
	v.SetDefault("guardrail.profiler.sustained_samples", 3)
	v.SetDefault("guardrail.pool.handles_per_horizon", 8)
	v.SetDefault("guardrail.pool.acquire_timeout", "2s")

	// 索引默认值
	v.SetDefault("index.backend", "file")
	v.SetDefault("index.dir", "data/indices")
	v.SetDefault("index.dim", 256)
	v.SetDefault("index.horizons", []int{6, 12, 24, 48})
	v.SetDefault("index.lazy_load", true)
	v.SetDefault("index.cache_capacity", 4)
	v.SetDefault("index.load_timeout", "30s")
	v.SetDefault("index.quantized_threshold", 200000)
	v.SetDefault("index.min_recall", 0.9)
	v.SetDefault("index.milvus.host", "localhost")
	v.SetDefault("index.milvus.port", 19530)
	v.SetDefault("index.milvus.collection_prefix", "analog")

	// 实况存储默认值
	v.SetDefault("outcome.backend", "postgres")
	v.SetDefault("outcome.fetch_timeout", "3s")
	v.SetDefault("outcome.postgres.host", "localhost")
	v.SetDefault("outcome.postgres.port", 5432)
	v.SetDefault("outcome.postgres.user", "postgres")
	v.SetDefault("outcome.postgres.database", "analog_forecast")
	v.SetDefault("outcome.postgres.ssl_mode", "disable")
	v.SetDefault("outcome.postgres.max_open_conns", 50)
	v.SetDefault("outcome.postgres.max_idle_conns", 10)
	v.SetDefault("outcome.postgres.conn_max_lifetime", "30m")

	// Redis 默认值
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 100)
	v.SetDefault("cache.redis.min_idle_conns", 10)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.result.enabled", false)
	v.SetDefault("cache.result.ttl", "5m")

	// 质量阈值默认值
	v.SetDefault("quality.min_uniqueness_ratio", 0.95)
	v.SetDefault("quality.min_similarity_stddev", 1e-3)

	// 聚合默认值
	v.SetDefault("forecast.default_k", 50)
	v.SetDefault("forecast.max_k", 200)
	v.SetDefault("forecast.min_analogs", 20)
	v.SetDefault("forecast.kernel_sigma", 0.2)
	v.SetDefault("forecast.fallback_allowed", false)
	v.SetDefault("forecast.temperature_unit", "celsius")

	// 安全默认值
	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.requests_per_second", 100)
	v.SetDefault("security.rate_limit.burst", 200)

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")
}
