package forecast

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"analog-forecast-api/internal/config"
	"analog-forecast-api/pkg/logger"
	"analog-forecast-api/pkg/metrics"
)

// MemoryAlert 持续越过临界阈值时发布的告警事件
type MemoryAlert struct {
	ResidentBytes int64
	CriticalBytes int64
	At            time.Time
}

// MemoryProfiler 后台常驻内存采样器
// 只更新共享计数与发布告警事件，绝不阻塞请求路径，也不终止在途请求
// （快速失败仅发生在预算 Acquire 处）
type MemoryProfiler struct {
	cfg      *config.ProfilerConfig
	resident atomic.Int64
	alerts   chan MemoryAlert
}

// NewMemoryProfiler 创建内存采样器
func NewMemoryProfiler(cfg *config.ProfilerConfig) *MemoryProfiler {
	return &MemoryProfiler{
		cfg:    cfg,
		alerts: make(chan MemoryAlert, 8),
	}
}

// Alerts 返回告警事件通道，供外部观测消费
func (p *MemoryProfiler) Alerts() <-chan MemoryAlert {
	return p.alerts
}

// Resident 返回最近一次采样的常驻内存字节数
func (p *MemoryProfiler) Resident() int64 {
	return p.resident.Load()
}

// Run 周期采样直到 ctx 取消；应在独立 goroutine 中运行
func (p *MemoryProfiler) Run(ctx context.Context) {
	if !p.cfg.Enabled {
		return
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Error(ctx, "memory profiler disabled: cannot attach to own process", err)
		return
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	breaches := 0
	alerted := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		info, err := proc.MemoryInfoWithContext(ctx)
		if err != nil {
			logger.Warn(ctx, "memory sample failed", "error", err.Error())
			continue
		}
		rss := int64(info.RSS)
		p.resident.Store(rss)
		metrics.ResidentMemoryBytes.Set(float64(rss))

		if p.cfg.CriticalBytes > 0 && rss > p.cfg.CriticalBytes {
			breaches++
		} else {
			breaches = 0
			alerted = false
		}

		if breaches >= p.cfg.SustainedSamples && !alerted {
			alerted = true
			metrics.MemoryAlerts.Inc()
			logger.Warn(ctx, "sustained critical memory usage",
				"resident_bytes", rss,
				"critical_bytes", p.cfg.CriticalBytes,
				"samples", breaches,
			)
			// 通道满则丢弃事件，不允许反压到采样循环
			select {
			case p.alerts <- MemoryAlert{ResidentBytes: rss, CriticalBytes: p.cfg.CriticalBytes, At: time.Now()}:
			default:
			}
		}
	}
}
