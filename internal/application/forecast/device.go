// Package forecast 实现类比集合检索与聚合引擎
package forecast

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"

	"analog-forecast-api/internal/config"
	"analog-forecast-api/internal/infrastructure/vectorindex"
	"analog-forecast-api/pkg/errors"
	"analog-forecast-api/pkg/logger"
)

// 执行路径标签
const (
	DeviceAccelerated = "accelerated"
	DeviceScalar      = "scalar"
)

// Device 已选定的距离计算执行路径
// 选择结果与理由在启动时固定并记录，绝不静默切换
type Device struct {
	Path     string
	Reason   string
	Distance vectorindex.DistanceFunc
}

// SelectDevice 根据偏好与 CPU 能力选择执行路径
// 偏好 accelerated 且能力不足时返回错误（启动期致命）；auto 回退到标量路径
func SelectDevice(ctx context.Context, cfg *config.DeviceConfig) (*Device, error) {
	if cfg.ForceScalar {
		return record(ctx, DeviceScalar, "force_scalar set"), nil
	}

	capable, detail := hasCapability(ctx, cfg.MinCapability)

	switch cfg.Preference {
	case DeviceScalar:
		return record(ctx, DeviceScalar, "preference scalar"), nil
	case DeviceAccelerated:
		if !capable {
			return nil, errors.ErrDeviceUnavailable.WithDetail(detail)
		}
		return record(ctx, DeviceAccelerated, detail), nil
	default: // auto
		if capable {
			return record(ctx, DeviceAccelerated, detail), nil
		}
		return record(ctx, DeviceScalar, "fallback: "+detail), nil
	}
}

// record 构造 Device 并记录选择理由
func record(ctx context.Context, path, reason string) *Device {
	d := &Device{Path: path, Reason: reason}
	if path == DeviceAccelerated {
		d.Distance = vectorindex.SIMDDistance
	} else {
		d.Distance = vectorindex.ScalarDistance
	}
	logger.Info(ctx, "execution device selected", "device", path, "reason", reason)
	return d
}

// hasCapability 探测 CPU 是否具备最低指令集能力
func hasCapability(ctx context.Context, minCapability string) (bool, string) {
	// arm64 的 NEON 属于基线能力，无需查询 flags
	if runtime.GOARCH == "arm64" {
		return true, "arm64 baseline simd"
	}

	infos, err := cpu.InfoWithContext(ctx)
	if err != nil || len(infos) == 0 {
		return false, fmt.Sprintf("cpu capability probe failed: %v", err)
	}
	want := strings.ToLower(minCapability)
	for _, flag := range infos[0].Flags {
		if strings.ToLower(flag) == want {
			return true, "cpu flag " + want + " present"
		}
	}
	return false, "cpu flag " + want + " absent"
}
