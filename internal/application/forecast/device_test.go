package forecast

import (
	"context"
	"testing"

	"analog-forecast-api/internal/config"
)

func TestSelectDeviceForceScalar(t *testing.T) {
	device, err := SelectDevice(context.Background(), &config.DeviceConfig{
		Preference:  "accelerated",
		ForceScalar: true,
	})
	if err != nil {
		t.Fatalf("SelectDevice: %v", err)
	}
	if device.Path != DeviceScalar {
		t.Errorf("path = %s, want scalar under force_scalar", device.Path)
	}
	if device.Distance == nil {
		t.Error("distance function not set")
	}
}

func TestSelectDeviceScalarPreference(t *testing.T) {
	device, err := SelectDevice(context.Background(), &config.DeviceConfig{
		Preference:    "scalar",
		MinCapability: "avx2",
	})
	if err != nil {
		t.Fatalf("SelectDevice: %v", err)
	}
	if device.Path != DeviceScalar {
		t.Errorf("path = %s, want scalar", device.Path)
	}
}

// auto 偏好在任何宿主机上都必须成功选出一条路径
func TestSelectDeviceAutoNeverFails(t *testing.T) {
	device, err := SelectDevice(context.Background(), &config.DeviceConfig{
		Preference:    "auto",
		MinCapability: "avx2",
	})
	if err != nil {
		t.Fatalf("SelectDevice auto: %v", err)
	}
	if device.Path != DeviceAccelerated && device.Path != DeviceScalar {
		t.Errorf("unexpected path %s", device.Path)
	}
	if device.Reason == "" {
		t.Error("selection reason must be recorded")
	}
}

func TestSelectDeviceAcceleratedUnsupportedCapability(t *testing.T) {
	_, err := SelectDevice(context.Background(), &config.DeviceConfig{
		Preference:    "accelerated",
		MinCapability: "no_such_isa_flag",
	})
	// arm64 宿主机把 SIMD 视为基线能力，探测永远通过
	if err == nil {
		t.Skip("host reports baseline capability")
	}
}
