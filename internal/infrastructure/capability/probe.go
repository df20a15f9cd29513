// Package capability answers whether this host can run accelerated model compute.
package capability

import (
	"context"
	"log/slog"
	"os"
	"runtime"

	"github.com/kirillkom/ai-text-detector/internal/core/domain"
)

// DefaultDevicePaths are the device nodes CUDA, ROCm and render-node drivers expose.
var DefaultDevicePaths = []string{
	"/dev/nvidia0",
	"/dev/nvidiactl",
	"/dev/kfd",
	"/dev/dri/renderD128",
}

// DeviceProbe looks for GPU device nodes. Apple silicon always has Metal.
type DeviceProbe struct {
	devicePaths []string
	goos        string
	goarch      string
	stat        func(string) (os.FileInfo, error)
}

func NewDeviceProbe(devicePaths []string) *DeviceProbe {
	if len(devicePaths) == 0 {
		devicePaths = DefaultDevicePaths
	}
	return &DeviceProbe{
		devicePaths: devicePaths,
		goos:        runtime.GOOS,
		goarch:      runtime.GOARCH,
		stat:        os.Stat,
	}
}

func (p *DeviceProbe) BackendAvailable(_ context.Context, backend domain.Backend) bool {
	if backend != domain.BackendGPU {
		return true
	}
	if p.goos == "darwin" && p.goarch == "arm64" {
		return true
	}
	for _, path := range p.devicePaths {
		if _, err := p.stat(path); err == nil {
			slog.Debug("gpu_device_found", "path", path)
			return true
		}
	}
	return false
}

// Static is a probe with a fixed answer, used when the GPU requirement is waived.
type Static bool

func (s Static) BackendAvailable(context.Context, domain.Backend) bool {
	return bool(s)
}
