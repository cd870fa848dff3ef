// Package space estimates free device storage for the audio cache.
package space

import "log/slog"

const (
	// DefaultThresholdMB is the free-space floor below which the cache
	// must evict before downloading more audio.
	DefaultThresholdMB = 20

	// fallbackNoAPIMB is reported when the platform exposes no usable
	// quota API.
	fallbackNoAPIMB = 150

	// fallbackErrorMB is reported when the quota query itself fails.
	fallbackErrorMB = 100

	oneMB = 1024 * 1024
)

// Monitor estimates free space on the filesystem holding the cache dir.
// It is side-effect-free and never fails; all error paths degrade to a
// conservative default estimate.
type Monitor struct {
	dir    string
	logger *slog.Logger
}

func NewMonitor(dir string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{dir: dir, logger: logger}
}

// AvailableMB returns a best-effort estimate of free space in megabytes.
func (m *Monitor) AvailableMB() int64 {
	if !statfsSupported {
		return fallbackNoAPIMB
	}
	avail, err := availableBytes(m.dir)
	if err != nil {
		m.logger.Warn("storage estimate failed", "dir", m.dir, "error", err)
		return fallbackErrorMB
	}
	return avail / oneMB
}

// IsSafe reports whether free space exceeds the given threshold.
func (m *Monitor) IsSafe(thresholdMB int64) bool {
	if thresholdMB <= 0 {
		thresholdMB = DefaultThresholdMB
	}
	return m.AvailableMB() > thresholdMB
}
