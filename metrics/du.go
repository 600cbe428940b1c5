package metrics

import (
	"os"
	"time"

	"github.com/chronodb/oplogd/utils/log"
)

// Setter is an interface for prometheus metrics to improve unit-testability.
type Setter interface {
	Set(m float64)
}

// StartDiskUsageMonitor samples the size of the file at path on every tick of
// interval and reports it via s, until stop is closed.
func StartDiskUsageMonitor(s Setter, path string, interval time.Duration, stop <-chan struct{}) {
	s.Set(float64(fileSize(path)))

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.Set(float64(fileSize(path)))
		}
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		log.Error("metrics: failed to stat %s for disk usage monitoring: %v", path, err)
		return 0
	}
	return info.Size()
}
