package sweep

import (
	"fmt"
	"time"
)

// Throughput in megabits per second of concurrency payloads of sizeMB moved in d.
func Throughput(sizeMB int, concurrency int, d time.Duration) (float64, error) {
	if d <= 0 {
		return 0, fmt.Errorf("can't compute throughput over a non-positive duration %s", d)
	}
	return float64(sizeMB*concurrency) / d.Seconds() * 8, nil
}
