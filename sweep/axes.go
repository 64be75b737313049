package sweep

import (
	"fmt"

	"github.com/Octogonapus/S3Bench/payload"
	"github.com/Octogonapus/S3Bench/storage"
)

// Axes are the configuration values swept over. Every combination is one Point.
type Axes struct {
	SizeMB         []int
	Concurrency    []int
	MaxConcurrency []int
	MaxIOQueue     []int
	Trials         int
	Mode           payload.Mode
}

func (a Axes) Validate() error {
	lists := []struct {
		name   string
		values []int
	}{
		{"size_mb", a.SizeMB},
		{"concurrency", a.Concurrency},
		{"max_concurrency", a.MaxConcurrency},
		{"max_io_queue", a.MaxIOQueue},
	}
	for _, l := range lists {
		if len(l.values) == 0 {
			return fmt.Errorf("%s needs at least one value", l.name)
		}
		for _, v := range l.values {
			if v <= 0 {
				return fmt.Errorf("%s values must be positive, got %d", l.name, v)
			}
		}
	}
	if a.Trials < 1 {
		return fmt.Errorf("trials must be at least 1, got %d", a.Trials)
	}
	if a.Mode != payload.Random && a.Mode != payload.Zero {
		return fmt.Errorf("unknown content mode: %s", a.Mode)
	}
	return nil
}

// Point is one combination of axis values.
type Point struct {
	Trial          int
	SizeMB         int
	Concurrency    int
	MaxConcurrency int
	MaxIOQueue     int
	Mode           payload.Mode
}

func (p Point) TransferConfig() storage.TransferConfig {
	return storage.TransferConfig{MaxConcurrency: p.MaxConcurrency, MaxIOQueue: p.MaxIOQueue}
}

func (p Point) String() string {
	return fmt.Sprintf("size=%dMB procs=%d maxConc=%d maxIOQueue=%d mode=%s trial=%d",
		p.SizeMB, p.Concurrency, p.MaxConcurrency, p.MaxIOQueue, p.Mode, p.Trial)
}

// Points returns the Cartesian product of the axes. Nesting, outermost first: max concurrency,
// max io queue, concurrency, size, trial. Transfer tuning changes least often.
func (a Axes) Points() []Point {
	points := make([]Point, 0, len(a.MaxConcurrency)*len(a.MaxIOQueue)*len(a.Concurrency)*len(a.SizeMB)*max(a.Trials, 0))
	for _, maxConc := range a.MaxConcurrency {
		for _, maxIOQueue := range a.MaxIOQueue {
			for _, concurrency := range a.Concurrency {
				for _, size := range a.SizeMB {
					for trial := range a.Trials {
						points = append(points, Point{
							Trial:          trial,
							SizeMB:         size,
							Concurrency:    concurrency,
							MaxConcurrency: maxConc,
							MaxIOQueue:     maxIOQueue,
							Mode:           a.Mode,
						})
					}
				}
			}
		}
	}
	return points
}
