package tester

import (
	"fmt"
	"time"
)

// defaultPerfPosition is the dataset index injected when no explicit
// position is requested.
const defaultPerfPosition = 0

// PerfStats aggregates the timing of a repeated single-packet injection
// run. This is a microbenchmark, not a statistical framework: no warm-up
// separation or confidence intervals, only repeatable measurement under an
// identical input.
type PerfStats struct {
	Fixture     string
	Invocations int
	Total       time.Duration
	Min         time.Duration
	Max         time.Duration
	Mean        time.Duration
}

// PacketsPerSecond is the throughput over the whole run.
func (m *PerfStats) PacketsPerSecond() float64 {
	if m.Total <= 0 {
		return 0
	}
	return float64(m.Invocations) / m.Total.Seconds()
}

// RunPerf invokes the runner repeat times on the fixture at position
// (defaulting to a fixed index when position is negative) and accumulates
// latency statistics. The comparator never runs here, and a drop or error
// verdict from the program is a data point, not a failure. An out-of-range
// position is a configuration error.
func (m *Tester) RunPerf(ds *Dataset, r Runner, repeat, position int) (*PerfStats, error) {
	if repeat <= 0 {
		return nil, fmt.Errorf("repeat count must be positive, got %d", repeat)
	}
	if len(ds.Fixtures) == 0 {
		return nil, fmt.Errorf("dataset %q is empty", ds.Name)
	}
	if position >= len(ds.Fixtures) {
		return nil, fmt.Errorf("position %d is out of range for dataset %q with %d fixtures",
			position, ds.Name, len(ds.Fixtures))
	}
	if position < 0 {
		position = defaultPerfPosition
	}

	fixture := ds.Fixtures[position]
	stats := &PerfStats{Fixture: fixture.Name, Invocations: repeat}

	for i := 0; i < repeat; i++ {
		res, err := r.Invoke(fixture.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to invoke program on iteration %d: %w", i, err)
		}

		stats.Total += res.Duration
		if i == 0 || res.Duration < stats.Min {
			stats.Min = res.Duration
		}
		if res.Duration > stats.Max {
			stats.Max = res.Duration
		}
	}
	stats.Mean = stats.Total / time.Duration(repeat)

	m.log.Infof("perf: fixture %q, %d runs in %s", fixture.Name, repeat, stats.Total)
	m.log.Infof("perf: min %s, max %s, mean %s, %.0f pkts/s",
		stats.Min, stats.Max, stats.Mean, stats.PacketsPerSecond())
	return stats, nil
}
