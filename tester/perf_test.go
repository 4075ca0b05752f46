package tester_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xlb-platform/xlbtest/tester"
)

// tickingRunner drops everything and reports a deterministic, increasing
// duration per call.
type tickingRunner struct {
	calls  int
	inputs [][]byte
}

func (m *tickingRunner) Invoke(data []byte) (tester.Result, error) {
	m.calls++
	m.inputs = append(m.inputs, append([]byte(nil), data...))
	return tester.Result{
		Output:   append([]byte(nil), data...),
		Verdict:  tester.VerdictDrop,
		Duration: time.Duration(m.calls) * time.Microsecond,
	}, nil
}

func perfDataset(t *testing.T) *tester.Dataset {
	t.Helper()
	ds, err := tester.NewDataset("perf", []tester.Fixture{
		{Name: "first", Input: []byte{1, 1}, Output: []byte{1, 1}, Verdict: tester.VerdictTx},
		{Name: "second", Input: []byte{2, 2}, Output: []byte{2, 2}, Verdict: tester.VerdictTx},
	}, nil)
	require.NoError(t, err)
	return ds
}

func TestRunPerf_InvokesExactlyRepeatTimes(t *testing.T) {
	runner := &tickingRunner{}

	// The drop verdict must not stop the loop: every run is a data
	// point in this mode.
	stats, err := tester.New().RunPerf(perfDataset(t), runner, 10, -1)
	require.NoError(t, err)

	assert.Equal(t, 10, runner.calls)
	assert.Equal(t, 10, stats.Invocations)
	assert.Equal(t, "first", stats.Fixture, "default position selects the first fixture")
}

func TestRunPerf_InputStableAcrossRepeats(t *testing.T) {
	runner := &tickingRunner{}

	_, err := tester.New().RunPerf(perfDataset(t), runner, 5, 1)
	require.NoError(t, err)

	require.Len(t, runner.inputs, 5)
	for _, in := range runner.inputs {
		assert.True(t, bytes.Equal([]byte{2, 2}, in), "per-call input bytes must not change")
	}
}

func TestRunPerf_Statistics(t *testing.T) {
	runner := &tickingRunner{}

	stats, err := tester.New().RunPerf(perfDataset(t), runner, 4, 0)
	require.NoError(t, err)

	// Durations were 1, 2, 3, 4 microseconds.
	assert.Equal(t, 10*time.Microsecond, stats.Total)
	assert.Equal(t, 1*time.Microsecond, stats.Min)
	assert.Equal(t, 4*time.Microsecond, stats.Max)
	assert.Equal(t, 2500*time.Nanosecond, stats.Mean)
	assert.InDelta(t, 400000, stats.PacketsPerSecond(), 1)
}

func TestRunPerf_PositionOutOfRange(t *testing.T) {
	_, err := tester.New().RunPerf(perfDataset(t), &tickingRunner{}, 10, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestRunPerf_BadRepeat(t *testing.T) {
	_, err := tester.New().RunPerf(perfDataset(t), &tickingRunner{}, 0, -1)
	require.Error(t, err)
}
