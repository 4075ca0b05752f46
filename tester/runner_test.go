package tester_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xlb-platform/xlbtest/tester"
)

// scriptedRunner replays canned results keyed by input bytes and records
// every invocation.
type scriptedRunner struct {
	results map[string]tester.Result
	inputs  [][]byte
	err     error
}

func (m *scriptedRunner) Invoke(data []byte) (tester.Result, error) {
	copied := append([]byte(nil), data...)
	m.inputs = append(m.inputs, copied)
	if m.err != nil {
		return tester.Result{}, m.err
	}
	res, ok := m.results[string(data)]
	if !ok {
		// Unknown input: echo it back dropped.
		return tester.Result{Output: copied, Verdict: tester.VerdictDrop}, nil
	}
	return res, nil
}

func makeDataset(t *testing.T, fs []tester.Fixture) *tester.Dataset {
	t.Helper()
	ds, err := tester.NewDataset("test", fs, nil)
	require.NoError(t, err)
	return ds
}

func TestRunFixtures_AllPass(t *testing.T) {
	fs := []tester.Fixture{
		{Name: "first", Input: []byte{1, 2}, Output: []byte{0xA, 0xB}, Verdict: tester.VerdictTx},
		{Name: "second", Input: []byte{3, 4}, Output: []byte{3, 4}, Verdict: tester.VerdictPass},
	}
	runner := &scriptedRunner{results: map[string]tester.Result{
		string([]byte{1, 2}): {Output: []byte{0xA, 0xB}, Verdict: tester.VerdictTx},
		string([]byte{3, 4}): {Output: []byte{3, 4}, Verdict: tester.VerdictPass},
	}}

	outcome, err := tester.New().RunFixtures(makeDataset(t, fs), runner)
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Total)
	assert.Equal(t, 2, outcome.Passed)
	assert.Equal(t, 0, outcome.Failed())
}

func TestRunFixtures_NoFailFast(t *testing.T) {
	// Three fixtures, the first and the second fail differently; all
	// three must still be attempted and every failure reported.
	fs := []tester.Fixture{
		{Name: "wrong bytes", Input: []byte{1}, Output: []byte{0xFF}, Verdict: tester.VerdictTx},
		{Name: "wrong verdict", Input: []byte{2}, Output: []byte{0xBB}, Verdict: tester.VerdictTx},
		{Name: "fine", Input: []byte{3}, Output: []byte{0xCC}, Verdict: tester.VerdictTx},
	}
	runner := &scriptedRunner{results: map[string]tester.Result{
		string([]byte{1}): {Output: []byte{0xAA}, Verdict: tester.VerdictTx},
		string([]byte{2}): {Output: []byte{0xBB}, Verdict: tester.VerdictDrop},
		string([]byte{3}): {Output: []byte{0xCC}, Verdict: tester.VerdictTx},
	}}

	outcome, err := tester.New().RunFixtures(makeDataset(t, fs), runner)
	require.NoError(t, err)

	assert.Equal(t, 3, len(runner.inputs), "every fixture must be attempted")
	assert.Equal(t, 1, outcome.Passed)
	require.Equal(t, 2, outcome.Failed())

	// Failures stay attributable to their fixtures.
	assert.Equal(t, 0, outcome.Failures[0].Index)
	assert.Equal(t, "wrong bytes", outcome.Failures[0].Name)
	assert.NotEmpty(t, outcome.Failures[0].Diff)

	assert.Equal(t, 1, outcome.Failures[1].Index)
	assert.Equal(t, "wrong verdict", outcome.Failures[1].Name)
	assert.Empty(t, outcome.Failures[1].Diff, "byte-identical output must not produce a diff")
	assert.Equal(t, tester.VerdictDrop, outcome.Failures[1].Verdict)
	assert.Equal(t, tester.VerdictTx, outcome.Failures[1].WantVerdict)
}

func TestRunFixtures_PreservesOrder(t *testing.T) {
	fs := []tester.Fixture{
		{Name: "a", Input: []byte{1}, Output: []byte{1}, Verdict: tester.VerdictDrop},
		{Name: "b", Input: []byte{2}, Output: []byte{2}, Verdict: tester.VerdictDrop},
		{Name: "c", Input: []byte{3}, Output: []byte{3}, Verdict: tester.VerdictDrop},
	}
	runner := &scriptedRunner{}

	_, err := tester.New().RunFixtures(makeDataset(t, fs), runner)
	require.NoError(t, err)

	require.Len(t, runner.inputs, 3)
	assert.Equal(t, []byte{1}, runner.inputs[0])
	assert.Equal(t, []byte{2}, runner.inputs[1])
	assert.Equal(t, []byte{3}, runner.inputs[2])
}

func TestRunFixtures_InvocationErrorAborts(t *testing.T) {
	fs := []tester.Fixture{
		{Name: "doomed", Input: []byte{1}, Output: []byte{1}, Verdict: tester.VerdictDrop},
	}
	runner := &scriptedRunner{err: errors.New("bad handle")}

	_, err := tester.New().RunFixtures(makeDataset(t, fs), runner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doomed", "error must identify the fixture")
	assert.Contains(t, err.Error(), "bad handle")
}

func TestNewDataset_PairingInvariant(t *testing.T) {
	_, err := tester.NewDataset("broken", []tester.Fixture{
		{Name: "no output", Input: []byte{1}},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no output")

	_, err = tester.NewDataset("broken", []tester.Fixture{
		{Name: "no input", Output: []byte{1}},
	}, nil)
	require.Error(t, err)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "XDP_TX", tester.VerdictTx.String())
	assert.Equal(t, "XDP_DROP", tester.VerdictDrop.String())
	assert.Equal(t, "XDP(42)", tester.Verdict(42).String())
}
