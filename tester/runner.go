// Package tester implements the fixture replay and verification engine:
// it feeds canned or captured packets into a loaded packet-processing
// program, compares the output against golden expectations, validates the
// balancer's observable counter state after a batch, and drives repeated
// single-packet injection for performance measurement.
package tester

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

type options struct {
	Log *zap.SugaredLogger
	Out io.Writer
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
		Out: os.Stdout,
	}
}

// Option is a function that configures the tester.
type Option func(*options)

// WithLog sets the logger for the tester.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// WithOutput sets the writer packet dumps are printed to. Dumps go to
// stdout by default, separated from the stderr log stream so they stay
// machine-readable.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.Out = w
	}
}

// Tester drives fixture replay, capture replay, performance runs and state
// validation. A single tester instance replays one dataset at a time;
// there is no concurrent multi-dataset execution.
type Tester struct {
	log *zap.SugaredLogger
	out io.Writer
}

// New creates a tester.
func New(opts ...Option) *Tester {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Tester{log: o.Log, out: o.Out}
}

// FixtureFailure identifies one failing fixture within an outcome.
type FixtureFailure struct {
	Index int
	Name  string
	// Diff is the byte-level mismatch summary, empty when only the
	// verdict diverged.
	Diff        string
	Verdict     Verdict
	WantVerdict Verdict
}

// Outcome aggregates the pass/fail results of one dataset replay.
type Outcome struct {
	Dataset  string
	Total    int
	Passed   int
	Failures []FixtureFailure
}

// Failed reports the number of failing fixtures.
func (m *Outcome) Failed() int {
	return len(m.Failures)
}

// RunFixtures replays every fixture of the dataset through the runner in
// dataset order and compares output bytes and verdict against the golden
// expectations. A failing fixture does not halt the run: all fixtures are
// attempted so that every regression in a batch is visible together. Only
// an invocation failure aborts, carrying the fixture identity.
func (m *Tester) RunFixtures(ds *Dataset, r Runner) (*Outcome, error) {
	outcome := &Outcome{Dataset: ds.Name, Total: len(ds.Fixtures)}

	for idx, fixture := range ds.Fixtures {
		res, err := r.Invoke(fixture.Input)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to invoke program for fixture %d (%s) of dataset %q: %w",
				idx, fixture.Name, ds.Name, err)
		}

		ok, diff := Compare(res.Output, fixture.Output)
		if ok && res.Verdict == fixture.Verdict {
			outcome.Passed++
			m.log.Infof("test %3d: %-60s passed", idx, fixture.Name)
			continue
		}

		failure := FixtureFailure{
			Index:       idx,
			Name:        fixture.Name,
			Verdict:     res.Verdict,
			WantVerdict: fixture.Verdict,
		}
		if !ok {
			failure.Diff = diff
		}

		outcome.Failures = append(outcome.Failures, failure)
		m.log.Warnf("test %3d: %-60s failed", idx, fixture.Name)
		if res.Verdict != fixture.Verdict {
			m.log.Warnf("  verdict: got %s, want %s", res.Verdict, fixture.Verdict)
		}
		if !ok {
			m.log.Debugf("  output diff:\n%s", diff)
		}
	}

	m.log.Infof("dataset %q: %d/%d fixtures passed",
		ds.Name, outcome.Passed, outcome.Total)
	return outcome, nil
}
