package tester

import (
	"fmt"

	"github.com/xlb-platform/xlbtest/xlb"
)

// StateMismatch is one disagreement between an expected counter or table
// value and the value the facade reported.
type StateMismatch struct {
	Check string
	Want  string
	Got   string
}

// StateOutcome aggregates the counter and table checks of one validation
// pass.
type StateOutcome struct {
	Checks     int
	Mismatches []StateMismatch
}

// OK reports whether every check passed.
func (m *StateOutcome) OK() bool {
	return len(m.Mismatches) == 0
}

func (m *StateOutcome) check(t *Tester, name string, got, want xlb.Stats) {
	m.Checks++
	if got == want {
		return
	}
	m.Mismatches = append(m.Mismatches, StateMismatch{
		Check: name,
		Want:  fmt.Sprintf("v1=%d v2=%d", want.V1, want.V2),
		Got:   fmt.Sprintf("v1=%d v2=%d", got.V1, got.V2),
	})
	t.log.Warnf("%s: got v1=%d v2=%d, want v1=%d v2=%d",
		name, got.V1, got.V2, want.V1, want.V2)
}

func (m *StateOutcome) checkValue(t *Tester, name string, got, want uint64) {
	m.Checks++
	if got == want {
		return
	}
	m.Mismatches = append(m.Mismatches, StateMismatch{
		Check: name,
		Want:  fmt.Sprintf("%d", want),
		Got:   fmt.Sprintf("%d", got),
	})
	t.log.Warnf("%s: got %d, want %d", name, got, want)
}

func (m *StateOutcome) fail(t *Tester, name string, err error) {
	m.Checks++
	m.Mismatches = append(m.Mismatches, StateMismatch{
		Check: name,
		Want:  "successful query",
		Got:   err.Error(),
	})
	t.log.Warnf("%s: query failed: %v", name, err)
}

// ValidateState queries the balancer facade after a dataset replay and
// asserts each counter against the literal expectations the dataset
// carries. Every check runs regardless of earlier mismatches so the full
// blast radius of a regression is visible in one pass. Values are
// re-fetched on every call, never cached across runs.
func (m *Tester) ValidateState(lb xlb.Facade, exp *StateExpectations) *StateOutcome {
	outcome := &StateOutcome{}

	if stats, err := lb.VipStats(exp.Vip); err != nil {
		outcome.fail(m, "vip counters", err)
	} else {
		outcome.check(m, fmt.Sprintf("vip %s counters", exp.Vip.Address), stats, exp.VipStats)
	}

	if stats, err := lb.LruStats(); err != nil {
		outcome.fail(m, "lru counters", err)
	} else {
		outcome.check(m, "lru counters", stats, exp.Lru)
	}

	if stats, err := lb.LruMissStats(); err != nil {
		outcome.fail(m, "lru miss counters", err)
	} else {
		outcome.check(m, "lru miss counters", stats, exp.LruMiss)
	}

	if stats, err := lb.LruFallbackStats(); err != nil {
		outcome.fail(m, "fallback lru hits", err)
	} else {
		outcome.checkValue(m, "fallback lru hits", stats.V1, exp.LruFallbackHits)
	}

	if stats, err := lb.QuicRoutingStats(); err != nil {
		outcome.fail(m, "quic routing counters", err)
	} else {
		outcome.check(m, "quic routing counters", stats, exp.QuicRouting)
	}

	for _, real := range exp.Reals {
		name := fmt.Sprintf("real %s counters", real.Addr)
		idx, ok := lb.RealIndex(real.Addr)
		if !ok {
			outcome.fail(m, name, fmt.Errorf("real does not exist: %s", real.Addr))
			continue
		}
		stats, err := lb.RealStats(idx)
		if err != nil {
			outcome.fail(m, name, err)
			continue
		}
		outcome.check(m, name, stats, real.Stats)
	}

	if stats, err := lb.GlobalStats(); err != nil {
		outcome.fail(m, "internal counters", err)
	} else {
		outcome.checkValue(m, "failed bpf calls", stats.BpfFailedCalls, 0)
		outcome.checkValue(m, "failed address validations", stats.AddrValidationFailed, 0)
	}

	m.log.Infof("state validation: %d checks, %d mismatches",
		outcome.Checks, len(outcome.Mismatches))
	return outcome
}

// ValidateOptionalState covers the kernel-specific counters exercised only
// by the optional datasets.
func (m *Tester) ValidateOptionalState(lb xlb.Facade, exp *StateExpectations) *StateOutcome {
	outcome := &StateOutcome{}

	if stats, err := lb.IcmpTooBigStats(); err != nil {
		outcome.fail(m, "icmp too-big counters", err)
	} else {
		outcome.check(m, "icmp too-big counters", stats, exp.IcmpTooBig)
	}

	if stats, err := lb.SrcRoutingStats(); err != nil {
		outcome.fail(m, "source routing counters", err)
	} else {
		outcome.check(m, "source routing counters", stats, exp.SrcRouting)
	}

	if stats, err := lb.InlineDecapStats(); err != nil {
		outcome.fail(m, "inline decap counters", err)
	} else {
		outcome.checkValue(m, "inline decap counters", stats.V1, exp.InlineDecapPackets)
	}

	if stats, err := lb.MonitorStats(); err != nil {
		m.log.Warnf("monitor stats query failed: %v", err)
	} else {
		m.log.Infof("monitor: limit %d, amount %d", stats.Limit, stats.Amount)
	}

	m.log.Infof("optional state validation: %d checks, %d mismatches",
		outcome.Checks, len(outcome.Mismatches))
	return outcome
}

// ValidateMaps asserts the (current, maximum) occupancy of named lookup
// tables. It is run both before a replay, against the pre-seeded baseline,
// and after it, against the populated expectation: the former validates
// the balancer's own setup, the latter validates table lifecycle during
// the replay.
func (m *Tester) ValidateMaps(lb xlb.Facade, checks []MapExpectation) *StateOutcome {
	outcome := &StateOutcome{}

	for _, exp := range checks {
		stats, err := lb.MapStats(exp.Name)
		if err != nil {
			outcome.fail(m, fmt.Sprintf("map %s occupancy", exp.Name), err)
			continue
		}
		outcome.checkValue(m, fmt.Sprintf("map %s current entries", exp.Name),
			uint64(stats.CurrentEntries), uint64(exp.Current))
		outcome.checkValue(m, fmt.Sprintf("map %s max entries", exp.Name),
			uint64(stats.MaxEntries), uint64(exp.Max))
	}

	return outcome
}
