package tester_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xlb-platform/xlbtest/tester"
	"github.com/xlb-platform/xlbtest/xlb"
)

// fakeFacade serves canned counters and records how often each query ran.
type fakeFacade struct {
	vip         xlb.Stats
	lru         xlb.Stats
	lruMiss     xlb.Stats
	lruFallback xlb.Stats
	quic        xlb.Stats
	icmpTooBig  xlb.Stats
	srcRouting  xlb.Stats
	inlineDecap xlb.Stats
	reals       map[string]xlb.Stats
	global      xlb.LbStats
	maps        map[string]xlb.MapStats

	vipQueries int
	vipErr     error
}

func (f *fakeFacade) VipStats(vip xlb.VipKey) (xlb.Stats, error) {
	f.vipQueries++
	if f.vipErr != nil {
		return xlb.Stats{}, f.vipErr
	}
	return f.vip, nil
}

func (f *fakeFacade) LruStats() (xlb.Stats, error)         { return f.lru, nil }
func (f *fakeFacade) LruMissStats() (xlb.Stats, error)     { return f.lruMiss, nil }
func (f *fakeFacade) LruFallbackStats() (xlb.Stats, error) { return f.lruFallback, nil }
func (f *fakeFacade) QuicRoutingStats() (xlb.Stats, error) { return f.quic, nil }
func (f *fakeFacade) IcmpTooBigStats() (xlb.Stats, error)  { return f.icmpTooBig, nil }
func (f *fakeFacade) SrcRoutingStats() (xlb.Stats, error)  { return f.srcRouting, nil }
func (f *fakeFacade) InlineDecapStats() (xlb.Stats, error) { return f.inlineDecap, nil }

func (f *fakeFacade) RealIndex(addr string) (int, bool) {
	if _, ok := f.reals[addr]; !ok {
		return 0, false
	}
	i := 0
	for a := range f.reals {
		if a == addr {
			return i, true
		}
		i++
	}
	return 0, false
}

func (f *fakeFacade) RealStats(index int) (xlb.Stats, error) {
	i := 0
	for a := range f.reals {
		if i == index {
			return f.reals[a], nil
		}
		i++
	}
	return xlb.Stats{}, errors.New("no such real")
}

func (f *fakeFacade) GlobalStats() (xlb.LbStats, error) { return f.global, nil }

func (f *fakeFacade) MapStats(name string) (xlb.MapStats, error) {
	stats, ok := f.maps[name]
	if !ok {
		return xlb.MapStats{}, errors.New("no such map")
	}
	return stats, nil
}

func (f *fakeFacade) RealForFlow(flow xlb.FlowKey) (string, error) { return "", nil }
func (f *fakeFacade) StopMonitor() error                           { return nil }
func (f *fakeFacade) MonitorBuffer(event uint32) ([]byte, error)   { return nil, nil }
func (f *fakeFacade) MonitorStats() (xlb.MonitorStats, error)      { return xlb.MonitorStats{}, nil }

var _ xlb.Facade = (*fakeFacade)(nil)

func happyFacade() *fakeFacade {
	return &fakeFacade{
		vip:     xlb.Stats{V1: 2, V2: 176},
		lru:     xlb.Stats{V1: 7, V2: 6},
		lruMiss: xlb.Stats{V1: 2, V2: 1},
		quic:    xlb.Stats{V1: 1, V2: 0},
		reals: map[string]xlb.Stats{
			"10.0.0.1": {V1: 2, V2: 152},
		},
	}
}

func happyExpectations() *tester.StateExpectations {
	return &tester.StateExpectations{
		Vip:         xlb.VipKey{Address: "10.200.1.1", Port: 80, Proto: 6},
		VipStats:    xlb.Stats{V1: 2, V2: 176},
		Lru:         xlb.Stats{V1: 7, V2: 6},
		LruMiss:     xlb.Stats{V1: 2, V2: 1},
		QuicRouting: xlb.Stats{V1: 1, V2: 0},
		Reals: []tester.RealExpectation{
			{Addr: "10.0.0.1", Stats: xlb.Stats{V1: 2, V2: 152}},
		},
	}
}

func TestValidateState_AllMatch(t *testing.T) {
	outcome := tester.New().ValidateState(happyFacade(), happyExpectations())

	assert.True(t, outcome.OK())
	assert.Empty(t, outcome.Mismatches)
	// vip, lru, lru miss, fallback, quic, one real, two internal counters.
	assert.Equal(t, 8, outcome.Checks)
}

func TestValidateState_RecordsEveryMismatch(t *testing.T) {
	lb := happyFacade()
	lb.vip = xlb.Stats{V1: 99, V2: 99}
	lb.lruMiss = xlb.Stats{V1: 5, V2: 5}
	lb.global = xlb.LbStats{BpfFailedCalls: 3}

	outcome := tester.New().ValidateState(lb, happyExpectations())

	require.False(t, outcome.OK())
	// Mismatches never short-circuit: every divergent check shows up.
	require.Len(t, outcome.Mismatches, 3)

	var checks []string
	for _, mm := range outcome.Mismatches {
		checks = append(checks, mm.Check)
	}
	assert.Contains(t, checks, "vip 10.200.1.1 counters")
	assert.Contains(t, checks, "lru miss counters")
	assert.Contains(t, checks, "failed bpf calls")
}

func TestValidateState_UnknownRealIsMismatch(t *testing.T) {
	exp := happyExpectations()
	exp.Reals = append(exp.Reals, tester.RealExpectation{
		Addr: "10.0.0.99", Stats: xlb.Stats{V1: 1, V2: 1},
	})

	outcome := tester.New().ValidateState(happyFacade(), exp)

	require.Len(t, outcome.Mismatches, 1)
	assert.Equal(t, "real 10.0.0.99 counters", outcome.Mismatches[0].Check)
}

func TestValidateState_QueryFailureIsMismatch(t *testing.T) {
	lb := happyFacade()
	lb.vipErr = errors.New("map lookup failed")

	outcome := tester.New().ValidateState(lb, happyExpectations())

	require.Len(t, outcome.Mismatches, 1)
	assert.Equal(t, "vip counters", outcome.Mismatches[0].Check)
	assert.Equal(t, "map lookup failed", outcome.Mismatches[0].Got)
}

func TestValidateState_RefetchesEveryRun(t *testing.T) {
	lb := happyFacade()
	m := tester.New()

	m.ValidateState(lb, happyExpectations())
	m.ValidateState(lb, happyExpectations())

	assert.Equal(t, 2, lb.vipQueries)
}

func TestValidateOptionalState(t *testing.T) {
	lb := happyFacade()
	lb.icmpTooBig = xlb.Stats{V1: 1, V2: 1}
	lb.srcRouting = xlb.Stats{V1: 1, V2: 1}
	lb.inlineDecap = xlb.Stats{V1: 1}

	exp := &tester.StateExpectations{
		IcmpTooBig:         xlb.Stats{V1: 1, V2: 1},
		SrcRouting:         xlb.Stats{V1: 1, V2: 1},
		InlineDecapPackets: 1,
	}
	outcome := tester.New().ValidateOptionalState(lb, exp)
	assert.True(t, outcome.OK())

	lb.srcRouting = xlb.Stats{V1: 0, V2: 2}
	outcome = tester.New().ValidateOptionalState(lb, exp)
	require.Len(t, outcome.Mismatches, 1)
	assert.Equal(t, "source routing counters", outcome.Mismatches[0].Check)
}

func TestValidateMaps(t *testing.T) {
	lb := happyFacade()
	lb.maps = map[string]xlb.MapStats{
		"vip_map": {CurrentEntries: 8, MaxEntries: 512},
	}

	checks := []tester.MapExpectation{
		{Name: "vip_map", Current: 8, Max: 512},
	}
	outcome := tester.New().ValidateMaps(lb, checks)
	assert.True(t, outcome.OK())
	assert.Equal(t, 2, outcome.Checks)

	checks[0].Current = 9
	outcome = tester.New().ValidateMaps(lb, checks)
	require.Len(t, outcome.Mismatches, 1)
	assert.Equal(t, "map vip_map current entries", outcome.Mismatches[0].Check)

	outcome = tester.New().ValidateMaps(lb, []tester.MapExpectation{
		{Name: "missing_map", Current: 0, Max: 0},
	})
	require.Len(t, outcome.Mismatches, 1)
	assert.Equal(t, "map missing_map occupancy", outcome.Mismatches[0].Check)
}
