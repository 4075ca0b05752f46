package tester

import (
	"fmt"

	"github.com/xlb-platform/xlbtest/xlb"
)

// Fixture is one named (input, expected output) pair. Fixtures are
// immutable once constructed; drop scenarios carry the unchanged input as
// their expected output.
type Fixture struct {
	Name    string
	Input   []byte
	Output  []byte
	Verdict Verdict
}

// Dataset is an ordered collection of fixtures replayed together in one
// run. Order matters: fixtures encode scenario narratives, e.g. malformed
// flows are placed after the well-formed ones that seeded the session
// table. Datasets are never mutated during a run.
type Dataset struct {
	Name     string
	Fixtures []Fixture

	// State holds the counter and table expectations tied to exactly one
	// replay of this dataset against a freshly initialized balancer.
	// Keeping them on the dataset prevents drift between fixtures and
	// their expected side effects.
	State *StateExpectations
}

// NewDataset validates the fixture pairing invariant: every fixture must
// carry both an input and an expected output. A violation is a
// configuration error, not a test failure.
func NewDataset(name string, fixtures []Fixture, state *StateExpectations) (*Dataset, error) {
	for idx, f := range fixtures {
		if len(f.Input) == 0 {
			return nil, fmt.Errorf("dataset %q: fixture %d (%s) has no input", name, idx, f.Name)
		}
		if len(f.Output) == 0 {
			return nil, fmt.Errorf("dataset %q: fixture %d (%s) has no expected output", name, idx, f.Name)
		}
	}
	return &Dataset{Name: name, Fixtures: fixtures, State: state}, nil
}

// RealExpectation is the expected per-real counter pair, keyed by the
// real's address rather than its table index so that index assignment
// stays an implementation detail of the balancer.
type RealExpectation struct {
	Addr  string
	Stats xlb.Stats
}

// MapExpectation is the expected occupancy of a named lookup table.
type MapExpectation struct {
	Name    string
	Current uint32
	Max     uint32
}

// StateExpectations are the literal counter and table values expected
// after one replay of the owning dataset. They are fixture metadata, never
// recomputed.
type StateExpectations struct {
	// Vip and VipStats pin the per-VIP (packets, bytes) pair for the
	// most exercised virtual service of the dataset.
	Vip      xlb.VipKey
	VipStats xlb.Stats

	// Lru is (total packets, LRU misses); LruMiss splits the misses by
	// packet type (TCP SYNs, TCP non-SYNs).
	Lru     xlb.Stats
	LruMiss xlb.Stats
	// LruFallbackHits counts hits served from the fallback LRU.
	LruFallbackHits uint64
	// QuicRouting is (routed with CH, routed with connection-id).
	QuicRouting xlb.Stats

	Reals []RealExpectation

	// Optional counters, validated only when the kernel-specific feature
	// set is exercised.
	IcmpTooBig         xlb.Stats
	SrcRouting         xlb.Stats
	InlineDecapPackets uint64

	// PreMaps is asserted before the replay (freshly initialized
	// balancer), PostMaps after it. Both validate table lifecycle, not
	// packet rewriting.
	PreMaps  []MapExpectation
	PostMaps []MapExpectation
}
