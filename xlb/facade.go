// Package xlb defines the query surface of the load balancer that the test
// harness consumes. The balancer itself (configuration, program loading,
// table management, health checking) lives behind this facade; the harness
// only reads counters, table sizes and flow resolutions through it.
package xlb

// Stats is a pair of related numeric values read from a balancer counter,
// e.g. (packets, bytes) for a VIP or (total, misses) for the LRU.
type Stats struct {
	V1 uint64
	V2 uint64
}

// LbStats reports internal failure counters of the balancer library.
type LbStats struct {
	// BpfFailedCalls is the number of failed bpf syscalls.
	BpfFailedCalls uint64
	// AddrValidationFailed is the number of rejected address inputs.
	AddrValidationFailed uint64
}

// MapStats is the occupancy of a named lookup table.
type MapStats struct {
	CurrentEntries uint32
	MaxEntries     uint32
}

// MonitorStats reports the state of the monitoring subsystem.
type MonitorStats struct {
	// Limit is the configured number of events the monitor may buffer.
	Limit uint64
	// Amount is the number of events buffered so far.
	Amount uint64
}

// VipKey identifies a virtual service.
type VipKey struct {
	Address string
	Port    uint16
	Proto   uint8
}

// FlowKey is a 5-tuple used for flow-to-real resolution queries.
type FlowKey struct {
	Src     string
	Dst     string
	SrcPort uint16
	DstPort uint16
	Proto   uint8
}

// Facade is the read/query interface of the load balancer. Reads are
// consistent with the most recently completed write; no stronger guarantee
// is assumed by the harness. Implementations must not require the caller to
// cache results: every call re-fetches state.
type Facade interface {
	// VipStats returns (packets, bytes) processed for a virtual service.
	VipStats(vip VipKey) (Stats, error)
	// LruStats returns (total packets, LRU misses).
	LruStats() (Stats, error)
	// LruMissStats returns LRU misses split by packet type
	// (TCP SYNs, TCP non-SYNs).
	LruMissStats() (Stats, error)
	// LruFallbackStats returns hits served from the fallback LRU in V1.
	LruFallbackStats() (Stats, error)
	// QuicRoutingStats returns QUIC packets routed (with CH, with
	// connection-id).
	QuicRoutingStats() (Stats, error)
	// IcmpTooBigStats returns generated ICMP packet-too-big responses
	// (v4, v6).
	IcmpTooBigStats() (Stats, error)
	// SrcRoutingStats returns packets routed by LPM source match
	// (local, remote).
	SrcRoutingStats() (Stats, error)
	// InlineDecapStats returns inline-decapsulated packets in V1.
	InlineDecapStats() (Stats, error)

	// RealIndex resolves a real's address to its table index.
	RealIndex(addr string) (int, bool)
	// RealStats returns (packets, bytes) forwarded to the real at index.
	RealStats(index int) (Stats, error)
	// GlobalStats returns internal failure counters.
	GlobalStats() (LbStats, error)
	// MapStats returns the occupancy of a named lookup table.
	MapStats(name string) (MapStats, error)

	// RealForFlow resolves a 5-tuple to the address of the real that
	// would serve it. An unknown VIP, a mixed address family or an
	// unparseable address yields an empty string, not an error.
	RealForFlow(flow FlowKey) (string, error)

	// StopMonitor stops the background monitoring subsystem and waits
	// for in-flight writes to drain.
	StopMonitor() error
	// MonitorBuffer returns the captured buffer for an event kind, or
	// nil if nothing was captured.
	MonitorBuffer(event uint32) ([]byte, error)
	// MonitorStats reports the monitor buffer limit and fill.
	MonitorStats() (MonitorStats, error)
}
