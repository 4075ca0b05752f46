package ebpflb

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/cilium/ebpf"

	"github.com/xlb-platform/xlbtest/xlb"
)

// The stats map is a per-CPU array: the first maxVips slots hold per-VIP
// counters indexed by vip number, followed by the fixed global slots.
const (
	maxVips = 512

	lruCntrOffset     = 0
	lruMissOffset     = 1
	lruFallbackOffset = 3
	icmpTooBigOffset  = 4
	lpmSrcOffset      = 5
	inlineDecapOffset = 6
	quicRoutingOffset = 7
)

// realsStatsMapName holds per-real counters indexed by real number.
const realsStatsMapName = "reals_stats"

// lbStats mirrors the counter value layout of the balancer object.
type lbStats struct {
	V1 uint64
	V2 uint64
}

// vipDefinition mirrors the vip_map key layout: a v4 address occupies the
// first four bytes, the port is in network byte order.
type vipDefinition struct {
	Addr  [16]byte
	Port  [2]byte
	Proto uint8
	_     uint8
}

// vipMeta mirrors the vip_map value layout.
type vipMeta struct {
	VipNum uint32
	Flags  uint32
}

// realDefinition mirrors the reals table entry layout.
type realDefinition struct {
	Addr  [16]byte
	Flags uint8
	_     [3]byte
}

func addrBytes(addr netip.Addr) [16]byte {
	var out [16]byte
	copy(out[:], addr.AsSlice())
	return out
}

// readPerCPU sums a per-CPU counter pair across all CPUs.
func (m *LB) readPerCPU(mapName string, index uint32) (xlb.Stats, error) {
	mp, err := m.mapByName(mapName)
	if err != nil {
		return xlb.Stats{}, err
	}

	var perCPU []lbStats
	if err := mp.Lookup(&index, &perCPU); err != nil {
		m.failedCalls.Add(1)
		return xlb.Stats{}, fmt.Errorf("failed to read %s[%d]: %w", mapName, index, err)
	}

	var total xlb.Stats
	for _, cpu := range perCPU {
		total.V1 += cpu.V1
		total.V2 += cpu.V2
	}
	return total, nil
}

func (m *LB) globalSlot(offset uint32) (xlb.Stats, error) {
	return m.readPerCPU(statsMapName, maxVips+offset)
}

// VipStats resolves the vip to its number through vip_map and reads its
// counter slot.
func (m *LB) VipStats(vip xlb.VipKey) (xlb.Stats, error) {
	addr, err := netip.ParseAddr(vip.Address)
	if err != nil {
		m.addrFailures.Add(1)
		return xlb.Stats{}, fmt.Errorf("invalid vip address %q: %w", vip.Address, err)
	}

	key := vipDefinition{
		Addr:  addrBytes(addr),
		Proto: vip.Proto,
	}
	binary.BigEndian.PutUint16(key.Port[:], vip.Port)

	vm, err := m.mapByName(vipMapName)
	if err != nil {
		return xlb.Stats{}, err
	}
	var meta vipMeta
	if err := vm.Lookup(&key, &meta); err != nil {
		m.failedCalls.Add(1)
		return xlb.Stats{}, fmt.Errorf("vip %s:%d/%d is not configured: %w",
			vip.Address, vip.Port, vip.Proto, err)
	}

	return m.readPerCPU(statsMapName, meta.VipNum)
}

func (m *LB) LruStats() (xlb.Stats, error) {
	return m.globalSlot(lruCntrOffset)
}

func (m *LB) LruMissStats() (xlb.Stats, error) {
	return m.globalSlot(lruMissOffset)
}

func (m *LB) LruFallbackStats() (xlb.Stats, error) {
	return m.globalSlot(lruFallbackOffset)
}

func (m *LB) QuicRoutingStats() (xlb.Stats, error) {
	return m.globalSlot(quicRoutingOffset)
}

func (m *LB) IcmpTooBigStats() (xlb.Stats, error) {
	return m.globalSlot(icmpTooBigOffset)
}

func (m *LB) SrcRoutingStats() (xlb.Stats, error) {
	return m.globalSlot(lpmSrcOffset)
}

func (m *LB) InlineDecapStats() (xlb.Stats, error) {
	return m.globalSlot(inlineDecapOffset)
}

// RealIndex scans the reals table for the entry holding addr.
func (m *LB) RealIndex(addr string) (int, bool) {
	parsed, err := netip.ParseAddr(addr)
	if err != nil {
		m.addrFailures.Add(1)
		return 0, false
	}
	want := addrBytes(parsed)

	mp, err := m.mapByName(realsMapName)
	if err != nil {
		return 0, false
	}

	var (
		index uint32
		real  realDefinition
	)
	iter := mp.Iterate()
	for iter.Next(&index, &real) {
		if real.Addr == want {
			return int(index), true
		}
	}
	if err := iter.Err(); err != nil {
		m.failedCalls.Add(1)
	}
	return 0, false
}

func (m *LB) RealStats(index int) (xlb.Stats, error) {
	return m.readPerCPU(realsStatsMapName, uint32(index))
}

func (m *LB) GlobalStats() (xlb.LbStats, error) {
	return xlb.LbStats{
		BpfFailedCalls:       m.failedCalls.Load(),
		AddrValidationFailed: m.addrFailures.Load(),
	}, nil
}

// MapStats reports the occupancy of a named table. Hash tables are counted
// by key iteration; array tables always have every slot allocated.
func (m *LB) MapStats(name string) (xlb.MapStats, error) {
	mp, err := m.mapByName(name)
	if err != nil {
		return xlb.MapStats{}, err
	}

	info, err := mp.Info()
	if err != nil {
		m.failedCalls.Add(1)
		return xlb.MapStats{}, fmt.Errorf("failed to query map %q: %w", name, err)
	}

	stats := xlb.MapStats{MaxEntries: info.MaxEntries}

	switch mp.Type() {
	case ebpf.Hash, ebpf.LRUHash, ebpf.LPMTrie:
		var (
			key   = make([]byte, int(info.KeySize))
			value = make([]byte, int(info.ValueSize))
			count uint32
		)
		iter := mp.Iterate()
		for iter.Next(&key, &value) {
			count++
		}
		if err := iter.Err(); err != nil {
			m.failedCalls.Add(1)
			return xlb.MapStats{}, fmt.Errorf("failed to iterate map %q: %w", name, err)
		}
		stats.CurrentEntries = count
	default:
		stats.CurrentEntries = info.MaxEntries
	}

	return stats, nil
}
