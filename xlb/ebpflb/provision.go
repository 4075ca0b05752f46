package ebpflb

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/xlb-platform/xlbtest/xlb"
)

// Map names written during provisioning.
const (
	chRingsMapName  = "ch_rings"
	hcRealsMapName  = "hc_reals_map"
	lpmSrcV4MapName = "lpm_src_v4"
	lpmSrcV6MapName = "lpm_src_v6"
	decapDstMapName = "decap_dst"
)

// chRingSize is the number of hash ring slots per service. Ring slots are
// filled round-robin over the service's pool; fixture goldens were
// captured against exactly this layout.
const chRingSize = 65537

// AddReal installs addr at index of the reals table.
func (m *LB) AddReal(index uint32, addr string) error {
	parsed, err := netip.ParseAddr(addr)
	if err != nil {
		m.addrFailures.Add(1)
		return fmt.Errorf("invalid real address %q: %w", addr, err)
	}
	real := realDefinition{Addr: addrBytes(parsed)}

	mp, err := m.mapByName(realsMapName)
	if err != nil {
		return err
	}
	if err := mp.Put(&index, &real); err != nil {
		m.failedCalls.Add(1)
		return fmt.Errorf("failed to install real %s at index %d: %w", addr, index, err)
	}
	return nil
}

// AddService installs the vip_map entry for vip under number num and
// fills the service's hash ring slots from the pool of real indexes.
func (m *LB) AddService(vip xlb.VipKey, num uint32, pool []uint32) error {
	addr, err := netip.ParseAddr(vip.Address)
	if err != nil {
		m.addrFailures.Add(1)
		return fmt.Errorf("invalid vip address %q: %w", vip.Address, err)
	}
	if len(pool) == 0 {
		return fmt.Errorf("vip %s:%d/%d has no reals", vip.Address, vip.Port, vip.Proto)
	}

	key := vipDefinition{
		Addr:  addrBytes(addr),
		Proto: vip.Proto,
	}
	binary.BigEndian.PutUint16(key.Port[:], vip.Port)

	vm, err := m.mapByName(vipMapName)
	if err != nil {
		return err
	}
	meta := vipMeta{VipNum: num}
	if err := vm.Put(&key, &meta); err != nil {
		m.failedCalls.Add(1)
		return fmt.Errorf("failed to install vip %s:%d/%d: %w",
			vip.Address, vip.Port, vip.Proto, err)
	}

	ring, err := m.mapByName(chRingsMapName)
	if err != nil {
		return err
	}
	for i := uint32(0); i < chRingSize; i++ {
		slot := num*chRingSize + i
		real := pool[int(i)%len(pool)]
		if err := ring.Put(&slot, &real); err != nil {
			m.failedCalls.Add(1)
			return fmt.Errorf("failed to fill ring slot %d of vip %s: %w",
				slot, vip.Address, err)
		}
	}

	m.log.Debugf("installed vip %s:%d/%d as service %d with %d reals",
		vip.Address, vip.Port, vip.Proto, num, len(pool))
	return nil
}

// AddHealthCheckReal maps a health-check socket mark to the probed real.
func (m *LB) AddHealthCheckReal(somark uint32, addr string) error {
	parsed, err := netip.ParseAddr(addr)
	if err != nil {
		m.addrFailures.Add(1)
		return fmt.Errorf("invalid health-check real address %q: %w", addr, err)
	}
	real := realDefinition{Addr: addrBytes(parsed)}

	mp, err := m.mapByName(hcRealsMapName)
	if err != nil {
		return err
	}
	if err := mp.Put(&somark, &real); err != nil {
		m.failedCalls.Add(1)
		return fmt.Errorf("failed to install health-check real %s: %w", addr, err)
	}
	return nil
}

// lpmKey mirrors the kernel's LPM trie key layout: a native-endian prefix
// length followed by the address bytes.
func lpmKey(prefix netip.Prefix) []byte {
	addr := prefix.Addr().AsSlice()
	key := make([]byte, 4+len(addr))
	binary.NativeEndian.PutUint32(key, uint32(prefix.Bits()))
	copy(key[4:], addr)
	return key
}

// AddSourceRoute installs an LPM rule sending traffic sourced from prefix
// to the real at index real.
func (m *LB) AddSourceRoute(prefix netip.Prefix, real uint32) error {
	name := lpmSrcV6MapName
	if prefix.Addr().Is4() {
		name = lpmSrcV4MapName
	}
	mp, err := m.mapByName(name)
	if err != nil {
		return err
	}

	key := lpmKey(prefix)
	if err := mp.Put(key, &real); err != nil {
		m.failedCalls.Add(1)
		return fmt.Errorf("failed to install source route %s: %w", prefix, err)
	}
	return nil
}

// AddInlineDecapDst marks addr for inline decapsulation.
func (m *LB) AddInlineDecapDst(addr string) error {
	parsed, err := netip.ParseAddr(addr)
	if err != nil {
		m.addrFailures.Add(1)
		return fmt.Errorf("invalid decap address %q: %w", addr, err)
	}
	key := addrBytes(parsed)
	var flags uint32

	mp, err := m.mapByName(decapDstMapName)
	if err != nil {
		return err
	}
	if err := mp.Put(&key, &flags); err != nil {
		m.failedCalls.Add(1)
		return fmt.Errorf("failed to install decap destination %s: %w", addr, err)
	}
	return nil
}
