package fixtures

import (
	"net/netip"

	"github.com/xlb-platform/xlbtest/xlb"
)

// Service is one provisioned virtual service and its backend pool.
type Service struct {
	Vip   xlb.VipKey
	Reals []netip.Addr
}

// RealEntry pins a real address to its table index.
type RealEntry struct {
	Index uint32
	Addr  netip.Addr
}

// SourceRoute is one LPM source-routing rule.
type SourceRoute struct {
	Prefix netip.Prefix
	Real   netip.Addr
}

// Source routing prefixes of the provisioned balancer: a directly
// attached subnet and a wider route from the global table. LpmClientLocal
// and LpmClientRemote fall into them.
var (
	LpmLocalPrefix  = netip.MustParsePrefix("192.168.100.0/24")
	LpmRemotePrefix = netip.MustParsePrefix("10.99.0.0/16")
)

func v4Pool() []netip.Addr {
	return []netip.Addr{RealV4First, RealV4Second, RealV4Third}
}

func v6Pool() []netip.Addr {
	return []netip.Addr{RealV6First, RealV6Second, RealV6Third}
}

// Reals returns the reals table assignment installed before a replay.
func Reals() []RealEntry {
	var out []RealEntry
	for i, addr := range append(v4Pool(), v6Pool()...) {
		out = append(out, RealEntry{Index: uint32(i), Addr: addr})
	}
	return out
}

// Services returns the provisioned virtual services in vip number order.
// The map occupancy expectations (vip_map growing to exactly this many
// entries) are tied to this catalog.
func Services() []Service {
	vip := func(addr netip.Addr, port uint16, proto uint8) xlb.VipKey {
		return xlb.VipKey{Address: addr.String(), Port: port, Proto: proto}
	}
	return []Service{
		{Vip: vip(VipV4Tcp, VipPort, ProtoTCP), Reals: v4Pool()},
		{Vip: vip(VipV4Udp, VipPort, ProtoUDP), Reals: v4Pool()},
		{Vip: vip(VipV4OverV6, VipPort, ProtoTCP), Reals: v6Pool()},
		{Vip: vip(VipV6, VipPort, ProtoTCP), Reals: v6Pool()},
		{Vip: vip(VipV6, VipPort, ProtoUDP), Reals: v6Pool()},
		{Vip: vip(VipV4Quic, QuicPort, ProtoUDP), Reals: v4Pool()},
		{Vip: vip(VipV4Tcp, QuicPort, ProtoTCP), Reals: v4Pool()},
		{Vip: vip(VipV4Udp, QuicPort, ProtoUDP), Reals: v4Pool()},
	}
}

// HealthCheckReals returns the socket-mark to real assignment of the
// health checker, matching the health-check dataset.
func HealthCheckReals() []RealEntry {
	return []RealEntry{
		{Index: 1, Addr: RealV4First},
		{Index: 2, Addr: RealV4Second},
		{Index: 3, Addr: RealV6Second},
	}
}

// SourceRoutes returns the LPM rules of the optional feature set.
func SourceRoutes() []SourceRoute {
	return []SourceRoute{
		{Prefix: LpmLocalPrefix, Real: RealV4Third},
		{Prefix: LpmRemotePrefix, Real: RealV4First},
	}
}

// InlineDecapDsts returns the addresses whose incoming tunnels the
// balancer decapsulates inline.
func InlineDecapDsts() []netip.Addr {
	return []netip.Addr{InlineDecapDst}
}
