// Package fixtures is the static catalogue of conformance datasets for the
// balancer program: curated (input, expected output) packet pairs grouped
// into baseline, GUE, optional and health-check datasets, together with the
// literal counter and table expectations tied to one replay of each.
package fixtures

import (
	"net"
	"net/netip"
)

// Addresses and tables of the provisioned test balancer. Fixture goldens
// and state expectations are valid only against a balancer configured with
// exactly these values.
var (
	// VipV4Tcp is the v4 virtual service backed by v4 reals.
	VipV4Tcp = netip.MustParseAddr("10.200.1.1")
	// VipV4Udp is the v4 virtual service for UDP traffic.
	VipV4Udp = netip.MustParseAddr("10.200.1.2")
	// VipV4OverV6 is the v4 virtual service backed by v6 reals.
	VipV4OverV6 = netip.MustParseAddr("10.200.1.3")
	// VipV6 is the v6 virtual service.
	VipV6 = netip.MustParseAddr("fc00:1::1")

	ClientV4 = netip.MustParseAddr("172.16.0.1")
	ClientV6 = netip.MustParseAddr("fc00:2::1")

	RealV4First  = netip.MustParseAddr("10.0.0.1")
	RealV4Second = netip.MustParseAddr("10.0.0.2")
	RealV4Third  = netip.MustParseAddr("10.0.0.3")
	RealV6First  = netip.MustParseAddr("fc00::1")
	RealV6Second = netip.MustParseAddr("fc00::2")
	RealV6Third  = netip.MustParseAddr("fc00::3")

	// VipV4Quic is the QUIC virtual service.
	VipV4Quic = netip.MustParseAddr("10.200.1.4")

	// BalancerSrcV4 and BalancerSrcV6 are the outer encapsulation source
	// addresses of the balancer.
	BalancerSrcV4 = netip.MustParseAddr("10.0.13.37")
	BalancerSrcV6 = netip.MustParseAddr("fc00:2307::1337")

	// InlineDecapDst is the address whose incoming tunnels the balancer
	// decapsulates inline.
	InlineDecapDst = netip.MustParseAddr("10.200.1.233")

	// LpmClientLocal and LpmClientRemote fall into the provisioned
	// source-routing prefixes: a local subnet and the global table.
	LpmClientLocal  = netip.MustParseAddr("192.168.100.3")
	LpmClientRemote = netip.MustParseAddr("10.99.0.1")
)

var (
	// ClientMAC is the source of every generated input frame.
	ClientMAC = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	// LocalMAC is the balancer's own interface address.
	LocalMAC = net.HardwareAddr{0x00, 0xff, 0xde, 0xad, 0xbe, 0xaf}
	// GatewayMAC is the next hop encapsulated packets are sent to.
	GatewayMAC = net.HardwareAddr{0x00, 0x00, 0xde, 0xad, 0xbe, 0xaf}
)

const (
	// VipPort is the service port of every provisioned VIP.
	VipPort = 80

	// QuicPort is the service port of the QUIC VIP.
	QuicPort = 443

	// GuePort is the UDP destination port of GUE encapsulation.
	GuePort = 6080

	// GueSrcPort is the outer source port baked into the GUE goldens;
	// the program derives it from the inner flow hash, so it is stable
	// for a fixed input.
	GueSrcPort = 31337

	// MaxVips and MaxReals are the configured capacities of the vip_map
	// and reals tables.
	MaxVips  = 512
	MaxReals = 4096

	// MaxHcReals is the capacity of the health-check reals table.
	MaxHcReals = 4096
)
