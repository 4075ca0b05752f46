package fixtures

import (
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/xlb-platform/xlbtest/common/xpacket"
	"github.com/xlb-platform/xlbtest/tester"
)

// encapFunc builds the expected output frame for a packet tunneled to a
// real. The two implementations are encapIPIP and encapGUE.
type encapFunc func(real netip.Addr, inner []byte) []byte

// forwardingFixtures is the shared scenario sequence of the baseline and
// GUE datasets; only the encapsulation of the goldens differs. Order is
// part of the scenario: the malformed packets come after the flows that
// seeded the session table.
func forwardingFixtures(encap encapFunc) []tester.Fixture {
	var fs []tester.Fixture

	forwarded := func(name string, real netip.Addr, inner []byte) {
		fs = append(fs, tester.Fixture{
			Name:    name,
			Input:   frame(inner),
			Output:  encap(real, inner),
			Verdict: tester.VerdictTx,
		})
	}
	passed := func(name string, inner []byte) {
		fs = append(fs, tester.Fixture{
			Name:    name,
			Input:   frame(inner),
			Output:  frame(inner),
			Verdict: tester.VerdictPass,
		})
	}
	dropped := func(name string, pckt []byte) {
		fs = append(fs, tester.Fixture{
			Name:    name,
			Input:   pckt,
			Output:  pckt,
			Verdict: tester.VerdictDrop,
		})
	}

	forwarded(
		"packet to tcp based v4 vip (and v4 real): syn",
		RealV4Second,
		innerTCP(ClientV4, VipV4Tcp, 31337, VipPort, &layers.TCP{SYN: true, Seq: 1}),
	)
	forwarded(
		"packet to tcp based v4 vip (and v4 real): known session",
		RealV4Second,
		innerTCP(ClientV4, VipV4Tcp, 31337, VipPort, &layers.TCP{ACK: true, Seq: 2, Ack: 1}),
	)
	passed(
		"packet to tcp based v4 vip: non default dst port",
		innerTCP(ClientV4, VipV4Tcp, 31337, 42, &layers.TCP{SYN: true, Seq: 1}),
	)
	forwarded(
		"packet to udp based v4 vip (and v4 real)",
		RealV4First,
		innerUDP(ClientV4, VipV4Udp, 31337, VipPort),
	)
	forwarded(
		"packet to tcp based v4 vip (and v6 real): no syn",
		RealV6Second,
		innerTCP(ClientV4, VipV4OverV6, 31337, VipPort, &layers.TCP{ACK: true, Seq: 1, Ack: 1}),
	)
	forwarded(
		"packet to tcp based v6 vip (and v6 real): syn",
		RealV6Third,
		innerTCP(ClientV6, VipV6, 31337, VipPort, &layers.TCP{SYN: true, Seq: 1}),
	)
	forwarded(
		"packet to udp based v6 vip (and v6 real)",
		RealV6First,
		innerUDP(ClientV6, VipV6, 31337, VipPort),
	)
	forwarded(
		"v4 icmp echo-request to vip",
		RealV4First,
		innerICMPEcho(ClientV4, VipV4Tcp),
	)
	forwarded(
		"quic long header packet to udp based v4 vip",
		RealV4Third,
		innerUDP(ClientV4, VipV4Quic, 31337, QuicPort),
	)
	passed(
		"packet to unknown vip",
		innerTCP(ClientV4, netip.MustParseAddr("10.200.1.99"), 31337, VipPort,
			&layers.TCP{SYN: true, Seq: 1}),
	)

	// Malformed traffic, deliberately after the well-formed flows.
	truncated := frame(innerTCP(ClientV4, VipV4Tcp, 31337, VipPort,
		&layers.TCP{SYN: true, Seq: 1}))[:44]
	dropped("malformed packet: truncated tcp header", truncated)

	fragment := xpacket.MustLayersToBytes(
		&layers.IPv4{
			Version:    4,
			IHL:        5,
			TTL:        64,
			Protocol:   layers.IPProtocolTCP,
			SrcIP:      ClientV4.AsSlice(),
			DstIP:      VipV4Tcp.AsSlice(),
			Flags:      layers.IPv4MoreFragments,
			FragOffset: 185,
		},
		gopacket.Payload(testPayload),
	)
	dropped("fragmented packet to v4 vip", frame(fragment))

	return fs
}

// forwardedState holds the literal counter and table expectations produced
// by exactly one replay of forwardingFixtures against a freshly
// provisioned balancer (8 virtual services, reals table fully pre-seeded).
func forwardedState() *tester.StateExpectations {
	return &tester.StateExpectations{
		Vip: xlbVipV4Tcp(),
		// Two frames of 88 bytes each reached the tcp v4 VIP.
		VipStats: statsOf(2, 176),
		// Seven packets went through the session table, six of them as
		// new flows.
		Lru:     statsOf(7, 6),
		LruMiss: statsOf(2, 1),
		// The fallback LRU is not exercised by this sequence.
		LruFallbackHits: 0,
		QuicRouting:     statsOf(1, 0),
		Reals: []tester.RealExpectation{
			{Addr: RealV4First.String(), Stats: statsOf(2, 152)},
			{Addr: RealV4Second.String(), Stats: statsOf(2, 176)},
			{Addr: RealV4Third.String(), Stats: statsOf(1, 76)},
			{Addr: RealV6First.String(), Stats: statsOf(1, 96)},
			{Addr: RealV6Second.String(), Stats: statsOf(1, 88)},
			{Addr: RealV6Third.String(), Stats: statsOf(1, 108)},
		},
		PreMaps: []tester.MapExpectation{
			{Name: "vip_map", Current: 0, Max: MaxVips},
			{Name: "reals", Current: MaxReals, Max: MaxReals},
		},
		PostMaps: []tester.MapExpectation{
			{Name: "vip_map", Current: 8, Max: MaxVips},
			{Name: "reals", Current: MaxReals, Max: MaxReals},
		},
	}
}

// Baseline is the IPIP encapsulation dataset.
func Baseline() (*tester.Dataset, error) {
	return tester.NewDataset("baseline", forwardingFixtures(encapIPIP), forwardedState())
}
