package fixtures

import (
	"bytes"
	"encoding/binary"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/xlb-platform/xlbtest/common/xpacket"
	"github.com/xlb-platform/xlbtest/tester"
)

const (
	// tunnelMTUv4 and tunnelMTUv6 are advertised in packet-too-big
	// responses; packets that would not fit after encapsulation trigger
	// them.
	tunnelMTUv4 = 1500
	tunnelMTUv6 = 1280
)

// icmpTooBigV4 builds the ICMP fragmentation-needed response the balancer
// sends back for an oversized packet. orig is the offending bare IP
// packet; the reply quotes its header plus eight bytes.
func icmpTooBigV4(orig []byte) []byte {
	ip := ipLayer(VipV4Tcp, ClientV4, layers.IPProtocolICMPv4)

	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(
			layers.ICMPv4TypeDestinationUnreachable,
			layers.ICMPv4CodeFragmentationNeeded,
		),
		// The next-hop MTU occupies the sequence bytes for this code.
		Seq: tunnelMTUv4,
	}

	eth := &layers.Ethernet{
		SrcMAC:       LocalMAC,
		DstMAC:       ClientMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}

	return xpacket.MustLayersToBytes(
		eth,
		ip.(gopacket.SerializableLayer),
		icmp,
		gopacket.Payload(orig[:28]),
	)
}

// icmpTooBigV6 builds the ICMPv6 packet-too-big response. The reply quotes
// as much of the offending packet as fits in the minimal IPv6 MTU.
func icmpTooBigV6(orig []byte) []byte {
	ip := ipLayer(VipV6, ClientV6, layers.IPProtocolICMPv6).(*layers.IPv6)

	icmp := &layers.ICMPv6{
		TypeCode: layers.CreateICMPv6TypeCode(layers.ICMPv6TypePacketTooBig, 0),
	}
	icmp.SetNetworkLayerForChecksum(ip)

	// Four MTU bytes, then the quoted packet.
	var body bytes.Buffer
	binary.Write(&body, binary.BigEndian, uint32(tunnelMTUv6))
	quoted := orig
	if len(quoted) > 1232 {
		quoted = quoted[:1232]
	}
	body.Write(quoted)

	eth := &layers.Ethernet{
		SrcMAC:       LocalMAC,
		DstMAC:       ClientMAC,
		EthernetType: layers.EthernetTypeIPv6,
	}

	return xpacket.MustLayersToBytes(
		eth,
		ip,
		icmp,
		gopacket.Payload(body.Bytes()),
	)
}

// optionalFixtures exercises the kernel-specific feature set: ICMP
// too-big generation, LPM source routing and inline decapsulation.
func optionalFixtures(encap encapFunc) []tester.Fixture {
	var fs []tester.Fixture

	bigPayload := bytes.Repeat([]byte{0xA5}, 1600)

	bigV4 := innerTCPPayload(ClientV4, VipV4Tcp, 31337, VipPort,
		&layers.TCP{ACK: true, Seq: 1, Ack: 1}, bigPayload)
	fs = append(fs, tester.Fixture{
		Name:    "oversized packet to v4 vip: icmp fragmentation-needed response",
		Input:   frame(bigV4),
		Output:  icmpTooBigV4(bigV4),
		Verdict: tester.VerdictTx,
	})

	bigV6 := innerTCPPayload(ClientV6, VipV6, 31337, VipPort,
		&layers.TCP{ACK: true, Seq: 1, Ack: 1}, bigPayload)
	fs = append(fs, tester.Fixture{
		Name:    "oversized packet to v6 vip: icmpv6 packet-too-big response",
		Input:   frame(bigV6),
		Output:  icmpTooBigV6(bigV6),
		Verdict: tester.VerdictTx,
	})

	localSrc := innerTCP(LpmClientLocal, VipV4Tcp, 31337, VipPort,
		&layers.TCP{SYN: true, Seq: 1})
	fs = append(fs, tester.Fixture{
		Name:    "packet from lpm-matched local subnet: source routed",
		Input:   frame(localSrc),
		Output:  encap(RealV4Third, localSrc),
		Verdict: tester.VerdictTx,
	})

	remoteSrc := innerTCP(LpmClientRemote, VipV4Tcp, 31337, VipPort,
		&layers.TCP{SYN: true, Seq: 1})
	fs = append(fs, tester.Fixture{
		Name:    "packet from lpm-matched global table: source routed",
		Input:   frame(remoteSrc),
		Output:  encap(RealV4First, remoteSrc),
		Verdict: tester.VerdictTx,
	})

	// An IPIP tunnel addressed to the inline-decap address: the balancer
	// strips the outer header and passes the inner packet up unchanged.
	decapInner := innerTCP(netip.MustParseAddr("172.16.100.1"),
		netip.MustParseAddr("192.0.2.7"), 31337, VipPort,
		&layers.TCP{SYN: true, Seq: 1})
	decapOuter := xpacket.MustLayersToBytes(
		&layers.Ethernet{
			SrcMAC:       ClientMAC,
			DstMAC:       LocalMAC,
			EthernetType: layers.EthernetTypeIPv4,
		},
		ipLayer(netip.MustParseAddr("172.16.100.1"), InlineDecapDst,
			layers.IPProtocolIPv4).(gopacket.SerializableLayer),
		gopacket.Payload(decapInner),
	)
	fs = append(fs, tester.Fixture{
		Name:    "ipip packet to inline decap address: decapsulated",
		Input:   decapOuter,
		Output:  frame(decapInner),
		Verdict: tester.VerdictPass,
	})

	return fs
}

func optionalState() *tester.StateExpectations {
	return &tester.StateExpectations{
		IcmpTooBig:         statsOf(1, 1),
		SrcRouting:         statsOf(1, 1),
		InlineDecapPackets: 1,
	}
}

// Optional is the kernel-specific dataset with IPIP goldens.
func Optional() (*tester.Dataset, error) {
	return tester.NewDataset("optional", optionalFixtures(encapIPIP), optionalState())
}

// GUEOptional is the kernel-specific dataset with GUE goldens.
func GUEOptional() (*tester.Dataset, error) {
	return tester.NewDataset("gue-optional", optionalFixtures(encapGUE), optionalState())
}
