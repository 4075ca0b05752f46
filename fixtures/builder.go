package fixtures

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/xlb-platform/xlbtest/common/xpacket"
)

// payload carried by every generated fixture packet.
var testPayload = []byte("xlbtest conformance payload 123456")

func ipLayer(src, dst netip.Addr, proto layers.IPProtocol) gopacket.NetworkLayer {
	if src.Is4() != dst.Is4() {
		panic(fmt.Sprintf("IP version mismatch: src=%v dst=%v", src, dst))
	}

	if src.Is4() {
		return &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: proto,
			SrcIP:    net.IP(src.AsSlice()),
			DstIP:    net.IP(dst.AsSlice()),
		}
	}
	return &layers.IPv6{
		Version:    6,
		HopLimit:   64,
		NextHeader: proto,
		SrcIP:      net.IP(src.AsSlice()),
		DstIP:      net.IP(dst.AsSlice()),
	}
}

// innerTCP builds the bare IP packet (no ethernet header) of a TCP flow.
// The result doubles as the encapsulation payload of the expected output.
func innerTCP(src, dst netip.Addr, srcPort, dstPort uint16, tcp *layers.TCP) []byte {
	return innerTCPPayload(src, dst, srcPort, dstPort, tcp, testPayload)
}

func innerTCPPayload(src, dst netip.Addr, srcPort, dstPort uint16, tcp *layers.TCP, payload []byte) []byte {
	ip := ipLayer(src, dst, layers.IPProtocolTCP)

	tcp.SrcPort = layers.TCPPort(srcPort)
	tcp.DstPort = layers.TCPPort(dstPort)
	tcp.Window = 8192
	tcp.SetNetworkLayerForChecksum(ip)

	return xpacket.MustLayersToBytes(
		ip.(gopacket.SerializableLayer),
		tcp,
		gopacket.Payload(payload),
	)
}

// innerUDP builds the bare IP packet of a UDP flow.
func innerUDP(src, dst netip.Addr, srcPort, dstPort uint16) []byte {
	ip := ipLayer(src, dst, layers.IPProtocolUDP)

	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	udp.SetNetworkLayerForChecksum(ip)

	return xpacket.MustLayersToBytes(
		ip.(gopacket.SerializableLayer),
		udp,
		gopacket.Payload(testPayload),
	)
}

// innerICMPEcho builds a v4 ICMP echo request addressed to a VIP.
func innerICMPEcho(src, dst netip.Addr) []byte {
	ip := ipLayer(src, dst, layers.IPProtocolICMPv4)

	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0),
		Id:       1,
		Seq:      1,
	}

	return xpacket.MustLayersToBytes(
		ip.(gopacket.SerializableLayer),
		icmp,
		gopacket.Payload(testPayload),
	)
}

func etherType(inner []byte) layers.EthernetType {
	if inner[0]>>4 == 6 {
		return layers.EthernetTypeIPv6
	}
	return layers.EthernetTypeIPv4
}

// frame wraps a bare IP packet into the ethernet frame the balancer
// receives on the wire.
func frame(inner []byte) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       ClientMAC,
		DstMAC:       LocalMAC,
		EthernetType: etherType(inner),
	}
	return xpacket.MustLayersToBytes(eth, gopacket.Payload(inner))
}

// encapIPIP builds the expected output frame for IPIP mode: the inner IP
// packet tunneled to the real, outer checksums pre-baked so the comparator
// can stay byte-exact.
func encapIPIP(real netip.Addr, inner []byte) []byte {
	innerProto := layers.IPProtocolIPv4
	if etherType(inner) == layers.EthernetTypeIPv6 {
		innerProto = layers.IPProtocolIPv6
	}

	src := BalancerSrcV4
	if real.Is6() {
		src = BalancerSrcV6
	}
	outer := ipLayer(src, real, innerProto)

	ethType := layers.EthernetTypeIPv4
	if real.Is6() {
		ethType = layers.EthernetTypeIPv6
	}
	eth := &layers.Ethernet{
		SrcMAC:       LocalMAC,
		DstMAC:       GatewayMAC,
		EthernetType: ethType,
	}

	return xpacket.MustLayersToBytes(
		eth,
		outer.(gopacket.SerializableLayer),
		gopacket.Payload(inner),
	)
}

// encapGUE builds the expected output frame for GUE mode: the inner IP
// packet carried in UDP towards port 6080 of the real.
func encapGUE(real netip.Addr, inner []byte) []byte {
	src := BalancerSrcV4
	if real.Is6() {
		src = BalancerSrcV6
	}
	outer := ipLayer(src, real, layers.IPProtocolUDP)

	udp := &layers.UDP{
		SrcPort: GueSrcPort,
		DstPort: GuePort,
	}
	udp.SetNetworkLayerForChecksum(outer)

	ethType := layers.EthernetTypeIPv4
	if real.Is6() {
		ethType = layers.EthernetTypeIPv6
	}
	eth := &layers.Ethernet{
		SrcMAC:       LocalMAC,
		DstMAC:       GatewayMAC,
		EthernetType: ethType,
	}

	return xpacket.MustLayersToBytes(
		eth,
		outer.(gopacket.SerializableLayer),
		udp,
		gopacket.Payload(inner),
	)
}
