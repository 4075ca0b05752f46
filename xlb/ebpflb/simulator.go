package ebpflb

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/xlb-platform/xlbtest/common/xpacket"
	"github.com/xlb-platform/xlbtest/tester"
	"github.com/xlb-platform/xlbtest/xlb"
)

// RealForFlow resolves a 5-tuple to the real that would serve it by
// synthesizing a packet for the flow and running the balancer program
// against it: the destination of the resulting outer encapsulation is the
// chosen real. Unknown VIPs, mixed address families and unparseable
// addresses yield an empty string, not an error.
func (m *LB) RealForFlow(flow xlb.FlowKey) (string, error) {
	src, err := netip.ParseAddr(flow.Src)
	if err != nil {
		m.addrFailures.Add(1)
		return "", nil
	}
	dst, err := netip.ParseAddr(flow.Dst)
	if err != nil {
		m.addrFailures.Add(1)
		return "", nil
	}
	if src.Is4() != dst.Is4() {
		m.addrFailures.Add(1)
		return "", nil
	}

	data, err := flowPacket(src, dst, flow)
	if err != nil {
		return "", fmt.Errorf("failed to build packet for flow: %w", err)
	}

	runner, err := tester.NewProgRunner(m.prog)
	if err != nil {
		return "", err
	}
	res, err := runner.Invoke(data)
	if err != nil {
		m.failedCalls.Add(1)
		return "", fmt.Errorf("failed to run program for flow: %w", err)
	}
	if res.Verdict != tester.VerdictTx {
		// Not forwarded: no real serves this flow.
		return "", nil
	}

	return outerDst(res.Output), nil
}

// flowPacket builds a minimal frame for the flow's 5-tuple.
func flowPacket(src, dst netip.Addr, flow xlb.FlowKey) ([]byte, error) {
	proto := layers.IPProtocol(flow.Proto)

	var (
		ip      gopacket.SerializableLayer
		network gopacket.NetworkLayer
		ethType = layers.EthernetTypeIPv4
	)
	if src.Is4() {
		v4 := &layers.IPv4{
			Version:  4,
			IHL:      5,
			TTL:      64,
			Protocol: proto,
			SrcIP:    net.IP(src.AsSlice()),
			DstIP:    net.IP(dst.AsSlice()),
		}
		ip, network = v4, v4
	} else {
		ethType = layers.EthernetTypeIPv6
		v6 := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: proto,
			SrcIP:      net.IP(src.AsSlice()),
			DstIP:      net.IP(dst.AsSlice()),
		}
		ip, network = v6, v6
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x00, 0xff, 0xde, 0xad, 0xbe, 0xaf},
		EthernetType: ethType,
	}

	var transport gopacket.SerializableLayer
	switch proto {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(flow.SrcPort),
			DstPort: layers.TCPPort(flow.DstPort),
			SYN:     true,
			Window:  8192,
		}
		tcp.SetNetworkLayerForChecksum(network)
		transport = tcp
	case layers.IPProtocolUDP:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(flow.SrcPort),
			DstPort: layers.UDPPort(flow.DstPort),
		}
		udp.SetNetworkLayerForChecksum(network)
		transport = udp
	default:
		return nil, fmt.Errorf("unsupported flow protocol %d", flow.Proto)
	}

	return xpacket.LayersToBytes(eth, ip, transport)
}

// outerDst extracts the destination address of the outermost IP header.
// The frame may carry an encapsulated inner IP packet of either family,
// so only the first network layer in decode order counts.
func outerDst(data []byte) string {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)

	for _, layer := range pkt.Layers() {
		switch ip := layer.(type) {
		case *layers.IPv4:
			return ip.DstIP.String()
		case *layers.IPv6:
			return ip.DstIP.String()
		}
	}
	return ""
}
