package fixtures

import (
	"net/netip"

	"github.com/gopacket/gopacket/layers"

	"github.com/xlb-platform/xlbtest/tester"
)

// HealthCheck is the dataset for the TC health-check program: probe
// packets generated by the local health checker, expected to come out
// tunneled to the probed real and redirected to the tunnel interface.
func HealthCheck() (*tester.Dataset, error) {
	probe := func(name string, real netip.Addr) tester.Fixture {
		src := BalancerSrcV4
		if real.Is6() {
			src = BalancerSrcV6
		}
		inner := innerTCP(src, real, 31337, VipPort, &layers.TCP{SYN: true, Seq: 1})
		return tester.Fixture{
			Name:    name,
			Input:   frame(inner),
			Output:  encapIPIP(real, inner),
			Verdict: tester.VerdictTcRedirect,
		}
	}

	fs := []tester.Fixture{
		probe("health check probe to first v4 real", RealV4First),
		probe("health check probe to second v4 real", RealV4Second),
		probe("health check probe to v6 real", RealV6Second),
	}

	return tester.NewDataset("health-check-context", fs, nil)
}
