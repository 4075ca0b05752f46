package fixtures

import (
	"github.com/xlb-platform/xlbtest/tester"
	"github.com/xlb-platform/xlbtest/xlb"
)

// IP protocol numbers used in VIP and flow keys.
const (
	ProtoTCP = 6
	ProtoUDP = 17
)

func statsOf(v1, v2 uint64) xlb.Stats {
	return xlb.Stats{V1: v1, V2: v2}
}

func xlbVipV4Tcp() xlb.VipKey {
	return xlb.VipKey{
		Address: VipV4Tcp.String(),
		Port:    VipPort,
		Proto:   ProtoTCP,
	}
}

// HealthCheckMapsPre and HealthCheckMapsPost are the occupancy checks for
// the health-check reals table, applicable only when the health-check
// program is loaded.
var (
	HealthCheckMapsPre = []tester.MapExpectation{
		{Name: "hc_reals_map", Current: 0, Max: MaxHcReals},
	}
	HealthCheckMapsPost = []tester.MapExpectation{
		{Name: "hc_reals_map", Current: 3, Max: MaxHcReals},
	}
)
