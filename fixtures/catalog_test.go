package fixtures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xlb-platform/xlbtest/xlb"
)

func TestCatalog_MatchesReplayExpectations(t *testing.T) {
	exp := forwardedState()

	// vip_map occupancy after provisioning equals the service count.
	var post *uint32
	for i := range exp.PostMaps {
		if exp.PostMaps[i].Name == "vip_map" {
			post = &exp.PostMaps[i].Current
		}
	}
	require.NotNil(t, post)
	assert.EqualValues(t, len(Services()), *post)

	// Every real with counter expectations is in the table catalog.
	table := map[string]bool{}
	for _, real := range Reals() {
		table[real.Addr.String()] = true
	}
	for _, real := range exp.Reals {
		assert.True(t, table[real.Addr], "real %s has expectations but no table entry", real.Addr)
	}
}

func TestCatalog_CoversFixtureVips(t *testing.T) {
	provisioned := map[xlb.VipKey]bool{}
	for _, svc := range Services() {
		provisioned[svc.Vip] = true
	}

	for _, want := range []xlb.VipKey{
		{Address: VipV4Tcp.String(), Port: VipPort, Proto: ProtoTCP},
		{Address: VipV4Udp.String(), Port: VipPort, Proto: ProtoUDP},
		{Address: VipV4OverV6.String(), Port: VipPort, Proto: ProtoTCP},
		{Address: VipV6.String(), Port: VipPort, Proto: ProtoTCP},
		{Address: VipV6.String(), Port: VipPort, Proto: ProtoUDP},
		{Address: VipV4Quic.String(), Port: QuicPort, Proto: ProtoUDP},
	} {
		assert.True(t, provisioned[want], "fixture vip %v is not provisioned", want)
	}
}

func TestCatalog_PoolFamilies(t *testing.T) {
	for _, svc := range Services() {
		require.NotEmpty(t, svc.Reals, "service %v has an empty pool", svc.Vip)
	}

	// The v4-over-v6 service tunnels to v6 reals.
	for _, svc := range Services() {
		if svc.Vip.Address != VipV4OverV6.String() {
			continue
		}
		for _, real := range svc.Reals {
			assert.True(t, real.Is6(), "v4-over-v6 pool must hold v6 reals, got %s", real)
		}
	}
}

func TestCatalog_RealIndexesUnique(t *testing.T) {
	seen := map[uint32]bool{}
	for _, real := range Reals() {
		assert.False(t, seen[real.Index], "index %d assigned twice", real.Index)
		seen[real.Index] = true
	}
}

func TestCatalog_HealthCheckReals(t *testing.T) {
	reals := HealthCheckReals()
	assert.EqualValues(t, len(reals), HealthCheckMapsPost[0].Current)

	// Health-check fixtures and the somark table target the same reals.
	ds, err := HealthCheck()
	require.NoError(t, err)
	require.Len(t, ds.Fixtures, len(reals))
}

func TestCatalog_OptionalProvisioning(t *testing.T) {
	assert.True(t, LpmLocalPrefix.Contains(LpmClientLocal))
	assert.True(t, LpmRemotePrefix.Contains(LpmClientRemote))

	table := map[string]bool{}
	for _, real := range Reals() {
		table[real.Addr.String()] = true
	}
	for _, route := range SourceRoutes() {
		assert.True(t, table[route.Real.String()],
			"source route %s points at an unprovisioned real", route.Prefix)
	}

	assert.Contains(t, InlineDecapDsts(), InlineDecapDst)
}
