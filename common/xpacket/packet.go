// Package xpacket contains gopacket serialization helpers shared by the
// fixture catalogue and the tests.
package xpacket

import (
	"fmt"

	"github.com/gopacket/gopacket"
)

// LayersToBytes serializes layers into raw packet bytes with lengths and
// checksums computed.
func LayersToBytes(lyrs ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}

	if err := gopacket.SerializeLayers(buf, opts, lyrs...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}

	return buf.Bytes(), nil
}

// MustLayersToBytes is LayersToBytes for statically known layer stacks,
// such as the built-in fixture datasets.
func MustLayersToBytes(lyrs ...gopacket.SerializableLayer) []byte {
	data, err := LayersToBytes(lyrs...)
	if err != nil {
		panic(err)
	}
	return data
}
