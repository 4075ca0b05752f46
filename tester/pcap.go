package tester

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
)

// pcapSnaplen is the snapshot length written into output capture headers.
const pcapSnaplen = 65536

// ReplayCapture decodes the capture at inPath, runs every contained packet
// through the runner in order and writes the resulting packets to outPath,
// preserving order and per-packet count. No expected-output comparison is
// performed: this mode exists for manual inspection of real captured
// traffic.
func (m *Tester) ReplayCapture(inPath, outPath string, r Runner) error {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("failed to open input capture: %w", err)
	}
	defer in.Close()

	reader, err := pcapgo.NewReader(in)
	if err != nil {
		return fmt.Errorf("failed to read capture header: %w", err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output capture: %w", err)
	}
	defer out.Close()

	writer := pcapgo.NewWriter(out)
	if err := writer.WriteFileHeader(pcapSnaplen, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write capture header: %w", err)
	}

	count := 0
	for {
		data, _, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read packet %d: %w", count, err)
		}

		res, err := r.Invoke(data)
		if err != nil {
			return fmt.Errorf("failed to invoke program for packet %d: %w", count, err)
		}
		m.log.Infof("packet %d: verdict %s, %d -> %d bytes",
			count, res.Verdict, len(data), len(res.Output))

		ci := gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: len(res.Output),
			Length:        len(res.Output),
		}
		if err := writer.WritePacket(ci, res.Output); err != nil {
			return fmt.Errorf("failed to write packet %d: %w", count, err)
		}
		count++
	}

	m.log.Infof("replayed %d packets from %s to %s", count, inPath, outPath)
	return nil
}

// DumpBase64 decodes the capture at inPath and prints every packet as one
// base64 line on the dump writer, without invoking the program. Useful for
// turning captured traffic into fixture literals.
func (m *Tester) DumpBase64(inPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("failed to open input capture: %w", err)
	}
	defer in.Close()

	reader, err := pcapgo.NewReader(in)
	if err != nil {
		return fmt.Errorf("failed to read capture header: %w", err)
	}

	count := 0
	for {
		data, _, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read packet %d: %w", count, err)
		}
		fmt.Fprintln(m.out, base64.StdEncoding.EncodeToString(data))
		count++
	}
	m.log.Infof("dumped %d packets from %s", count, inPath)
	return nil
}
