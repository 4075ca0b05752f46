package ebpflb

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cilium/ebpf/perf"
	"go.uber.org/zap"

	"github.com/xlb-platform/xlbtest/xlb"
)

// perCPUBufferSize is the size of each per-CPU perf ring.
const perCPUBufferSize = 64 * 1024

// Event kinds submitted to the event pipe by the balancer.
const (
	EventTcpNonSynLruMiss uint32 = 0
	EventPacketTooBig     uint32 = 1
)

// eventHeader precedes every sample submitted to the event pipe.
type eventHeader struct {
	Event   uint32
	PktSize uint32
	DataLen uint32
}

var errMonitorDraining = errors.New("monitor reader has not drained yet")

// monitor consumes the balancer's perf event pipe in the background,
// collecting raw packet samples into one in-memory buffer per event kind.
type monitor struct {
	log    *zap.SugaredLogger
	reader *perf.Reader
	limit  uint64

	mu      sync.Mutex
	buffers map[uint32]*bytes.Buffer
	amount  uint64
	drained bool
}

func newMonitor(events *perf.Reader, limit uint64, log *zap.SugaredLogger) *monitor {
	m := &monitor{
		log:     log,
		reader:  events,
		limit:   limit,
		buffers: map[uint32]*bytes.Buffer{},
	}
	go m.run()
	return m
}

func (m *monitor) run() {
	for {
		record, err := m.reader.Read()
		if errors.Is(err, perf.ErrClosed) {
			m.mu.Lock()
			m.drained = true
			m.mu.Unlock()
			return
		}
		if err != nil {
			m.log.Warnf("failed to read monitor event: %v", err)
			continue
		}
		if record.LostSamples > 0 {
			m.log.Warnf("monitor lost %d samples", record.LostSamples)
		}
		if len(record.RawSample) == 0 {
			continue
		}
		m.consume(record.RawSample)
	}
}

func (m *monitor) consume(sample []byte) {
	var hdr eventHeader
	if err := binary.Read(bytes.NewReader(sample), binary.NativeEndian, &hdr); err != nil {
		m.log.Warnf("malformed monitor sample of %d bytes", len(sample))
		return
	}
	payload := sample[binary.Size(hdr):]
	if int(hdr.DataLen) < len(payload) {
		payload = payload[:hdr.DataLen]
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.amount+uint64(len(payload)) > m.limit {
		return
	}
	buf, ok := m.buffers[hdr.Event]
	if !ok {
		buf = &bytes.Buffer{}
		m.buffers[hdr.Event] = buf
	}
	buf.Write(payload)
	m.amount += uint64(len(payload))
}

// stop closes the event pipe and waits for the reader goroutine to drain
// any in-flight sample. The drain signal is explicit; the backoff poll
// only bounds the wait.
func (m *monitor) stop() error {
	if err := m.reader.Close(); err != nil {
		return fmt.Errorf("failed to close monitor reader: %w", err)
	}

	poll := backoff.ExponentialBackOff{
		InitialInterval:     10 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         200 * time.Millisecond,
	}
	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.drained {
			return struct{}{}, errMonitorDraining
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(&poll), backoff.WithMaxElapsedTime(5*time.Second))
	if err != nil {
		return fmt.Errorf("monitor did not drain: %w", err)
	}
	return nil
}

func (m *monitor) buffer(event uint32) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.buffers[event]
	if !ok {
		return nil
	}
	return bytes.Clone(buf.Bytes())
}

func (m *monitor) stats() (limit, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limit, m.amount
}

// StartMonitor begins capturing the balancer's event pipe.
func (m *LB) StartMonitor() error {
	if m.monitor != nil {
		return errors.New("monitor is already running")
	}
	pipe, err := m.mapByName(eventPipeMapName)
	if err != nil {
		return err
	}
	reader, err := perf.NewReader(pipe, perCPUBufferSize)
	if err != nil {
		m.failedCalls.Add(1)
		return fmt.Errorf("failed to open event pipe: %w", err)
	}
	m.monitor = newMonitor(reader, m.cfg.MonitorBufferSize.Bytes(), m.log)
	m.log.Infof("monitor started, buffer limit %s", m.cfg.MonitorBufferSize)
	return nil
}

// StopMonitor stops the monitor and waits for in-flight writes to drain.
func (m *LB) StopMonitor() error {
	if m.monitor == nil {
		return errors.New("monitor is not running")
	}
	return m.monitor.stop()
}

// MonitorBuffer returns the bytes captured for an event kind, nil when
// nothing was captured.
func (m *LB) MonitorBuffer(event uint32) ([]byte, error) {
	if m.monitor == nil {
		return nil, errors.New("monitor is not running")
	}
	return m.monitor.buffer(event), nil
}

// MonitorStats reports the monitor buffer limit and fill.
func (m *LB) MonitorStats() (xlb.MonitorStats, error) {
	if m.monitor == nil {
		return xlb.MonitorStats{}, errors.New("monitor is not running")
	}
	limit, amount := m.monitor.stats()
	return xlb.MonitorStats{Limit: limit, Amount: amount}, nil
}

// WriteMonitorBuffers persists every captured event buffer to
// <base>_event_<id>. A write failure is logged and does not abort other
// events.
func (m *LB) WriteMonitorBuffers(base string, events []uint32) {
	for _, event := range events {
		buf, err := m.MonitorBuffer(event)
		if err != nil {
			m.log.Warnf("failed to fetch monitor buffer for event %d: %v", event, err)
			continue
		}
		if buf == nil {
			m.log.Infof("no monitor data for event %d", event)
			continue
		}
		name := fmt.Sprintf("%s_event_%d", base, event)
		if err := os.WriteFile(name, buf, 0o644); err != nil {
			m.log.Errorf("failed to write monitor output %s: %v", name, err)
			continue
		}
		m.log.Infof("monitor event %d: wrote %d bytes to %s", event, len(buf), name)
	}
}
