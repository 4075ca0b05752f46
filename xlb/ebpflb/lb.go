// Package ebpflb implements the xlb.Facade over a loaded BPF balancer
// object: counters are read from the program's per-CPU stats map, table
// occupancy from map introspection, flow resolution by running the program
// against a synthesized packet, and monitoring from the perf event pipe.
package ebpflb

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/c2h5oh/datasize"
	"github.com/cilium/ebpf"
	"go.uber.org/zap"

	"github.com/xlb-platform/xlbtest/xlb"
)

var _ xlb.Facade = (*LB)(nil)

// Well-known object names inside the balancer BPF object.
const (
	statsMapName     = "stats"
	vipMapName       = "vip_map"
	realsMapName     = "reals"
	eventPipeMapName = "event_pipe"
)

// Config describes where the balancer programs come from and how the
// monitor buffers its capture.
type Config struct {
	// BalancerProg is the path to the balancer BPF object file.
	BalancerProg string `yaml:"balancer_prog"`
	// HealthCheckProg is the path to the health-check BPF object file;
	// empty disables health-check testing.
	HealthCheckProg string `yaml:"healthchecking_prog"`
	// MonitorBufferSize bounds the in-memory monitor buffer per event.
	MonitorBufferSize datasize.ByteSize `yaml:"monitor_buffer_size"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BalancerProg:      "./balancer_kern.o",
		MonitorBufferSize: datasize.MB,
	}
}

type options struct {
	Log *zap.SugaredLogger
}

func newOptions() *options {
	return &options{
		Log: zap.NewNop().Sugar(),
	}
}

// Option is a function that configures the balancer facade.
type Option func(*options)

// WithLog sets the logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.Log = log
	}
}

// LB is the loaded balancer. It implements xlb.Facade.
type LB struct {
	cfg  *Config
	log  *zap.SugaredLogger
	coll *ebpf.Collection
	hc   *ebpf.Collection

	prog   *ebpf.Program
	hcProg *ebpf.Program

	monitor *monitor

	// failedCalls counts failed bpf syscalls issued through this facade,
	// addrFailures counts rejected address inputs. Both feed
	// GlobalStats.
	failedCalls  atomic.Uint64
	addrFailures atomic.Uint64
}

// Load loads the balancer (and optionally health-check) BPF objects.
func Load(cfg *Config, opts ...Option) (*LB, error) {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	m := &LB{cfg: cfg, log: o.Log}

	coll, err := loadCollection(cfg.BalancerProg)
	if err != nil {
		return nil, fmt.Errorf("failed to load balancer object: %w", err)
	}
	m.coll = coll

	m.prog = firstProgramOfType(coll, ebpf.XDP)
	if m.prog == nil {
		m.Close()
		return nil, fmt.Errorf("no XDP program in %s", cfg.BalancerProg)
	}

	if cfg.HealthCheckProg != "" {
		hc, err := loadCollection(cfg.HealthCheckProg)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to load health-check object: %w", err)
		}
		m.hc = hc
		m.hcProg = firstProgramOfType(hc, ebpf.SchedCLS)
		if m.hcProg == nil {
			m.Close()
			return nil, fmt.Errorf("no TC program in %s", cfg.HealthCheckProg)
		}
	}

	o.Log.Infof("loaded balancer program from %s", cfg.BalancerProg)
	return m, nil
}

func loadCollection(path string) (*ebpf.Collection, error) {
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse object %s: %w", path, err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to load object %s: %w", path, err)
	}
	return coll, nil
}

func firstProgramOfType(coll *ebpf.Collection, typ ebpf.ProgramType) *ebpf.Program {
	for _, prog := range coll.Programs {
		if prog.Type() == typ {
			return prog
		}
	}
	return nil
}

// Program is the main balancer program handle.
func (m *LB) Program() *ebpf.Program {
	return m.prog
}

// HealthCheckProgram is the health-check program handle, nil when health
// checking is not enabled.
func (m *LB) HealthCheckProgram() *ebpf.Program {
	return m.hcProg
}

// HealthCheckEnabled reports whether the health-check program was loaded.
func (m *LB) HealthCheckEnabled() bool {
	return m.hcProg != nil
}

func (m *LB) mapByName(name string) (*ebpf.Map, error) {
	if m.coll == nil {
		return nil, errors.New("balancer object is not loaded")
	}
	mp, ok := m.coll.Maps[name]
	if !ok {
		return nil, fmt.Errorf("map %q does not exist", name)
	}
	return mp, nil
}

// Close releases the loaded objects.
func (m *LB) Close() error {
	var errs []error
	if m.monitor != nil {
		errs = append(errs, m.monitor.stop())
		m.monitor = nil
	}
	if m.hc != nil {
		m.hc.Close()
		m.hc = nil
	}
	if m.coll != nil {
		m.coll.Close()
		m.coll = nil
	}
	return errors.Join(errs...)
}
