package main

import (
	"errors"
	"fmt"
	"net/netip"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xlb-platform/xlbtest/common/logging"
	"github.com/xlb-platform/xlbtest/fixtures"
	"github.com/xlb-platform/xlbtest/tester"
	"github.com/xlb-platform/xlbtest/xlb"
	"github.com/xlb-platform/xlbtest/xlb/ebpflb"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to an optional configuration file.
	ConfigPath string

	PcapInput     string
	PcapOutput    string
	MonitorOutput string

	BalancerProg    string
	HealthCheckProg string

	PrintBase64      bool
	TestFromFixtures bool
	PerfTesting      bool
	OptionalTests    bool
	OptionalCounters bool
	GUE              bool

	Repeat   int
	Position int

	BufferedMonitor bool
	Verbose         bool
}

var rootCmd = &cobra.Command{
	Use:   "xlbtest",
	Short: "Fixture replay and verification harness for the balancer program",
}

func init() {
	rootCmd.Run = func(rawCmd *cobra.Command, _ []string) {
		if err := run(cmd); err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	}
	flags := rootCmd.Flags()
	flags.StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to the configuration file")
	flags.StringVar(&cmd.PcapInput, "pcap-input", "", "Path to the input pcap file")
	flags.StringVar(&cmd.PcapOutput, "pcap-output", "", "Path to the output pcap file")
	flags.StringVar(&cmd.MonitorOutput, "monitor-output", "/tmp/xlbtest_pcap",
		"Base path for monitoring output files")
	flags.StringVar(&cmd.BalancerProg, "balancer-prog", "./balancer_kern.o",
		"Path to the balancer program object")
	flags.StringVar(&cmd.HealthCheckProg, "healthchecking-prog", "",
		"Path to the health-check program object")
	flags.BoolVar(&cmd.PrintBase64, "print-base64", false,
		"Print packets from the input pcap file in base64")
	flags.BoolVar(&cmd.TestFromFixtures, "test-from-fixtures", false,
		"Run tests on the predefined dataset")
	flags.BoolVar(&cmd.PerfTesting, "perf-testing", false,
		"Run performance tests on the predefined dataset")
	flags.BoolVar(&cmd.OptionalTests, "optional-tests", false,
		"Run optional (kernel specific) tests")
	flags.BoolVar(&cmd.OptionalCounters, "optional-counter-tests", false,
		"Run optional (kernel specific) counter tests")
	flags.BoolVar(&cmd.GUE, "gue", false, "Run GUE tests instead of IPIP ones")
	flags.IntVar(&cmd.Repeat, "repeat", 1000000, "Number of perf test runs for a single packet")
	flags.IntVar(&cmd.Position, "position", -1, "Fixture position for perf testing")
	flags.BoolVar(&cmd.BufferedMonitor, "iobuf-storage", false,
		"Buffer monitor capture in memory and test it")
	flags.BoolVarP(&cmd.Verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	logLevel := zapcore.InfoLevel
	if cmd.Verbose {
		logLevel = zapcore.DebugLevel
	}
	log, err := logging.Init(&logging.Config{Level: logLevel})
	if err != nil {
		return err
	}
	defer log.Sync()

	t := tester.New(tester.WithLog(log))

	if cmd.PrintBase64 {
		if cmd.PcapInput == "" {
			return errors.New("pcap-input is not specified")
		}
		return t.DumpBase64(cmd.PcapInput)
	}

	cfg, err := loadConfig(cmd, rootCmd.Flags())
	if err != nil {
		return err
	}

	dataset, err := selectDataset(cmd.GUE)
	if err != nil {
		return err
	}

	lb, err := ebpflb.Load(cfg, ebpflb.WithLog(log))
	if err != nil {
		return err
	}
	defer lb.Close()

	runner, err := tester.NewProgRunner(lb.Program())
	if err != nil {
		return err
	}

	switch {
	case cmd.PcapInput != "":
		if err := provisionBalancer(lb); err != nil {
			return err
		}
		return t.ReplayCapture(cmd.PcapInput, cmd.PcapOutput, runner)
	case cmd.TestFromFixtures:
		return runFixtureMode(cmd, t, lb, runner, dataset, log)
	case cmd.PerfTesting:
		if err := provisionBalancer(lb); err != nil {
			return err
		}
		if err := provisionOptional(lb); err != nil {
			return err
		}
		_, err := t.RunPerf(dataset, runner, cmd.Repeat, cmd.Position)
		return err
	}

	return errors.New("no run mode selected")
}

// realIndexes resolves catalog addresses to their table indexes.
func realIndexes() map[netip.Addr]uint32 {
	out := make(map[netip.Addr]uint32)
	for _, real := range fixtures.Reals() {
		out[real.Addr] = real.Index
	}
	return out
}

// provisionBalancer installs the reals table, the virtual services and,
// when enabled, the health-check destinations the datasets were captured
// against. Runs after the pre-replay map checks so that the empty-table
// baseline stays observable.
func provisionBalancer(lb *ebpflb.LB) error {
	index := realIndexes()

	for _, real := range fixtures.Reals() {
		if err := lb.AddReal(real.Index, real.Addr.String()); err != nil {
			return err
		}
	}
	for num, svc := range fixtures.Services() {
		pool := make([]uint32, 0, len(svc.Reals))
		for _, addr := range svc.Reals {
			pool = append(pool, index[addr])
		}
		if err := lb.AddService(svc.Vip, uint32(num), pool); err != nil {
			return err
		}
	}
	if lb.HealthCheckEnabled() {
		for _, real := range fixtures.HealthCheckReals() {
			if err := lb.AddHealthCheckReal(real.Index, real.Addr.String()); err != nil {
				return err
			}
		}
	}
	return nil
}

// provisionOptional installs the source-routing rules and inline-decap
// destinations required by the optional datasets.
func provisionOptional(lb *ebpflb.LB) error {
	index := realIndexes()

	for _, route := range fixtures.SourceRoutes() {
		if err := lb.AddSourceRoute(route.Prefix, index[route.Real]); err != nil {
			return err
		}
	}
	for _, addr := range fixtures.InlineDecapDsts() {
		if err := lb.AddInlineDecapDst(addr.String()); err != nil {
			return err
		}
	}
	return nil
}

// loadConfig layers explicitly set flags over the optional config file.
// Flags left at their defaults must not shadow file values, so only flags
// the user actually changed are applied.
func loadConfig(cmd Cmd, flags *pflag.FlagSet) (*ebpflb.Config, error) {
	cfg := ebpflb.DefaultConfig()
	if cmd.ConfigPath != "" {
		loaded, err := ebpflb.LoadConfig(cmd.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if flags.Changed("balancer-prog") {
		cfg.BalancerProg = cmd.BalancerProg
	}
	if flags.Changed("healthchecking-prog") {
		cfg.HealthCheckProg = cmd.HealthCheckProg
	}
	return cfg, nil
}

func selectDataset(gue bool) (*tester.Dataset, error) {
	if gue {
		return fixtures.GUE()
	}
	return fixtures.Baseline()
}

func selectOptionalDataset(gue bool) (*tester.Dataset, error) {
	if gue {
		return fixtures.GUEOptional()
	}
	return fixtures.Optional()
}

func runFixtureMode(
	cmd Cmd,
	t *tester.Tester,
	lb *ebpflb.LB,
	runner tester.Runner,
	dataset *tester.Dataset,
	log *zap.SugaredLogger,
) error {
	if cmd.OptionalCounters {
		checks := dataset.State.PreMaps
		if lb.HealthCheckEnabled() {
			checks = append(checks, fixtures.HealthCheckMapsPre...)
		}
		t.ValidateMaps(lb, checks)
	}

	if err := provisionBalancer(lb); err != nil {
		return err
	}

	if cmd.BufferedMonitor {
		if err := lb.StartMonitor(); err != nil {
			return err
		}
	}

	if _, err := t.RunFixtures(dataset, runner); err != nil {
		return err
	}
	t.ValidateState(lb, dataset.State)

	if cmd.OptionalCounters {
		checks := dataset.State.PostMaps
		if lb.HealthCheckEnabled() {
			checks = append(checks, fixtures.HealthCheckMapsPost...)
		}
		t.ValidateMaps(lb, checks)
	}

	runSimulatorScenarios(lb, log)

	if cmd.BufferedMonitor {
		if err := lb.StopMonitor(); err != nil {
			log.Warnf("failed to stop monitor: %v", err)
		} else {
			lb.WriteMonitorBuffers(cmd.MonitorOutput, []uint32{
				ebpflb.EventTcpNonSynLruMiss,
				ebpflb.EventPacketTooBig,
			})
		}
	}

	if lb.HealthCheckEnabled() {
		hcRunner, err := tester.NewProgRunner(lb.HealthCheckProgram())
		if err != nil {
			return err
		}
		hcDataset, err := fixtures.HealthCheck()
		if err != nil {
			return err
		}
		if _, err := t.RunFixtures(hcDataset, hcRunner); err != nil {
			return err
		}
	} else {
		log.Info("health checking not enabled, skipping HC related tests")
	}

	if cmd.OptionalTests {
		log.Info("running optional tests, they may fail if kernel requirements are not satisfied")
		if err := provisionOptional(lb); err != nil {
			return err
		}
		optional, err := selectOptionalDataset(cmd.GUE)
		if err != nil {
			return err
		}
		if _, err := t.RunFixtures(optional, runner); err != nil {
			return err
		}
		t.ValidateOptionalState(lb, optional.State)
	}

	return nil
}

// simulatorScenario pins a flow to the real expected to serve it; an empty
// real means the flow must not resolve.
type simulatorScenario struct {
	name string
	flow xlb.FlowKey
	real string
}

func runSimulatorScenarios(lb *ebpflb.LB, log *zap.SugaredLogger) {
	scenarios := []simulatorScenario{
		{
			name: "v4 udp vip with v4 real",
			flow: xlb.FlowKey{Src: "172.16.0.1", Dst: "10.200.1.2", SrcPort: 31337, DstPort: 80, Proto: fixtures.ProtoUDP},
			real: "10.0.0.1",
		},
		{
			name: "v4 tcp vip with v4 real",
			flow: xlb.FlowKey{Src: "172.16.0.1", Dst: "10.200.1.1", SrcPort: 31337, DstPort: 80, Proto: fixtures.ProtoTCP},
			real: "10.0.0.2",
		},
		{
			name: "v4 tcp vip with v6 real",
			flow: xlb.FlowKey{Src: "172.16.0.1", Dst: "10.200.1.3", SrcPort: 31337, DstPort: 80, Proto: fixtures.ProtoTCP},
			real: "fc00::2",
		},
		{
			name: "v6 tcp vip with v6 real",
			flow: xlb.FlowKey{Src: "fc00:2::1", Dst: "fc00:1::1", SrcPort: 31337, DstPort: 80, Proto: fixtures.ProtoTCP},
			real: "fc00::3",
		},
		{
			name: "non existing vip",
			flow: xlb.FlowKey{Src: "fc00:2::1", Dst: "fc00:1::2", SrcPort: 31337, DstPort: 80, Proto: fixtures.ProtoTCP},
			real: "",
		},
		{
			name: "mismatched address families",
			flow: xlb.FlowKey{Src: "10.0.0.1", Dst: "fc00:1::1", SrcPort: 31337, DstPort: 80, Proto: fixtures.ProtoTCP},
			real: "",
		},
		{
			name: "invalid addresses",
			flow: xlb.FlowKey{Src: "aaaa", Dst: "bbbb", SrcPort: 31337, DstPort: 80, Proto: fixtures.ProtoTCP},
			real: "",
		},
	}

	for _, s := range scenarios {
		real, err := lb.RealForFlow(s.flow)
		if err != nil {
			log.Warnf("simulation failed for %s: %v", s.name, err)
			continue
		}
		if real != s.real {
			log.Warnf("simulation is incorrect for %s: got %q, want %q", s.name, real, s.real)
		}
	}
	log.Info("flow simulation scenarios complete")
}
