package tester

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cilium/ebpf"
)

// Verdict is the program's own outcome signal for one invocation. Values
// follow the XDP return codes.
type Verdict uint32

const (
	VerdictAborted Verdict = iota
	VerdictDrop
	VerdictPass
	VerdictTx
	VerdictRedirect
)

// TC classifier programs (the health-check path) report verdicts in their
// own space; they are logged numerically.
const VerdictTcRedirect Verdict = 7

func (v Verdict) String() string {
	switch v {
	case VerdictAborted:
		return "XDP_ABORTED"
	case VerdictDrop:
		return "XDP_DROP"
	case VerdictPass:
		return "XDP_PASS"
	case VerdictTx:
		return "XDP_TX"
	case VerdictRedirect:
		return "XDP_REDIRECT"
	default:
		return fmt.Sprintf("XDP(%d)", uint32(v))
	}
}

// Result is the outcome of a single program invocation. It is consumed
// immediately by the caller; the Output buffer is owned by the receiver.
type Result struct {
	Output   []byte
	Verdict  Verdict
	Duration time.Duration
}

// Runner executes the program-under-test against one input buffer. The
// program is a black box: implementations must honor only the
// invoke(input) -> (output, verdict, duration) contract and must not
// mutate the input buffer, which callers reuse across invocations.
type Runner interface {
	Invoke(data []byte) (Result, error)
}

var (
	// ErrNoProgram is returned when the program handle is not loaded.
	ErrNoProgram = errors.New("program is not loaded")
	// ErrEmptyInput is returned for a zero-length input buffer.
	ErrEmptyInput = errors.New("empty input buffer")
)

// growroom is the extra output capacity handed to the program so that it
// may grow the packet, e.g. when prepending encapsulation headers.
const growroom = 256

// ProgRunner runs a loaded BPF program through the kernel's test-run
// facility.
type ProgRunner struct {
	prog *ebpf.Program
}

// NewProgRunner wraps a loaded program. The program handle stays owned by
// the caller.
func NewProgRunner(prog *ebpf.Program) (*ProgRunner, error) {
	if prog == nil {
		return nil, ErrNoProgram
	}
	return &ProgRunner{prog: prog}, nil
}

// Invoke runs the program once against a copy of data. A failure to invoke
// is an error distinct from any program verdict.
func (m *ProgRunner) Invoke(data []byte) (Result, error) {
	if m.prog == nil {
		return Result{}, ErrNoProgram
	}
	if len(data) == 0 {
		return Result{}, ErrEmptyInput
	}

	opts := ebpf.RunOptions{
		// The kernel does not write back into Data, but the contract
		// promises the caller's buffer is never touched.
		Data:    slices.Clone(data),
		DataOut: make([]byte, len(data)+growroom),
	}

	start := time.Now()
	ret, err := m.prog.Run(&opts)
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, fmt.Errorf("failed to run program: %w", err)
	}

	// Run truncates DataOut to the actual output length.
	return Result{
		Output:   opts.DataOut,
		Verdict:  Verdict(ret),
		Duration: elapsed,
	}, nil
}
