// Package profiling writes CPU, heap and execution-trace profiles for a
// single command run.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Options names the profile files to write. Empty paths are skipped.
type Options struct {
	CPU   string
	Heap  string
	Trace string
}

// Enabled reports whether any profile was requested.
func (o Options) Enabled() bool {
	return o.CPU != "" || o.Heap != "" || o.Trace != ""
}

// Profiler manages profiling for one run.
type Profiler struct {
	cpuFile   *os.File
	traceFile *os.File
}

// NewProfiler creates a new Profiler instance.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// Start begins the CPU profile and trace named in opts. The returned stop
// function ends them and writes the heap profile, so it must be called
// once the measured work is done.
func Start(opts Options) (stop func() error, err error) {
	p := NewProfiler()
	var cleanups []func()

	if opts.CPU != "" {
		c, err := p.StartCPU(opts.CPU)
		if err != nil {
			return nil, err
		}
		cleanups = append(cleanups, c)
	}
	if opts.Trace != "" {
		c, err := p.StartTrace(opts.Trace)
		if err != nil {
			for _, fn := range cleanups {
				fn()
			}
			return nil, err
		}
		cleanups = append(cleanups, c)
	}

	return func() error {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		if opts.Heap != "" {
			return p.WriteHeap(opts.Heap)
		}
		return nil
	}, nil
}

// StartCPU starts CPU profiling to the specified file.
// Returns a cleanup function that must be called to stop profiling and flush data.
func (p *Profiler) StartCPU(path string) (cleanup func(), err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
	}

	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}

	p.cpuFile = f

	return func() {
		pprof.StopCPUProfile()
		_ = p.cpuFile.Close()
		p.cpuFile = nil
	}, nil
}

// WriteHeap writes a heap profile to the specified file.
func (p *Profiler) WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}

	// Collect first so the profile reflects live vectors, not garbage.
	runtime.GC()

	werr := pprof.WriteHeapProfile(f)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("failed to write heap profile: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("failed to close heap profile: %w", cerr)
	}
	return nil
}

// StartTrace starts execution tracing to the specified file.
// Returns a cleanup function that must be called to stop tracing.
func (p *Profiler) StartTrace(path string) (cleanup func(), err error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}

	if err := trace.Start(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start trace: %w", err)
	}

	p.traceFile = f

	return func() {
		trace.Stop()
		_ = p.traceFile.Close()
		p.traceFile = nil
	}, nil
}
