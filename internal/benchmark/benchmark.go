// Package benchmark times the wallsight pipeline stages.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"sync"
	"text/tabwriter"
	"time"
)

// Timer measures one elapsed interval.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer creates a running timer with the given name.
func NewTimer(name string) *Timer {
	return &Timer{
		name:  name,
		start: time.Now(),
	}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// String returns a formatted string representation of the timer.
func (t *Timer) String() string {
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	NumGC           uint32 `json:"num_gc"`
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		NumGC:           m.NumGC,
	}
}

// Result holds the timings of one benchmark run.
type Result struct {
	Name       string        `json:"name"`
	Iterations int           `json:"iterations"`
	Total      time.Duration `json:"total_ns"`
	Min        time.Duration `json:"min_ns"`
	Max        time.Duration `json:"max_ns"`
	// AllocPerOp is the mean number of bytes allocated per iteration.
	AllocPerOp uint64 `json:"alloc_per_op"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
}

// Mean returns the average iteration time.
func (r Result) Mean() time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return r.Total / time.Duration(r.Iterations)
}

// String returns a formatted string representation of the result.
func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Err)
	}
	return fmt.Sprintf("%s: %d iterations, avg: %v, min: %v, max: %v, alloc/op: %d KB",
		r.Name, r.Iterations, r.Mean(), r.Min, r.Max, r.AllocPerOp/1024)
}

// Func is one benchmarked operation.
type Func func(ctx context.Context) error

type entry struct {
	name string
	fn   Func
}

// Suite runs named benchmarks in registration order.
type Suite struct {
	mu      sync.Mutex
	entries []entry
	results []Result
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add registers a benchmark. A later Add with the same name replaces it.
func (s *Suite) Add(name string, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].name == name {
			s.entries[i].fn = fn
			return
		}
	}
	s.entries = append(s.entries, entry{name: name, fn: fn})
}

// Names returns the registered benchmark names.
func (s *Suite) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

// Run runs a single benchmark for the given number of iterations.
func (s *Suite) Run(ctx context.Context, name string, iterations int) Result {
	s.mu.Lock()
	var fn Func
	for _, e := range s.entries {
		if e.name == name {
			fn = e.fn
			break
		}
	}
	s.mu.Unlock()

	if fn == nil {
		err := fmt.Errorf("benchmark '%s' not found", name)
		return Result{Name: name, Err: err, Error: err.Error()}
	}
	return run(ctx, name, fn, iterations)
}

// RunAll runs every benchmark and keeps the results for Results.
func (s *Suite) RunAll(ctx context.Context, iterations int) []Result {
	s.mu.Lock()
	entries := append([]entry(nil), s.entries...)
	s.mu.Unlock()

	results := make([]Result, 0, len(entries))
	for _, e := range entries {
		results = append(results, run(ctx, e.name, e.fn, iterations))
	}

	s.mu.Lock()
	s.results = results
	s.mu.Unlock()
	return results
}

// Results returns the results of the last RunAll.
func (s *Suite) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Result(nil), s.results...)
}

// Print writes results as an aligned table.
func Print(w io.Writer, results []Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STAGE\tITER\tAVG\tMIN\tMAX\tALLOC/OP")
	for _, r := range results {
		if r.Err != nil {
			_, _ = fmt.Fprintf(tw, "%s\t%d\terror: %v\t\t\t\n", r.Name, r.Iterations, r.Err)
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%v\t%v\t%v\t%d KB\n", r.Name, r.Iterations,
			r.Mean().Round(time.Microsecond), r.Min.Round(time.Microsecond),
			r.Max.Round(time.Microsecond), r.AllocPerOp/1024)
	}
	return tw.Flush()
}

func run(ctx context.Context, name string, fn Func, iterations int) Result {
	res := Result{Name: name, Min: time.Duration(math.MaxInt64)}
	if iterations <= 0 {
		res.Err = errors.New("iterations must be positive")
		res.Error = res.Err.Error()
		res.Min = 0
		return res
	}

	runtime.GC()
	before := GetMemoryStats()

	for range iterations {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		timer := NewTimer(name)
		err := fn(ctx)
		d := timer.Stop()
		if err != nil {
			res.Err = err
			break
		}
		res.Iterations++
		res.Total += d
		res.Min = min(res.Min, d)
		res.Max = max(res.Max, d)
	}

	after := GetMemoryStats()
	if res.Iterations > 0 {
		res.AllocPerOp = (after.TotalAllocBytes - before.TotalAllocBytes) / uint64(res.Iterations) //nolint:gosec // G115: iteration count is positive
	} else {
		res.Min = 0
	}
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	return res
}
