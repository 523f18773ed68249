// Package profiling wires the simulator's own Go-heap footprint into
// github.com/google/pprof: a heap snapshot written right after both
// backends have run (while the paged backend's page tables are still
// live), and a short top-allocator summary read back out of that same
// snapshot with the pprof profile format's own parser. The snapshot
// covers Go-heap allocations only; the paged backend's arena is an
// mmap'd region outside the Go heap and does not appear in it.
package profiling

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"sort"

	"github.com/google/pprof/profile"
)

// WriteHeapProfile forces a GC (so the snapshot reflects live objects,
// not garbage awaiting collection) and writes a pprof-format heap
// profile to path.
func WriteHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("profiling: create %s: %w", path, err)
	}
	defer f.Close()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("profiling: write heap profile: %w", err)
	}
	return nil
}

// topEntry is one function's aggregated sample value, in bytes, for a
// single sample type (e.g. "inuse_space").
type topEntry struct {
	Function string
	Value    int64
}

// Top parses the heap profile at path and returns the top n functions
// by aggregated "inuse_space" sample value, descending. It is the
// concrete exercise of google/pprof's own profile.Parse: a backend-
// independent reader for the same bytes WriteHeapProfile produced.
func Top(path string, n int) ([]topEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("profiling: open %s: %w", path, err)
	}
	defer f.Close()

	prof, err := profile.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("profiling: parse profile: %w", err)
	}

	valueIdx := sampleTypeIndex(prof, "inuse_space")
	if valueIdx < 0 {
		return nil, fmt.Errorf("profiling: profile has no inuse_space sample type")
	}

	totals := make(map[string]int64)
	for _, s := range prof.Sample {
		if len(s.Value) <= valueIdx {
			continue
		}
		name := "unknown"
		if len(s.Location) > 0 && len(s.Location[0].Line) > 0 {
			if fn := s.Location[0].Line[0].Function; fn != nil {
				name = fn.Name
			}
		}
		totals[name] += s.Value[valueIdx]
	}

	entries := make([]topEntry, 0, len(totals))
	for name, v := range totals {
		entries = append(entries, topEntry{Function: name, Value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Value > entries[j].Value })
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func sampleTypeIndex(prof *profile.Profile, typ string) int {
	for i, st := range prof.SampleType {
		if st.Type == typ {
			return i
		}
	}
	return -1
}

// WriteTop writes a short "function: bytes" summary to w.
func WriteTop(w io.Writer, entries []topEntry) {
	for _, e := range entries {
		fmt.Fprintf(w, "  %-40s %10d bytes\n", e.Function, e.Value)
	}
}
