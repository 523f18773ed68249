package profiling

import (
	"path/filepath"
	"testing"
)

func TestWriteHeapProfileThenTop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.pprof")

	// allocate something identifiable so the profile has samples to
	// aggregate.
	keepAlive := make([][]byte, 64)
	for i := range keepAlive {
		keepAlive[i] = make([]byte, 1<<16)
	}

	if err := WriteHeapProfile(path); err != nil {
		t.Fatalf("WriteHeapProfile: %v", err)
	}

	entries, err := Top(path, 5)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(entries) > 5 {
		t.Fatalf("Top returned %d entries, want <= 5", len(entries))
	}
	_ = keepAlive
}
