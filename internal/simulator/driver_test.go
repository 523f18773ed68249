package simulator

import (
	"math/rand/v2"
	"testing"

	"github.com/biscuit-labs/kvcachesim/internal/config"
	"github.com/biscuit-labs/kvcachesim/internal/kvbackend"
	"github.com/biscuit-labs/kvcachesim/internal/workload"
)

func testConfig() config.Config {
	return config.Config{
		NumLayers:        4,
		NumHeads:         8,
		HeadDim:          8,
		TokensPerPage:    16,
		ArenaBytes:       1 << 30,
		MaxContextTokens: 256,
		NumSequences:     32,
		NumGroups:        4,
		MaxPromptExtra:   32,
		MinGenTokens:     16,
		MaxGenTokens:     64,
	}
}

// Run must produce a logical token count matching the sum of every
// generated sequence's prompt+gen tokens, which only holds if every
// worker's sequence stayed live (no FinishSequence) through Stats, so
// that peak concurrent residency is what gets measured.
func TestRunLeavesSequencesLiveForPeakMeasurement(t *testing.T) {
	cfg := testConfig()
	work := workload.Generate(cfg, rand.New(rand.NewPCG(7, 7)))

	var wantTokens int64
	for _, w := range work {
		wantTokens += int64(w.PromptTokens + w.GenTokens)
	}

	paged, err := kvbackend.NewPagedBackend(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer paged.Destroy()

	st, err := Run(cfg, paged, work)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.LogicalTokens != wantTokens {
		t.Fatalf("LogicalTokens = %d, want %d (sequences must stay live for peak measurement)", st.LogicalTokens, wantTokens)
	}
}

func TestRunAgainstMonolithicBackend(t *testing.T) {
	cfg := testConfig()
	work := workload.Generate(cfg, rand.New(rand.NewPCG(8, 8)))

	mono := kvbackend.NewMonoBackend(cfg)
	defer mono.Destroy()

	st, err := Run(cfg, mono, work)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := int64(len(work)) * int64(cfg.MaxContextTokens) * cfg.BytesPerToken()
	if st.PhysicalBytes != want {
		t.Fatalf("PhysicalBytes = %d, want %d", st.PhysicalBytes, want)
	}
}
