package workload

import (
	"math/rand/v2"
	"testing"

	"github.com/biscuit-labs/kvcachesim/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		NumLayers:        4,
		NumHeads:         8,
		HeadDim:          8,
		TokensPerPage:    16,
		MaxContextTokens: 2048,
		NumSequences:     128,
		NumGroups:        4,
		MaxPromptExtra:   256,
		MinGenTokens:     128,
		MaxGenTokens:     1024,
	}
}

func TestGenerateProducesRequestedCount(t *testing.T) {
	cfg := testConfig()
	work := Generate(cfg, rand.New(rand.NewPCG(1, 1)))
	if len(work) != cfg.NumSequences {
		t.Fatalf("len(work) = %d, want %d", len(work), cfg.NumSequences)
	}
}

func TestGenerateAssignsGroupsModuloNumGroups(t *testing.T) {
	cfg := testConfig()
	work := Generate(cfg, rand.New(rand.NewPCG(2, 2)))
	for i, w := range work {
		want := i % cfg.NumGroups
		if w.SharedPromptID != want {
			t.Fatalf("work[%d].SharedPromptID = %d, want %d", i, w.SharedPromptID, want)
		}
	}
}

func TestGenerateNoGroupsDisablesSharing(t *testing.T) {
	cfg := testConfig()
	cfg.NumGroups = 0
	work := Generate(cfg, rand.New(rand.NewPCG(3, 3)))
	for i, w := range work {
		if w.SharedPromptID != NoGroup {
			t.Fatalf("work[%d].SharedPromptID = %d, want NoGroup", i, w.SharedPromptID)
		}
		if w.SharedPromptTokens != 0 {
			t.Fatalf("work[%d].SharedPromptTokens = %d, want 0 with sharing disabled", i, w.SharedPromptTokens)
		}
	}
}

func TestGenerateSharedPrefixIsPageAligned(t *testing.T) {
	cfg := testConfig()
	work := Generate(cfg, rand.New(rand.NewPCG(4, 4)))
	for i, w := range work {
		if w.SharedPromptTokens%cfg.TokensPerPage != 0 {
			t.Fatalf("work[%d].SharedPromptTokens = %d, not a multiple of TokensPerPage=%d",
				i, w.SharedPromptTokens, cfg.TokensPerPage)
		}
	}
}

func TestGenerateNeverExceedsMaxContextTokens(t *testing.T) {
	cfg := testConfig()
	work := Generate(cfg, rand.New(rand.NewPCG(5, 5)))
	for i, w := range work {
		if w.PromptTokens > cfg.MaxContextTokens {
			t.Fatalf("work[%d].PromptTokens = %d exceeds MaxContextTokens=%d", i, w.PromptTokens, cfg.MaxContextTokens)
		}
		if total := w.PromptTokens + w.GenTokens; total > cfg.MaxContextTokens {
			t.Fatalf("work[%d] prompt+gen = %d exceeds MaxContextTokens=%d", i, total, cfg.MaxContextTokens)
		}
	}
}

func TestGenerateIsDeterministicForAGivenSeed(t *testing.T) {
	cfg := testConfig()
	a := Generate(cfg, rand.New(rand.NewPCG(42, 42)))
	b := Generate(cfg, rand.New(rand.NewPCG(42, 42)))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("work[%d] differs across identically-seeded runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
