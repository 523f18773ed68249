// Command kvsim runs the monolithic and paged KV-cache backends
// against one identically-generated synthetic workload and prints a
// logical-vs-physical byte report for each, so the two memory
// strategies can be compared directly.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/biscuit-labs/kvcachesim/internal/config"
	"github.com/biscuit-labs/kvcachesim/internal/kvbackend"
	"github.com/biscuit-labs/kvcachesim/internal/profiling"
	"github.com/biscuit-labs/kvcachesim/internal/report"
	"github.com/biscuit-labs/kvcachesim/internal/simulator"
	"github.com/biscuit-labs/kvcachesim/internal/workload"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kvsim:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, seed, profilePath, profileTop := parseFlags()

	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Printf("bytes_per_token = %d\n", cfg.BytesPerToken())

	rng := rand.New(rand.NewPCG(seed, seed))
	work := workload.Generate(cfg, rng)

	mono := kvbackend.NewMonoBackend(cfg)
	monoStats, err := simulator.Run(cfg, mono, work)
	if err != nil {
		return fmt.Errorf("monolithic run: %w", err)
	}
	report.Print(os.Stdout, "Monolithic (fixed max_context_tokens)", monoStats)
	mono.Destroy()

	paged, err := kvbackend.NewPagedBackend(cfg)
	if err != nil {
		return fmt.Errorf("paged backend: %w", err)
	}
	pagedStats, err := simulator.Run(cfg, paged, work)
	if err != nil {
		return fmt.Errorf("paged run: %w", err)
	}
	report.Print(os.Stdout, "Paged+Prefix", pagedStats)

	if profilePath != "" {
		if err := profiling.WriteHeapProfile(profilePath); err != nil {
			return err
		}
		entries, err := profiling.Top(profilePath, profileTop)
		if err != nil {
			return err
		}
		fmt.Printf("\ntop %d allocators (inuse_space, from %s):\n", profileTop, profilePath)
		profiling.WriteTop(os.Stdout, entries)
	}

	paged.Destroy()
	return nil
}

func parseFlags() (cfg config.Config, seed uint64, profilePath string, profileTop int) {
	flag.IntVar(&cfg.NumLayers, "num-layers", 4, "transformer layer count")
	flag.IntVar(&cfg.NumHeads, "num-heads", 8, "attention head count")
	flag.IntVar(&cfg.HeadDim, "head-dim", 64, "attention head dimension")

	flag.IntVar(&cfg.TokensPerPage, "tokens-per-page", 16, "page granularity, in tokens")
	flag.Int64Var(&cfg.ArenaBytes, "arena-bytes", 2<<30, "paged backend arena size, in bytes")

	flag.IntVar(&cfg.MaxContextTokens, "max-context-tokens", 2048, "per-sequence token cap for both backends")

	flag.IntVar(&cfg.NumSequences, "num-sequences", 128, "concurrent synthetic sequences")
	flag.IntVar(&cfg.NumGroups, "num-groups", 4, "shared-prefix groups (0 disables sharing)")
	flag.IntVar(&cfg.MaxPromptExtra, "max-prompt-extra", 256, "upper bound on non-shared prompt randomness")
	flag.IntVar(&cfg.MinGenTokens, "min-gen-tokens", 128, "lower bound on generated tokens")
	flag.IntVar(&cfg.MaxGenTokens, "max-gen-tokens", 1024, "upper bound on generated tokens")
	flag.BoolVar(&cfg.EnableSleep, "enable-sleep", false, "pause ~100us per append to imitate compute")

	var seedFlag int64
	flag.Int64Var(&seedFlag, "seed", 0, "workload RNG seed (0 picks a fresh seed from the current time)")
	flag.StringVar(&profilePath, "profile", "", "write a heap profile here after both backends have run")
	flag.IntVar(&profileTop, "profile-top", 10, "how many top allocators to print when -profile is set")

	flag.Parse()

	cfg.Seed = uint64(seedFlag)
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	return cfg, cfg.Seed, profilePath, profileTop
}
