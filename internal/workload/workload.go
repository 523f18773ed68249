// Package workload generates the synthetic decoding sequences the
// simulation driver feeds to each backend.
package workload

import (
	"math/rand/v2"

	"github.com/biscuit-labs/kvcachesim/internal/config"
)

// NoGroup is the sentinel shared_prompt_id meaning "this sequence does
// not participate in prefix sharing."
const NoGroup = -1

// SequenceWork describes one synthetic decode sequence. It is
// consumed once, at InitSequence.
type SequenceWork struct {
	PromptTokens       int
	GenTokens          int
	SharedPromptTokens int
	SharedPromptID     int // NoGroup, or a non-negative group index
}

func alignDown(x, align int) int {
	if align <= 0 {
		return 0
	}
	return (x / align) * align
}

// Generate produces cfg.NumSequences descriptors. Sequence i is
// assigned group i mod NumGroups (or NoGroup if NumGroups == 0); a
// grouped sequence's shared prefix is max_context_tokens/2, aligned
// down to tokens_per_page. Prompt length is the shared prefix plus
// U{0,MaxPromptExtra}, clipped to MaxContextTokens; gen length is
// U{MinGenTokens,MaxGenTokens}, clipped so prompt+gen never exceeds
// MaxContextTokens.
//
// rng is threaded explicitly rather than drawn from a package-level
// generator, so that callers control reproducibility by constructing
// their own *rand.Rand with a chosen seed.
func Generate(cfg config.Config, rng *rand.Rand) []SequenceWork {
	work := make([]SequenceWork, cfg.NumSequences)

	targetPrefix := cfg.MaxContextTokens / 2
	sharedPrefix := alignDown(targetPrefix, cfg.TokensPerPage)

	for i := range work {
		group := NoGroup
		if cfg.NumGroups > 0 {
			group = i % cfg.NumGroups
		}

		w := SequenceWork{SharedPromptID: group}
		if group != NoGroup {
			w.SharedPromptTokens = sharedPrefix
		}

		extra := 0
		if cfg.MaxPromptExtra > 0 {
			extra = rng.IntN(cfg.MaxPromptExtra + 1)
		}
		prompt := w.SharedPromptTokens + extra
		if prompt > cfg.MaxContextTokens {
			prompt = cfg.MaxContextTokens
		}
		w.PromptTokens = prompt

		remaining := 0
		if prompt < cfg.MaxContextTokens {
			remaining = cfg.MaxContextTokens - prompt
		}

		genMin, genMax := cfg.MinGenTokens, cfg.MaxGenTokens
		if genMin > genMax {
			genMin = genMax
		}
		span := 1
		if genMax >= genMin {
			span = genMax - genMin + 1
		}
		gen := genMin + rng.IntN(span)
		if gen > remaining {
			gen = remaining
		}
		w.GenTokens = gen

		work[i] = w
	}
	return work
}
