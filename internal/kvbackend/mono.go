package kvbackend

import (
	"sync"

	"github.com/biscuit-labs/kvcachesim/internal/config"
	"github.com/biscuit-labs/kvcachesim/internal/workload"
)

// monoSeqState is a sequence's fixed-capacity buffer: maxTokens is
// always cfg.MaxContextTokens, the realistic config-driven context
// window, never a hardcoded capacity.
type monoSeqState struct {
	buf       []byte
	maxTokens int64
	curTokens int64
}

// MonoBackend pre-allocates a buffer sized for the maximum context
// window on every InitSequence. Its entire purpose is to be the
// wasteful baseline the paged backend is contrasted against, so its
// logic is intentionally trivial: no page table, no sharing, no
// lazy growth.
type MonoBackend struct {
	mu   sync.Mutex
	cfg  config.Config
	seqs []monoSeqState
}

// NewMonoBackend constructs an empty monolithic backend.
func NewMonoBackend(cfg config.Config) *MonoBackend {
	return &MonoBackend{cfg: cfg}
}

func (b *MonoBackend) InitSequence(work workload.SequenceWork) SeqID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := SeqID(len(b.seqs))
	maxTokens := int64(b.cfg.MaxContextTokens)
	b.seqs = append(b.seqs, monoSeqState{
		buf:       make([]byte, maxTokens*b.cfg.BytesPerToken()),
		maxTokens: maxTokens,
	})
	return id
}

// AppendToken increments cur_tokens while it remains below capacity;
// beyond that it is silently clamped, matching the paged backend so
// the two stay comparable.
func (b *MonoBackend) AppendToken(id SeqID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &b.seqs[id]
	if s.curTokens < s.maxTokens {
		s.curTokens++
	}
}

// FinishSequence is a no-op: the monolithic backend never releases its
// pre-allocated buffer early, since there is nothing to share or
// reclaim until destruction.
func (b *MonoBackend) FinishSequence(id SeqID) {}

func (b *MonoBackend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	var st Stats
	for _, s := range b.seqs {
		st.LogicalTokens += s.curTokens
		st.PhysicalBytes += s.maxTokens * b.cfg.BytesPerToken()
	}
	st.LogicalBytes = st.LogicalTokens * b.cfg.BytesPerToken()
	return st
}

// Destroy drops every sequence's buffer. There is no arena behind the
// monolithic backend to unmap (each sequence's storage is an ordinary
// Go-managed allocation); the fixed pre-allocation itself is the point
// of comparison, not the allocation mechanism.
func (b *MonoBackend) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seqs = nil
}
