package kvbackend

import (
	"sync"

	"github.com/biscuit-labs/kvcachesim/internal/config"
	"github.com/biscuit-labs/kvcachesim/internal/pagealloc"
	"github.com/biscuit-labs/kvcachesim/internal/workload"
)

// pageSlot covers logical tokens [k*TokensPerPage, (k+1)*TokensPerPage)
// for whichever sequence owns it. A slot is empty until the token
// range it covers has actually been appended to.
type pageSlot struct {
	handle pagealloc.PageHandle
	filled bool
}

// pagedSeqState is one sequence's lazily-growing page table. Slots
// below shared_prefix_tokens/TokensPerPage point at pages borrowed
// from the sequence's group; later slots, up to
// ceil(cur_tokens/TokensPerPage)-1, are privately owned.
type pagedSeqState struct {
	slots              []pageSlot
	curTokens          int64
	sharedPrefixTokens int64
	live               bool
}

// reserve grows slots to at least n entries, doubling from an initial
// capacity of 4 and preserving existing handles. Always an indexed
// slice, never a linked list: lookup by page index must be O(1).
func (s *pagedSeqState) reserve(n int) {
	if n <= len(s.slots) {
		return
	}
	newCap := len(s.slots)
	if newCap == 0 {
		newCap = 4
	}
	for newCap < n {
		newCap *= 2
	}
	grown := make([]pageSlot, newCap)
	copy(grown, s.slots)
	s.slots = grown
}

// sharedPrefix is a group's immutable, page-aligned prefix of pages,
// created lazily on the first sequence in that group that requests
// one and held until backend Destroy.
type sharedPrefix struct {
	pages        []pagealloc.PageHandle
	prefixTokens int64
	initialized  bool
}

// PagedBackend is the paged, reference-counted, prefix-sharing KV
// cache. It owns one Allocator, a dense sequence table, and a
// per-group shared-prefix table.
type PagedBackend struct {
	mu     sync.Mutex
	cfg    config.Config
	alloc  *pagealloc.Allocator
	seqs   []pagedSeqState
	groups []sharedPrefix
}

// NewPagedBackend reserves the arena and prepares an empty group
// table sized to cfg.NumGroups (zero groups disables sharing
// entirely).
func NewPagedBackend(cfg config.Config) (*PagedBackend, error) {
	alloc, err := pagealloc.New(cfg)
	if err != nil {
		return nil, err
	}
	return &PagedBackend{
		cfg:    cfg,
		alloc:  alloc,
		groups: make([]sharedPrefix, cfg.NumGroups),
	}, nil
}

func (b *PagedBackend) shareableTokens(tokens int) int64 {
	tpp := b.cfg.TokensPerPage
	if tpp <= 0 {
		return 0
	}
	return int64((tokens / tpp) * tpp)
}

// buildSharedPrefix allocates the pages backing a brand-new group
// prefix. Each page is left with the refcount Alloc gave it (1), which
// is the reference the group entry itself holds; per-sequence
// references are added on top of it as sequences join the group.
func (b *PagedBackend) buildSharedPrefix(prefixTokens int64) sharedPrefix {
	pagesNeeded := int((prefixTokens + int64(b.cfg.TokensPerPage) - 1) / int64(b.cfg.TokensPerPage))
	pref := sharedPrefix{
		pages:        make([]pagealloc.PageHandle, pagesNeeded),
		prefixTokens: prefixTokens,
		initialized:  true,
	}
	for i := range pref.pages {
		pref.pages[i] = b.alloc.Alloc()
	}
	return pref
}

// InitSequence appends a new sequence and, if it asks for a real
// group with a positive shared prefix, splices that group's prefix
// pages into the new sequence's slots under an extra reference each.
//
// If the group's prefix is not yet initialized, this call builds it:
// first writer wins. A later sequence that names a different
// shared_prompt_tokens for the same group silently adopts the
// already-established length rather than rebuilding or erroring.
func (b *PagedBackend) InitSequence(work workload.SequenceWork) SeqID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := SeqID(len(b.seqs))
	b.seqs = append(b.seqs, pagedSeqState{live: true})
	s := &b.seqs[id]

	sharedTokens := int64(0)
	if work.SharedPromptID != workload.NoGroup {
		sharedTokens = b.shareableTokens(work.SharedPromptTokens)
	}

	if sharedTokens > 0 && len(b.groups) > 0 {
		gid := work.SharedPromptID % len(b.groups)
		pref := &b.groups[gid]
		if !pref.initialized {
			*pref = b.buildSharedPrefix(sharedTokens)
		}
		if pref.prefixTokens != sharedTokens {
			sharedTokens = pref.prefixTokens
		}

		s.reserve(len(pref.pages))
		for i, h := range pref.pages {
			b.alloc.IncRef(h)
			s.slots[i] = pageSlot{handle: h, filled: true}
		}
		s.sharedPrefixTokens = sharedTokens
	}

	return id
}

// AppendToken grows the sequence by one logical token, materializing
// a fresh page on first touch of a page index and reusing the
// existing slot (shared or private) otherwise. Appends past
// max_context_tokens are silently clamped. Both backends behave
// identically there, so neither is penalized in the comparison for a
// capacity neither can exceed.
func (b *PagedBackend) AppendToken(id SeqID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &b.seqs[id]

	if s.curTokens >= int64(b.cfg.MaxContextTokens) {
		return
	}

	idx := s.curTokens
	pageIdx := int(idx) / b.cfg.TokensPerPage

	if pageIdx >= len(s.slots) || !s.slots[pageIdx].filled {
		s.reserve(pageIdx + 1)
		if !s.slots[pageIdx].filled {
			s.slots[pageIdx] = pageSlot{handle: b.alloc.Alloc(), filled: true}
		}
	}

	s.curTokens = idx + 1
}

// FinishSequence releases every slot's reference and resets the
// sequence's counters. It is idempotent: a sequence with no filled
// slots left releases nothing on a second call.
func (b *PagedBackend) FinishSequence(id SeqID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finishLocked(id)
}

func (b *PagedBackend) finishLocked(id SeqID) {
	s := &b.seqs[id]
	for i := range s.slots {
		if s.slots[i].filled {
			b.alloc.DecRef(s.slots[i].handle)
			s.slots[i] = pageSlot{}
		}
	}
	s.curTokens = 0
	s.sharedPrefixTokens = 0
}

// Stats reports logical bytes from the live token count across every
// sequence and physical bytes from the allocator's actual page
// occupancy. Shared-prefix pages are counted once by the allocator no
// matter how many sequences or group entries reference them, which is
// exactly what makes deduplication savings surface automatically.
func (b *PagedBackend) Stats() Stats {
	b.mu.Lock()
	var logicalTokens int64
	for _, s := range b.seqs {
		logicalTokens += s.curTokens
	}
	b.mu.Unlock()

	st := Stats{LogicalTokens: logicalTokens}
	st.LogicalBytes = logicalTokens * b.cfg.BytesPerToken()
	st.PhysicalBytes = b.alloc.PagesInUse() * b.alloc.PageBytes()
	return st
}

// Destroy finishes every still-live sequence, releases the group-held
// reference on every shared-prefix page, and tears down the
// allocator. After Destroy every page in the arena has refcount 0.
func (b *PagedBackend) Destroy() {
	b.mu.Lock()
	for i := range b.seqs {
		if b.seqs[i].live {
			b.finishLocked(SeqID(i))
			b.seqs[i].live = false
		}
	}
	for g := range b.groups {
		pref := &b.groups[g]
		if !pref.initialized {
			continue
		}
		for _, h := range pref.pages {
			b.alloc.DecRef(h)
		}
		pref.initialized = false
	}
	b.mu.Unlock()

	if err := b.alloc.Close(); err != nil {
		panic(err)
	}
}
