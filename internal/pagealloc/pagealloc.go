// Package pagealloc implements the simulator's single shared resource:
// a fixed-size arena of fixed-size pages, handed out as reference-
// counted handles. It is the one place in this repo where allocator
// exhaustion and refcount misuse are fatal by design (see Alloc and
// DecRef).
package pagealloc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/biscuit-labs/kvcachesim/internal/config"
)

/// PageHandle identifies one page in the arena. It is a dense index,
/// not a pointer: the allocator never hands out a raw address, since
/// page contents are never read or written by the simulation.
type PageHandle int

const noNext = -1

// page tracks one arena slot's refcount and, while on the free list,
// the index of the next free page (a free-list-as-index-chain, the
// same representation the teacher's physical page allocator uses for
// its own free list instead of a separate slice of free handles).
type page struct {
	ref  int32
	next int32
}

// Allocator owns one contiguous anonymous memory region, divided into
// PageBytes()-sized pages, plus a free list over the page array.
//
// Concurrency: Alloc, DecRef, and PagesInUse all touch the free list
// or scan refcounts and are therefore serialized by mu. IncRef only
// needs to be safe when the caller already holds a lock that also
// serializes any concurrent DecRef of the same page; this
// implementation does not rely on that carve-out. Every mutation of
// ref goes through mu, the simplest correct option, and it costs
// nothing extra at this simulator's scale.
type Allocator struct {
	mu sync.Mutex

	arena []byte
	pages []page

	pageBytes int64
	numPages  int64

	freeHead int32 // index of first free page, or noNext
	freeLen  int64
}

// New reserves the arena and initializes every page as free.
func New(cfg config.Config) (*Allocator, error) {
	pageBytes := cfg.PageBytes()
	numPages := cfg.NumPages()
	if numPages <= 0 {
		return nil, fmt.Errorf("pagealloc: arena_bytes too small for a single page")
	}
	arenaSize := numPages * pageBytes

	arena, err := unix.Mmap(-1, 0, int(arenaSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("pagealloc: mmap %d bytes: %w", arenaSize, err)
	}

	a := &Allocator{
		arena:     arena,
		pages:     make([]page, numPages),
		pageBytes: pageBytes,
		numPages:  numPages,
		freeHead:  noNext,
	}
	for i := int64(numPages - 1); i >= 0; i-- {
		a.pages[i] = page{ref: 0, next: a.freeHead}
		a.freeHead = int32(i)
	}
	a.freeLen = numPages
	return a, nil
}

// Alloc pops a page off the free list with refcount 1. It panics if
// the arena is exhausted: this simulator has no eviction, so resource
// exhaustion must surface immediately rather than be masked.
func (a *Allocator) Alloc() PageHandle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.freeHead == noNext {
		panic("pagealloc: arena exhausted, no free pages")
	}
	idx := a.freeHead
	a.freeHead = a.pages[idx].next
	a.freeLen--

	a.pages[idx].ref = 1
	a.pages[idx].next = noNext
	return PageHandle(idx)
}

// IncRef increments a page's refcount. The caller must already hold a
// live reference (refcount >= 1); incrementing a free page is a bug.
func (a *Allocator) IncRef(h PageHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := &a.pages[h]
	if p.ref < 1 {
		panic(fmt.Sprintf("pagealloc: IncRef on page %d with ref=%d", h, p.ref))
	}
	p.ref++
}

// DecRef releases one reference. On transition to zero the page
// returns to the free list. Decrementing a page already at zero is a
// fatal invariant violation: it indicates a double-free in the
// caller, not a condition this simulator attempts to recover from.
func (a *Allocator) DecRef(h PageHandle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := &a.pages[h]
	if p.ref <= 0 {
		panic(fmt.Sprintf("pagealloc: DecRef on page %d with ref=%d", h, p.ref))
	}
	p.ref--
	if p.ref == 0 {
		p.next = a.freeHead
		a.freeHead = int32(h)
		a.freeLen++
	}
}

// PagesInUse returns the number of pages with a non-zero refcount.
func (a *Allocator) PagesInUse() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.numPages - a.freeLen
}

// PageBytes returns the fixed byte extent of one page.
func (a *Allocator) PageBytes() int64 {
	return a.pageBytes
}

// NumPages returns the total page count the arena was carved into.
func (a *Allocator) NumPages() int64 {
	return a.numPages
}

// Close unmaps the arena. After Close, the allocator must not be used
// again.
func (a *Allocator) Close() error {
	if a.arena == nil {
		return nil
	}
	err := unix.Munmap(a.arena)
	a.arena = nil
	return err
}
