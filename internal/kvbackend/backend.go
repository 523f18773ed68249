// Package kvbackend implements the two KV-cache memory strategies the
// simulator compares: a monolithic fixed-size pre-allocation and a
// paged, prefix-sharing allocator. Both expose the same Backend
// contract so the simulation driver and the reporting layer never need
// to know which one they are holding.
package kvbackend

import "github.com/biscuit-labs/kvcachesim/internal/workload"

// SeqID is a dense, zero-based sequence identifier assigned in
// InitSequence order. It stays valid until Destroy.
type SeqID int

// Stats is the aggregate snapshot a backend reports: total tokens
// appended across all live sequences, the bytes that would be needed
// if every sequence had private per-token storage, and the bytes
// actually resident.
type Stats struct {
	LogicalTokens int64
	LogicalBytes  int64
	PhysicalBytes int64
}

// Backend is the uniform contract both KV-cache strategies implement.
// InitSequence and AppendToken/FinishSequence/Stats/Destroy make up
// the entire surface the simulation driver and reporting layer use.
// No backend-specific method is ever called from outside this package.
type Backend interface {
	InitSequence(work workload.SequenceWork) SeqID
	AppendToken(id SeqID)
	FinishSequence(id SeqID)
	Stats() Stats
	Destroy()
}
