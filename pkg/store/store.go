// Copyright 2025 Justifai
//
// Package store defines the typed gateway the scheduler performs all
// job/batch operations through. No stage reaches the database any
// other way; the gateway is the only shared mutable state in the
// system (see the design notes on module-level singletons).
package store

import (
	"context"
	"time"

	"github.com/justifai/certify/pkg/domain"
)

// JobRepository is the set of job-scoped operations the scheduler needs.
type JobRepository interface {
	// CreateJob inserts a new job row, normally in the Pending state, as
	// part of batch intake.
	CreateJob(ctx context.Context, job *domain.Job) error

	// ClaimPending atomically transitions up to limit Pending jobs
	// (oldest createdAt first) to Processing and returns them. A worker
	// that loses the race on a given row simply does not see it here.
	ClaimPending(ctx context.Context, limit int) ([]*domain.Job, error)

	FindPendingSignature(ctx context.Context, batchID string) ([]*domain.Job, error)
	FindSignedJobs(ctx context.Context, batchID string) ([]*domain.Job, error)
	FindJobsAwaitingQR(ctx context.Context, limit int) ([]*domain.Job, error)
	FindJobsAwaitingPDFAugment(ctx context.Context, limit int) ([]*domain.Job, error)
	FindJobsByBatch(ctx context.Context, batchID string) ([]*domain.Job, error)

	GetJob(ctx context.Context, jobID string) (*domain.Job, error)

	// UpdateJob persists the full record. prevStatus is used as an
	// optimistic-concurrency guard: a concurrent writer that already
	// moved the job away from prevStatus causes UpdateJob to return
	// ErrStaleWrite without applying the update.
	UpdateJob(ctx context.Context, job *domain.Job, prevStatus domain.JobStatus) error
}

// BatchRepository is the set of batch-scoped operations the scheduler needs.
type BatchRepository interface {
	CreateBatch(ctx context.Context, batch *domain.Batch) error
	GetBatch(ctx context.Context, batchID string) (*domain.Batch, error)

	// FindBatchesAwaitingMRI returns batches with at least one Generated
	// job, no PendingSigning jobs remaining, and MerkleRoot unset.
	FindBatchesAwaitingMRI(ctx context.Context) ([]*domain.Batch, error)

	// FindBatchesAwaitingMRU returns Finalized batches with no
	// MerkleRootUltimate yet, ordered oldest-finalized-first.
	FindBatchesAwaitingMRU(ctx context.Context, limit int) ([]*domain.Batch, error)

	// UpdateBatch persists the full record, refusing the write with
	// ErrImmutableField when it would change an already-set MerkleRoot
	// (MRI). MerkleRootUltimate is not guarded.
	UpdateBatch(ctx context.Context, batch *domain.Batch) error
}

// Gateway composes the job and batch repositories into the single
// interface the scheduler and pipeline stages depend on.
type Gateway interface {
	JobRepository
	BatchRepository
}

// Clock abstracts "now" so claim/ordering logic is testable without
// real sleeps; production wiring uses a thin time.Now wrapper.
type Clock func() time.Time
