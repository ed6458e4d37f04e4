// Copyright 2025 Justifai
//
// MemoryGateway is a simple in-memory Gateway, the same shape as the
// teacher's MemoryKV: a mutex-guarded map standing in for a real
// backend, used by scheduler and pipeline tests.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/justifai/certify/pkg/domain"
)

// MemoryGateway implements Gateway over in-process maps.
type MemoryGateway struct {
	mu      sync.RWMutex
	jobs    map[string]*domain.Job
	batches map[string]*domain.Batch
}

var _ Gateway = (*MemoryGateway)(nil)

// NewMemoryGateway returns an empty MemoryGateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		jobs:    make(map[string]*domain.Job),
		batches: make(map[string]*domain.Batch),
	}
}

// PutJob seeds or overwrites a job, bypassing the optimistic-concurrency check.
func (m *MemoryGateway) PutJob(j *domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
}

// PutBatch seeds or overwrites a batch, bypassing immutability checks.
func (m *MemoryGateway) PutBatch(b *domain.Batch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.batches[b.ID] = &cp
}

// CreateJob inserts a new job, rejecting a duplicate id.
func (m *MemoryGateway) CreateJob(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return ErrImmutableField
	}
	cp := *job
	if cp.Status == "" {
		cp.Status = domain.JobPending
	}
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryGateway) ClaimPending(ctx context.Context, limit int) ([]*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*domain.Job
	for _, j := range m.jobs {
		if j.Status == domain.JobPending {
			candidates = append(candidates, j)
		}
	}
	sort.Slice(candidates, func(i, k int) bool { return candidates[i].CreatedAt.Before(candidates[k].CreatedAt) })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]*domain.Job, 0, len(candidates))
	for _, j := range candidates {
		j.Status = domain.JobProcessing
		cp := *j
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (m *MemoryGateway) filterJobs(batchID string, status domain.JobStatus) []*domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Job
	for _, j := range m.jobs {
		if j.BatchID != batchID {
			continue
		}
		if status != "" && j.Status != status {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

func (m *MemoryGateway) FindPendingSignature(ctx context.Context, batchID string) ([]*domain.Job, error) {
	return m.filterJobs(batchID, domain.JobPendingSigning), nil
}

func (m *MemoryGateway) FindSignedJobs(ctx context.Context, batchID string) ([]*domain.Job, error) {
	return m.filterJobs(batchID, domain.JobGenerated), nil
}

func (m *MemoryGateway) FindJobsByBatch(ctx context.Context, batchID string) ([]*domain.Job, error) {
	return m.filterJobs(batchID, ""), nil
}

func (m *MemoryGateway) FindJobsAwaitingQR(ctx context.Context, limit int) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Job
	for _, j := range m.jobs {
		if j.Status != domain.JobGenerated || j.QRCodePath != "" {
			continue
		}
		b, ok := m.batches[j.BatchID]
		if !ok || !b.HasMRU() || b.TxHash == "" {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return capJobs(out, limit), nil
}

func (m *MemoryGateway) FindJobsAwaitingPDFAugment(ctx context.Context, limit int) ([]*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Job
	for _, j := range m.jobs {
		if j.Status == domain.JobGenerated && j.QRCodePath != "" && j.CertificateWithQRPath == "" && j.CertificatePath != "" {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return capJobs(out, limit), nil
}

func capJobs(jobs []*domain.Job, limit int) []*domain.Job {
	if limit > 0 && len(jobs) > limit {
		return jobs[:limit]
	}
	return jobs
}

func (m *MemoryGateway) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryGateway) UpdateJob(ctx context.Context, job *domain.Job, prevStatus domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.Status != prevStatus {
		return ErrStaleWrite
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MemoryGateway) CreateBatch(ctx context.Context, b *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.batches[b.ID]; exists {
		return ErrImmutableField
	}
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *MemoryGateway) GetBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryGateway) FindBatchesAwaitingMRI(ctx context.Context) ([]*domain.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hasGenerated := make(map[string]bool)
	hasPendingSigning := make(map[string]bool)
	for _, j := range m.jobs {
		switch j.Status {
		case domain.JobGenerated:
			hasGenerated[j.BatchID] = true
		case domain.JobPendingSigning:
			hasPendingSigning[j.BatchID] = true
		}
	}

	var out []*domain.Batch
	for _, b := range m.batches {
		if b.HasMRI() || !hasGenerated[b.ID] || hasPendingSigning[b.ID] {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (m *MemoryGateway) FindBatchesAwaitingMRU(ctx context.Context, limit int) ([]*domain.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Batch
	for _, b := range m.batches {
		if b.SigningStatus == domain.SigningFinalize && !b.HasMRU() {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		ti, tk := out[i].FinalizedAt, out[k].FinalizedAt
		if ti == nil || tk == nil {
			return ti != nil
		}
		return ti.Before(*tk)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryGateway) UpdateBatch(ctx context.Context, b *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.batches[b.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.MerkleRoot != "" && existing.MerkleRoot != b.MerkleRoot {
		return ErrImmutableField
	}
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}
