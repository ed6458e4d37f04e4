// Copyright 2025 Justifai
package store

import (
	"context"
	"testing"
	"time"

	"github.com/justifai/certify/pkg/domain"
)

func TestClaimPendingIsExclusive(t *testing.T) {
	g := NewMemoryGateway()
	g.PutJob(&domain.Job{ID: "j1", BatchID: "b1", Status: domain.JobPending, CreatedAt: time.Now()})

	ctx := context.Background()
	first, err := g.ClaimPending(ctx, 10)
	if err != nil || len(first) != 1 {
		t.Fatalf("expected to claim 1 job, got %v err=%v", first, err)
	}

	second, err := g.ClaimPending(ctx, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected zero rows on second claim, got %d", len(second))
	}
}

func TestCreateJobRejectsDuplicateID(t *testing.T) {
	g := NewMemoryGateway()
	job := &domain.Job{ID: "j1", BatchID: "b1", CreatedAt: time.Now()}
	if err := g.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := g.GetJob(context.Background(), "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.JobPending {
		t.Fatalf("expected default status Pending, got %q", got.Status)
	}

	if err := g.CreateJob(context.Background(), job); err != ErrImmutableField {
		t.Fatalf("expected ErrImmutableField on duplicate id, got %v", err)
	}
}

func TestUpdateJobRejectsStaleWrite(t *testing.T) {
	g := NewMemoryGateway()
	g.PutJob(&domain.Job{ID: "j1", BatchID: "b1", Status: domain.JobGenerated})

	job, _ := g.GetJob(context.Background(), "j1")
	job.Status = domain.JobFailed

	err := g.UpdateJob(context.Background(), job, domain.JobPending)
	if err != ErrStaleWrite {
		t.Fatalf("expected ErrStaleWrite, got %v", err)
	}

	if err := g.UpdateJob(context.Background(), job, domain.JobGenerated); err != nil {
		t.Fatalf("expected update to succeed with correct prevStatus: %v", err)
	}
}

func TestUpdateBatchRejectsMRIMutation(t *testing.T) {
	g := NewMemoryGateway()
	g.PutBatch(&domain.Batch{ID: "b1", MerkleRoot: "abc"})

	b, _ := g.GetBatch(context.Background(), "b1")
	b.MerkleRoot = "def"
	if err := g.UpdateBatch(context.Background(), b); err != ErrImmutableField {
		t.Fatalf("expected ErrImmutableField, got %v", err)
	}
}

func TestFindBatchesAwaitingMRIRespectsPendingSigning(t *testing.T) {
	g := NewMemoryGateway()
	g.PutBatch(&domain.Batch{ID: "b1", CreatedAt: time.Now()})
	g.PutJob(&domain.Job{ID: "j1", BatchID: "b1", Status: domain.JobGenerated, CreatedAt: time.Now()})
	g.PutJob(&domain.Job{ID: "j2", BatchID: "b1", Status: domain.JobPendingSigning, CreatedAt: time.Now()})

	out, err := g.FindBatchesAwaitingMRI(context.Background())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("batch with a PendingSigning job must not be awaiting MRI yet, got %d", len(out))
	}
}
