// Copyright 2025 Justifai
package scheduler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/justifai/certify/pkg/content"
	"github.com/justifai/certify/pkg/domain"
	"github.com/justifai/certify/pkg/errkind"
	"github.com/justifai/certify/pkg/fingerprint"
	"github.com/justifai/certify/pkg/hashkernel"
	"github.com/justifai/certify/pkg/merkle"
	"github.com/justifai/certify/pkg/pdf"
	"github.com/justifai/certify/pkg/qr"
	"github.com/justifai/certify/pkg/storage"
	"github.com/justifai/certify/pkg/verify"
)

// p1Generate renders (or loads) each claimed job's PDF, computes
// H(d)/DI/H(DI), and opportunistically signs+leafs it when a
// batch-scoped auto-signing key is configured. Bounded by
// renderPool; a job already being rendered by a prior, still-running
// tick is skipped via dedup rather than claimed twice.
func (s *Service) p1Generate(ctx context.Context) error {
	jobs, err := s.Store.ClaimPending(ctx, s.ClaimBatchSize)
	if err != nil {
		return errkind.Wrap(errkind.Persistence, err, "claim pending jobs")
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		if !s.dedup.tryAdd(job.ID) {
			continue
		}
		wg.Add(1)
		go func(job *domain.Job) {
			defer wg.Done()
			defer s.dedup.remove(job.ID)
			s.renderPool.acquire()
			defer s.renderPool.release()
			if err := s.generateOne(ctx, job); err != nil {
				s.Logger.Printf("P1: job %s: %v", job.ID, err)
				job.Status = domain.JobFailed
				job.ErrorMessage = err.Error()
				if uerr := s.Store.UpdateJob(ctx, job, domain.JobProcessing); uerr != nil {
					s.Logger.Printf("P1: job %s: failed to persist failure: %v", job.ID, uerr)
				}
			}
		}(job)
	}
	wg.Wait()
	return nil
}

func (s *Service) generateOne(ctx context.Context, job *domain.Job) error {
	batch, err := s.Store.GetBatch(ctx, job.BatchID)
	if err != nil {
		return errkind.WrapJob(errkind.Persistence, err, job.ID, "load batch")
	}

	_, tmpl, err := s.Templates.GetBatchContext(ctx, job.BatchID)
	if err != nil {
		return errkind.WrapJob(errkind.Persistence, err, job.ID, "load template")
	}

	pdfBytes, err := s.Renderer.Render(ctx, tmpl, job.Data)
	if err != nil {
		return errkind.WrapJob(errkind.PDF, err, job.ID, "render document")
	}

	path, err := s.Storage.Store(ctx, pdfBytes, batch.TenantID, batch.ID, job.ID, storage.Options{})
	if err != nil {
		return errkind.WrapJob(errkind.Storage, err, job.ID, "store certificate")
	}

	documentHash := hashkernel.H(pdfBytes)
	di := fingerprint.Encode(documentHash, batch.Ed, batch.Ei)
	hdi := fingerprint.Hash(di)

	dataHash, err := content.Hash(pdf.ExtractTextLayerPages(pdfBytes, content.MaxPages))
	if err != nil {
		s.Logger.Printf("P1: job %s: content hash best-effort failure: %v", job.ID, err)
		dataHash = ""
	}

	job.CertificatePath = path
	job.DocumentHash = hex.EncodeToString(documentHash[:])
	job.DataHash = dataHash
	job.DocumentFingerprint = hex.EncodeToString(di[:])
	job.FingerprintHash = hex.EncodeToString(hdi[:])
	job.Status = domain.JobPendingSigning

	if s.AutoSign != nil {
		if sigHex, ok, signErr := s.AutoSign.Sign(ctx, job.BatchID, hdi); signErr == nil && ok {
			leaf := hashkernel.H([]byte(sigHex))
			job.IssuerSignature = sigHex
			job.MerkleLeaf = hex.EncodeToString(leaf[:])
			job.Status = domain.JobGenerated
		}
	}

	return s.Store.UpdateJob(ctx, job, domain.JobProcessing)
}

// SubmitSignature is P2: not a polling loop but an externally invoked
// transition (an HTTP handler calls this directly), per spec's "P2
// Sign intake | external". It validates status, computes L = H(SI),
// and moves the job to Generated.
func (s *Service) SubmitSignature(ctx context.Context, jobID, signatureHex string) error {
	job, err := s.Store.GetJob(ctx, jobID)
	if err != nil {
		return errkind.WrapJob(errkind.Persistence, err, jobID, "load job")
	}
	if !job.ReadyForSignatureIntake() {
		return errkind.WrapJob(errkind.State, errkind.New(errkind.State, "job is not awaiting a signature"), jobID, "submit signature")
	}

	leaf := hashkernel.H([]byte(signatureHex))
	prevStatus := job.Status
	job.IssuerSignature = signatureHex
	job.MerkleLeaf = hex.EncodeToString(leaf[:])
	job.Status = domain.JobGenerated

	return s.Store.UpdateJob(ctx, job, prevStatus)
}

// p3Intermediate builds the per-batch intermediate tree once every
// Generated job in a batch has a leaf and no PendingSigning jobs
// remain, writing MRI and each job's MPI.
func (s *Service) p3Intermediate(ctx context.Context) error {
	batches, err := s.Store.FindBatchesAwaitingMRI(ctx)
	if err != nil {
		return errkind.Wrap(errkind.Persistence, err, "find batches awaiting MRI")
	}

	for _, batch := range batches {
		jobs, err := s.Store.FindSignedJobs(ctx, batch.ID)
		if err != nil {
			s.Logger.Printf("P3: batch %s: %v", batch.ID, err)
			continue
		}
		if len(jobs) == 0 {
			continue
		}
		sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })

		leaves := make([]merkle.Leaf, len(jobs))
		for i, job := range jobs {
			leaf, err := hashkernel.DecodeHash(job.MerkleLeaf)
			if err != nil {
				s.Logger.Printf("P3: batch %s: job %s has an invalid leaf, skipping batch: %v", batch.ID, job.ID, err)
				leaves = nil
				break
			}
			leaves[i] = leaf
		}
		if leaves == nil {
			continue
		}

		tree, err := merkle.Build(leaves)
		if err != nil {
			s.Logger.Printf("P3: batch %s: %v", batch.ID, err)
			continue
		}

		root := tree.Root()
		now := s.Clock()
		batch.MerkleRoot = hex.EncodeToString(root[:])
		batch.SigningStatus = domain.SigningFinalize
		batch.FinalizedAt = &now
		if err := s.Store.UpdateBatch(ctx, batch); err != nil {
			s.Logger.Printf("P3: batch %s: persist MRI: %v", batch.ID, err)
			continue
		}

		for i, job := range jobs {
			proof, err := tree.Proof(i)
			if err != nil {
				s.Logger.Printf("P3: batch %s: job %s: build proof: %v", batch.ID, job.ID, err)
				continue
			}
			job.MerkleProofIntermediate = proof.HexSlice()
			if err := s.Store.UpdateJob(ctx, job, job.Status); err != nil {
				s.Logger.Printf("P3: batch %s: job %s: persist MPI: %v", batch.ID, job.ID, err)
			}
		}
	}
	return nil
}

// p4UltimateAnchor builds the cross-batch ultimate tree across every
// Finalized batch lacking an MRU, submits MRU on-chain, and on success
// fans MPU back out to every job — clearing certificateWithQRPath so
// P6 re-augments with the now-available anchor data. Anchor failure is
// logged and retried on the next tick; MRU/MPU are never written
// without a confirmed transaction.
func (s *Service) p4UltimateAnchor(ctx context.Context) error {
	batches, err := s.Store.FindBatchesAwaitingMRU(ctx, s.ClaimBatchSize)
	if err != nil {
		return errkind.Wrap(errkind.Persistence, err, "find batches awaiting MRU")
	}
	if len(batches) == 0 {
		return nil
	}

	mris := make([]merkle.Leaf, len(batches))
	for i, b := range batches {
		leaf, err := hashkernel.DecodeHash(b.MerkleRoot)
		if err != nil {
			return errkind.WrapBatch(errkind.Merkle, err, b.ID, "decode MRI for ultimate tree")
		}
		mris[i] = leaf
	}

	tree, err := merkle.BuildUltimate(mris)
	if err != nil {
		return errkind.Wrap(errkind.Merkle, err, "build ultimate tree")
	}
	mru := tree.Root()

	// timeWindow is the oldest FinalizedAt in this set; AnchorTimeWindow
	// is used only when no batch carries one.
	timeWindow := s.AnchorTimeWindow
	oldest := batches[0].FinalizedAt
	for _, b := range batches[1:] {
		if b.FinalizedAt != nil && (oldest == nil || b.FinalizedAt.Before(*oldest)) {
			oldest = b.FinalizedAt
		}
	}
	if oldest != nil {
		timeWindow = uint64(oldest.Unix())
	}

	result, err := s.Anchor.Anchor(ctx, mru, timeWindow)
	if err != nil {
		s.Logger.Printf("P4: anchor submission failed, MRU/MPU withheld, retrying next tick: %v", err)
		return nil
	}

	for i, batch := range batches {
		proof, err := tree.ProofForLeaf(mris[i])
		if err != nil {
			s.Logger.Printf("P4: batch %s: build MPU: %v", batch.ID, err)
			continue
		}

		batch.MerkleRootUltimate = hex.EncodeToString(mru[:])
		batch.MerkleProofUltimate = proof.HexSlice()
		batch.TxHash = result.TxHash
		batch.Network = result.Network
		if err := s.Store.UpdateBatch(ctx, batch); err != nil {
			s.Logger.Printf("P4: batch %s: persist MRU: %v", batch.ID, err)
			continue
		}

		jobs, err := s.Store.FindJobsByBatch(ctx, batch.ID)
		if err != nil {
			s.Logger.Printf("P4: batch %s: load jobs for MPU fan-out: %v", batch.ID, err)
			continue
		}
		for _, job := range jobs {
			job.MerkleProofUltimate = proof.HexSlice()
			job.CertificateWithQRPath = ""
			if err := s.Store.UpdateJob(ctx, job, job.Status); err != nil {
				s.Logger.Printf("P4: batch %s: job %s: persist MPU: %v", batch.ID, job.ID, err)
			}
		}
	}
	return nil
}

// p5QRArtifact builds the v2 QR payload for every Generated job whose
// batch now has an anchor, renders the PNG through the adaptive ECL
// ladder, and stores it.
func (s *Service) p5QRArtifact(ctx context.Context) error {
	jobs, err := s.Store.FindJobsAwaitingQR(ctx, s.ClaimBatchSize)
	if err != nil {
		return errkind.Wrap(errkind.Persistence, err, "find jobs awaiting QR")
	}

	for _, job := range jobs {
		batch, err := s.Store.GetBatch(ctx, job.BatchID)
		if err != nil {
			s.Logger.Printf("P5: job %s: load batch: %v", job.ID, err)
			continue
		}
		if !batch.HasMRU() || batch.TxHash == "" {
			continue
		}

		tenant, tmpl, err := s.Templates.GetBatchContext(ctx, job.BatchID)
		if err != nil {
			s.Logger.Printf("P5: job %s: load template context: %v", job.ID, err)
			continue
		}

		payload, err := qr.Build(qr.BuildInput{
			JobID:              job.ID,
			BatchID:            batch.ID,
			TenantID:           batch.TenantID,
			TemplateID:         batch.TemplateID,
			TemplateContent:    tmpl.HTML,
			Data:               job.Data,
			DeclaredFieldNames: tmpl.ParamNames,
			DocumentHash:       job.DocumentHash,
			TxHash:             batch.TxHash,
			Network:            batch.Network,
			MPU:                job.MerkleProofUltimate,
			MPI:                job.MerkleProofIntermediate,
			IssuerID:           tenant.ID,
			IssuerPublicKey:    tenant.IssuerPublicKey,
			MRI:                batch.MerkleRoot,
			MRU:                batch.MerkleRootUltimate,
			Ed:                 batch.Ed,
			Ei:                 batch.Ei,
			SI:                 job.IssuerSignature,
		})
		if err != nil {
			s.Logger.Printf("P5: job %s: build payload: %v", job.ID, err)
			continue
		}

		png, fragment, err := qr.BuildWithFallback(payload, s.VerifyBaseURL, s.QROptions)
		if err != nil {
			s.Logger.Printf("P5: job %s: render QR: %v", job.ID, err)
			continue
		}

		path, err := s.Storage.Store(ctx, png, batch.TenantID, batch.ID, job.ID, storage.Options{
			Folder: "qrcodes", Extension: ".png", ContentType: "image/png",
		})
		if err != nil {
			s.Logger.Printf("P5: job %s: store QR: %v", job.ID, err)
			continue
		}

		job.QRCodePath = path
		job.QRPayloadFragment = fragment
		if err := s.Store.UpdateJob(ctx, job, job.Status); err != nil {
			s.Logger.Printf("P5: job %s: persist QR fields: %v", job.ID, err)
		}
	}
	return nil
}

// p6PDFAugment attaches the original PDF and verification bundle,
// stamps the QR image, marks, and rewrites metadata on every job whose
// QR artifact is ready. When every job in a batch is augmented and the
// batch has a txHash, the batch is marked Completed.
func (s *Service) p6PDFAugment(ctx context.Context) error {
	jobs, err := s.Store.FindJobsAwaitingPDFAugment(ctx, s.ClaimBatchSize)
	if err != nil {
		return errkind.Wrap(errkind.Persistence, err, "find jobs awaiting PDF augment")
	}

	touchedBatches := make(map[string]struct{})
	for _, job := range jobs {
		batch, err := s.Store.GetBatch(ctx, job.BatchID)
		if err != nil {
			s.Logger.Printf("P6: job %s: load batch: %v", job.ID, err)
			continue
		}
		if err := s.augmentOne(ctx, batch, job); err != nil {
			s.Logger.Printf("P6: job %s: %v", job.ID, err)
			continue
		}
		touchedBatches[batch.ID] = struct{}{}
	}

	for batchID := range touchedBatches {
		s.maybeCompleteBatch(ctx, batchID)
	}
	return nil
}

func (s *Service) augmentOne(ctx context.Context, batch *domain.Batch, job *domain.Job) error {
	_, tmpl, err := s.Templates.GetBatchContext(ctx, job.BatchID)
	if err != nil {
		return errkind.WrapJob(errkind.Persistence, err, job.ID, "load template context")
	}

	original, err := s.Storage.Retrieve(ctx, job.CertificatePath)
	if err != nil {
		return errkind.WrapJob(errkind.Storage, err, job.ID, "retrieve certificate")
	}
	qrPNG, err := s.Storage.Retrieve(ctx, job.QRCodePath)
	if err != nil {
		return errkind.WrapJob(errkind.Storage, err, job.ID, "retrieve QR image")
	}

	bundle := verify.Bundle{
		DocumentHash:            job.DocumentHash,
		DocumentFingerprint:     job.DocumentFingerprint,
		FingerprintHash:         job.FingerprintHash,
		IssuerSignature:         job.IssuerSignature,
		MerkleLeaf:              job.MerkleLeaf,
		ExpiryDate:              fingerprint.ExpiryToISO(batch.Ed),
		InvalidationExpiry:      fingerprint.ExpiryToISO(batch.Ei),
		IssuerID:                batch.TenantID,
		IssuerPublicKey:         batch.IssuerPublicKey,
		MerkleProofIntermediate: job.MerkleProofIntermediate,
		MerkleRootIntermediate:  batch.MerkleRoot,
		MerkleRootUltimate:      batch.MerkleRootUltimate,
		MerkleProofUltimate:     job.MerkleProofUltimate,
		TxHash:                  batch.TxHash,
		Network:                 batch.Network,
	}
	vdJSON, err := json.Marshal(bundle)
	if err != nil {
		return errkind.WrapJob(errkind.PDF, err, job.ID, "marshal verification bundle")
	}

	augmented, err := s.Augmentor.Augment(pdf.AugmentInput{
		Original:           original,
		QRImagePNG:         qrPNG,
		VerificationBundle: vdJSON,
		Placement: pdf.Placement{
			PageIndex: tmpl.QR.PageIndex,
			X:         tmpl.QR.X,
			Y:         tmpl.QR.Y,
			Width:     tmpl.QR.Width,
			Height:    tmpl.QR.Height,
		},
		IssuerName: s.IssuerName,
		Now:        s.Clock(),
	})
	if err != nil {
		return errkind.WrapJob(errkind.PDF, err, job.ID, "augment PDF")
	}

	path, err := s.Storage.Store(ctx, augmented, batch.TenantID, batch.ID, job.ID, storage.Options{Folder: "augmented"})
	if err != nil {
		return errkind.WrapJob(errkind.Storage, err, job.ID, "store augmented PDF")
	}

	job.CertificateWithQRPath = path
	job.VerificationBundle = string(vdJSON)
	return s.Store.UpdateJob(ctx, job, job.Status)
}

func (s *Service) maybeCompleteBatch(ctx context.Context, batchID string) {
	batch, err := s.Store.GetBatch(ctx, batchID)
	if err != nil {
		s.Logger.Printf("P6: batch %s: reload for completion check: %v", batchID, err)
		return
	}
	if batch.TxHash == "" {
		return
	}

	jobs, err := s.Store.FindJobsByBatch(ctx, batchID)
	if err != nil {
		s.Logger.Printf("P6: batch %s: load jobs for completion check: %v", batchID, err)
		return
	}
	for _, job := range jobs {
		if job.CertificateWithQRPath == "" {
			return
		}
	}

	batch.Status = domain.BatchCompleted
	if err := s.Store.UpdateBatch(ctx, batch); err != nil {
		s.Logger.Printf("P6: batch %s: persist Completed: %v", batchID, err)
	}
}
