// Copyright 2025 Justifai
//
// Service holds everything the six loops need and exposes one method
// per stage; Runner.Tick hooks are thin wrappers around these so the
// stages stay independently testable without a running Runner.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/justifai/certify/pkg/anchor"
	"github.com/justifai/certify/pkg/domain"
	"github.com/justifai/certify/pkg/pdf"
	"github.com/justifai/certify/pkg/qr"
	"github.com/justifai/certify/pkg/storage"
	"github.com/justifai/certify/pkg/store"
)

// TemplateRenderer turns a template and the job's data into finished
// PDF bytes. Out of scope per spec: no implementation ships here, only
// the interface P1 calls through.
type TemplateRenderer interface {
	Render(ctx context.Context, tmpl domain.Template, data map[string]any) ([]byte, error)
}

// TemplateSource resolves the tenant and template a batch was created
// against. Out of scope per spec beyond this lookup contract.
type TemplateSource interface {
	GetBatchContext(ctx context.Context, batchID string) (domain.Tenant, domain.Template, error)
}

// AutoSigner supplies an immediate signature for a batch carrying a
// batch-scoped auto-signing key, letting P1 skip the PendingSigning
// hop entirely. Returns ok=false when no such key is configured for
// batchID, which is the common case.
type AutoSigner interface {
	Sign(ctx context.Context, batchID string, fingerprintHash [32]byte) (signatureHex string, ok bool, err error)
}

// ChainAnchorer is the subset of anchor.Client the scheduler needs.
type ChainAnchorer interface {
	Anchor(ctx context.Context, mru [32]byte, timeWindow uint64) (*anchor.Result, error)
}

// Intervals configures each loop's poll period.
type Intervals struct {
	Generate      time.Duration
	Intermediate  time.Duration
	UltimateAnchor time.Duration
	QRArtifact    time.Duration
	PDFAugment    time.Duration
}

// DefaultIntervals matches the teacher's batch-check cadence, scaled
// down for the faster-moving per-job stages.
func DefaultIntervals() Intervals {
	return Intervals{
		Generate:       5 * time.Second,
		Intermediate:   10 * time.Second,
		UltimateAnchor: 30 * time.Second,
		QRArtifact:     5 * time.Second,
		PDFAugment:     5 * time.Second,
	}
}

// Service is the shared state every loop's Tick closes over.
type Service struct {
	Store     store.Gateway
	Storage   storage.Gateway
	Augmentor pdf.Augmentor
	Renderer  TemplateRenderer
	Templates TemplateSource
	Anchor    ChainAnchorer
	AutoSign  AutoSigner // optional
	Clock     store.Clock
	Logger    *log.Logger

	IssuerName       string
	VerifyBaseURL    string
	AnchorTimeWindow uint64
	QROptions        qr.RenderOptions

	RenderConcurrency int
	ClaimBatchSize    int

	dedup      *dedupSet
	renderPool *semaphore
}

// NewService wires a Service and its internal concurrency primitives.
// Call Loops to get the set of scheduler.Loop values to hand to a Runner.
func NewService(s Service) *Service {
	if s.Logger == nil {
		s.Logger = log.Default()
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.RenderConcurrency <= 0 {
		s.RenderConcurrency = 2
	}
	if s.ClaimBatchSize <= 0 {
		s.ClaimBatchSize = 20
	}
	s.dedup = newDedupSet()
	s.renderPool = newSemaphore(s.RenderConcurrency)
	return &s
}

// Loops returns the P1 and P3-P6 polling stages (P2 is SubmitSignature,
// invoked externally), ready to hand to NewRunner. P1 carries a 30s drain so in-flight
// renders finish before shutdown returns.
func (s *Service) Loops(iv Intervals) []Loop {
	return []Loop{
		{Name: "P1 Generate", Interval: iv.Generate, Tick: s.p1Generate, Drain: 30 * time.Second},
		{Name: "P3 Intermediate", Interval: iv.Intermediate, Tick: s.p3Intermediate},
		{Name: "P4 UltimateAnchor", Interval: iv.UltimateAnchor, Tick: s.p4UltimateAnchor},
		{Name: "P5 QRArtifact", Interval: iv.QRArtifact, Tick: s.p5QRArtifact},
		{Name: "P6 PDFAugment", Interval: iv.PDFAugment, Tick: s.p6PDFAugment},
	}
}
