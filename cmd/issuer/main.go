// Copyright 2025 Justifai
//
// cmd/issuer is the composition root (A5): it loads configuration,
// wires the persistence/storage/anchor drivers, starts the six
// scheduler loops, and serves a minimal liveness/readiness endpoint
// (A4), following the teacher main.go's Load/dial/go Start/signal.Notify
// shutdown shape.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/justifai/certify/pkg/anchor"
	"github.com/justifai/certify/pkg/config"
	"github.com/justifai/certify/pkg/domain"
	"github.com/justifai/certify/pkg/pdf"
	"github.com/justifai/certify/pkg/qr"
	"github.com/justifai/certify/pkg/scheduler"
	"github.com/justifai/certify/pkg/storage"
	"github.com/justifai/certify/pkg/store"
	"github.com/justifai/certify/pkg/verify"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	showHelp := flag.Bool("help", false, "show help message")
	flag.Parse()
	if *showHelp {
		fmt.Println("issuer: runs the certificate issuance and anchoring scheduler")
		flag.PrintDefaults()
		return
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := newHealthStatus()

	gateway, err := store.NewPostgresGateway(ctx, store.Config{
		DatabaseURL:  cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		ConnMaxIdle:  cfg.DBConnMaxIdle,
		ConnMaxLife:  cfg.DBConnMaxLife,
	})
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	health.setComponent("database", "connected")

	blobs, err := newStorageGateway(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	health.setComponent("storage", "connected:"+blobs.Name())

	chain, err := anchor.NewClient(ctx, anchor.Config{
		RPCURL:             cfg.RPCURL,
		PrivateKeyHex:      cfg.PrivateKey,
		ContractAddress:    cfg.AnchorContractAddr,
		ContractType:       anchor.ContractType(cfg.ContractType),
		ChainID:            cfg.ChainID,
		Network:            cfg.Network,
		MinPriorityFeeGwei: cfg.MinPriorityFeeGwei,
		MinMaxFeeGwei:      cfg.MinMaxFeeGwei,
	})
	if err != nil {
		log.Fatalf("anchor client: %v", err)
	}
	health.setComponent("chain", "connected")

	templates := newStaticTemplateSource(cfg)

	svc := scheduler.NewService(scheduler.Service{
		Store:     gateway,
		Storage:   blobs,
		Augmentor: pdf.NewAugmentor(),
		Renderer:  passthroughRenderer{},
		Templates: templates,
		Anchor:    chain,

		IssuerName:       cfg.IssuerName,
		VerifyBaseURL:    cfg.VerifyBaseURL,
		AnchorTimeWindow: cfg.AnchorTimeWindow,
		QROptions: qr.RenderOptions{
			SizePixels: cfg.QRPNGWidth,
			Style:      qr.Style(cfg.QRStyle),
		},
		RenderConcurrency: cfg.PDFConcurrency,
		ClaimBatchSize:    cfg.SchedulerClaimBatch,
	})

	runner := scheduler.NewRunner(
		log.New(log.Writer(), "[scheduler] ", log.LstdFlags),
		svc.Loops(scheduler.Intervals{
			Generate:       cfg.GenerateInterval,
			Intermediate:   cfg.IntermediateInterval,
			UltimateAnchor: cfg.UltimateAnchorInterval,
			QRArtifact:     cfg.QRArtifactInterval,
			PDFAugment:     cfg.PDFAugmentInterval,
		})...,
	)
	runner.Start(ctx)
	health.setComponent("scheduler", "running")
	log.Printf("scheduler: P1 and P3-P6 loops started")

	extractor := pdf.NewExtractor()
	chainVerifier := chainVerifierAdapter{client: chain}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.handleLiveness)
	mux.HandleFunc("/readyz", health.handleReadiness)
	mux.HandleFunc("/v1/jobs/", func(w http.ResponseWriter, r *http.Request) {
		handleSubmitSignature(w, r, svc)
	})
	mux.HandleFunc("/v1/batches", func(w http.ResponseWriter, r *http.Request) {
		handleCreateBatch(w, r, gateway, templates)
	})
	mux.HandleFunc("/v1/verify", func(w http.ResponseWriter, r *http.Request) {
		handleVerify(w, r, extractor, chainVerifier, cfg.IssuerPublicKey, cfg.IssuerName)
	})

	httpServer := &http.Server{Addr: cfg.HealthAddr, Handler: mux}
	go func() {
		log.Printf("http: listening on %s", cfg.HealthAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down...")
	cancel()
	runner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown: %v", err)
	}
	log.Printf("stopped")
}

func newStorageGateway(ctx context.Context, cfg *config.Config) (storage.Gateway, error) {
	if cfg.StorageDriver == "s3" {
		return storage.NewS3Driver(ctx, storage.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.AWSEndpoint,
			BaseURL:  cfg.StorageBaseURL,
		})
	}
	return storage.NewLocalDriver(cfg.StoragePath, cfg.StorageBaseURL), nil
}

// chainVerifierAdapter renames anchor.Client.MatchMRU to the exact
// method name verify.ChainVerifier requires, so that package never
// needs to import this one's richer VerifyResult type.
type chainVerifierAdapter struct {
	client *anchor.Client
}

func (a chainVerifierAdapter) VerifyTransaction(ctx context.Context, txHash, expectedMRU string) (bool, uint64, error) {
	return a.client.MatchMRU(ctx, txHash, expectedMRU)
}

// passthroughRenderer implements scheduler.TemplateRenderer by
// treating job.Data["pdfBase64"] as an already-rendered document, per
// spec's allowance to "render or load uploaded PDF" — HTML-to-PDF
// rendering itself is an external collaborator this repo does not ship.
type passthroughRenderer struct{}

func (passthroughRenderer) Render(_ context.Context, _ domain.Template, data map[string]any) ([]byte, error) {
	raw, _ := data["pdfBase64"].(string)
	if raw == "" {
		return nil, fmt.Errorf("job data has no pdfBase64 field to load")
	}
	return base64.StdEncoding.DecodeString(raw)
}

// staticTemplateSource serves a single issuer-wide tenant/template pair
// built from configuration, a stand-in for the template-authoring
// system the spec places out of scope.
type staticTemplateSource struct {
	tenant domain.Tenant
	tmpl   domain.Template
}

func newStaticTemplateSource(cfg *config.Config) *staticTemplateSource {
	return &staticTemplateSource{
		tenant: domain.Tenant{ID: "default", IssuerPublicKey: cfg.IssuerPublicKey},
		tmpl: domain.Template{
			ID: "default",
			QR: domain.QRPlacement{PageIndex: 0, X: 36, Y: 36, Width: 96, Height: 96},
		},
	}
}

func (s *staticTemplateSource) GetBatchContext(_ context.Context, _ string) (domain.Tenant, domain.Template, error) {
	return s.tenant, s.tmpl, nil
}

// handleCreateBatch is the batch/job intake endpoint: it creates one
// Batch row plus one Job per posted document, handing the six loops
// their first piece of work. Tenant and template are the single
// issuer-wide pair staticTemplateSource serves; ed/ei default to 0
// (no expiry).
func handleCreateBatch(w http.ResponseWriter, r *http.Request, gateway store.Gateway, templates *staticTemplateSource) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Ed        int64            `json:"ed"`
		Ei        int64            `json:"ei"`
		Documents []map[string]any `json:"documents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(body.Documents) == 0 {
		http.Error(w, "documents must contain at least one entry", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	batch := &domain.Batch{
		ID:            uuid.NewString(),
		TenantID:      templates.tenant.ID,
		TemplateID:    templates.tmpl.ID,
		Status:        domain.BatchPending,
		Ed:            body.Ed,
		Ei:            body.Ei,
		SigningStatus: domain.SigningPending,
		CreatedAt:     now,
	}
	if err := gateway.CreateBatch(r.Context(), batch); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jobIDs := make([]string, 0, len(body.Documents))
	for _, data := range body.Documents {
		job := &domain.Job{
			ID:        uuid.NewString(),
			BatchID:   batch.ID,
			Data:      data,
			Status:    domain.JobPending,
			CreatedAt: now,
		}
		if err := gateway.CreateJob(r.Context(), job); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		jobIDs = append(jobIDs, job.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"batchId": batch.ID,
		"jobIds":  jobIDs,
	})
}

func handleSubmitSignature(w http.ResponseWriter, r *http.Request, svc *scheduler.Service) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := trimJobIDSuffix(r.URL.Path, "/signature")
	if jobID == "" {
		http.Error(w, "job id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := svc.SubmitSignature(r.Context(), jobID, body.Signature); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func trimJobIDSuffix(path, suffix string) string {
	const prefix = "/v1/jobs/"
	if len(path) <= len(prefix)+len(suffix) {
		return ""
	}
	if path[len(path)-len(suffix):] != suffix {
		return ""
	}
	return path[len(prefix) : len(path)-len(suffix)]
}

func handleVerify(w http.ResponseWriter, r *http.Request, extractor pdf.Extractor, chain verify.ChainVerifier, issuerPubKey, issuerName string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	defer r.Body.Close()
	candidate, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	result, err := verify.Run(r.Context(), extractor, verify.Input{
		Candidate:          candidate,
		ExpectedIssuerName: issuerName,
		EnvIssuerPubKey:    issuerPubKey,
		Chain:              chain,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// healthStatus tracks per-component connectivity for /healthz and
// /readyz, generalized from the teacher's global HealthStatus to a
// small map rather than one field per named dependency.
type healthStatus struct {
	mu        sync.RWMutex
	component map[string]string
	startedAt time.Time
}

func newHealthStatus() *healthStatus {
	return &healthStatus{component: make(map[string]string), startedAt: time.Now()}
}

func (h *healthStatus) setComponent(name, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.component[name] = status
}

func (h *healthStatus) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

func (h *healthStatus) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"components": h.component,
	})
}

