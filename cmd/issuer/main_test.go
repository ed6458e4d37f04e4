// Copyright 2025 Justifai
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/justifai/certify/pkg/domain"
	"github.com/justifai/certify/pkg/store"
)

func TestTrimJobIDSuffix(t *testing.T) {
	cases := []struct {
		path, suffix, want string
	}{
		{"/v1/jobs/abc123/signature", "/signature", "abc123"},
		{"/v1/jobs//signature", "/signature", ""},
		{"/v1/jobs/abc123/other", "/signature", ""},
		{"/signature", "/signature", ""},
	}
	for _, c := range cases {
		if got := trimJobIDSuffix(c.path, c.suffix); got != c.want {
			t.Errorf("trimJobIDSuffix(%q, %q) = %q, want %q", c.path, c.suffix, got, c.want)
		}
	}
}

func newTestTemplateSource() *staticTemplateSource {
	return &staticTemplateSource{
		tenant: domain.Tenant{ID: "default", IssuerPublicKey: "pub"},
		tmpl:   domain.Template{ID: "default"},
	}
}

func TestHandleCreateBatchCreatesBatchAndJobs(t *testing.T) {
	gateway := store.NewMemoryGateway()
	templates := newTestTemplateSource()

	body := `{"ed":0,"ei":0,"documents":[{"name":"a"},{"name":"b"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	handleCreateBatch(rec, req, gateway, templates)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		BatchID string   `json:"batchId"`
		JobIDs  []string `json:"jobIds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.BatchID == "" {
		t.Fatalf("expected a batch id in the response")
	}
	if len(resp.JobIDs) != 2 {
		t.Fatalf("expected 2 job ids, got %d", len(resp.JobIDs))
	}

	batch, err := gateway.GetBatch(context.Background(), resp.BatchID)
	if err != nil {
		t.Fatalf("get batch: %v", err)
	}
	if batch.TenantID != "default" || batch.TemplateID != "default" {
		t.Fatalf("expected batch to use the static tenant/template pair, got %+v", batch)
	}

	for _, id := range resp.JobIDs {
		job, err := gateway.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("get job %s: %v", id, err)
		}
		if job.BatchID != resp.BatchID {
			t.Fatalf("expected job %s to reference batch %s, got %s", id, resp.BatchID, job.BatchID)
		}
		if job.Status != domain.JobPending {
			t.Fatalf("expected job %s to be Pending, got %s", id, job.Status)
		}
	}
}

func TestHandleCreateBatchRejectsEmptyDocuments(t *testing.T) {
	gateway := store.NewMemoryGateway()
	templates := newTestTemplateSource()

	req := httptest.NewRequest(http.MethodPost, "/v1/batches", bytes.NewBufferString(`{"documents":[]}`))
	rec := httptest.NewRecorder()

	handleCreateBatch(rec, req, gateway, templates)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty documents, got %d", rec.Code)
	}
}

func TestHandleCreateBatchRejectsNonPost(t *testing.T) {
	gateway := store.NewMemoryGateway()
	templates := newTestTemplateSource()

	req := httptest.NewRequest(http.MethodGet, "/v1/batches", nil)
	rec := httptest.NewRecorder()

	handleCreateBatch(rec, req, gateway, templates)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
}
