// Copyright 2025 Justifai
//
// Postgres-backed Gateway implementation. Connection pooling and the
// functional-options constructor follow the teacher's database client;
// table layout is this system's own (jobs/batches), not the teacher's
// anchor-batch schema.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"log"
	"sort"
	"time"

	_ "github.com/lib/pq"

	"github.com/justifai/certify/pkg/domain"
	"github.com/justifai/certify/pkg/errkind"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresGateway is a Gateway backed by a single *sql.DB.
type PostgresGateway struct {
	db     *sql.DB
	logger *log.Logger
}

var _ Gateway = (*PostgresGateway)(nil)

// Option configures a PostgresGateway at construction time.
type Option func(*PostgresGateway)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(g *PostgresGateway) { g.logger = logger }
}

// Config is the subset of connection-pool settings NewPostgresGateway needs.
type Config struct {
	DatabaseURL   string
	MaxOpenConns  int
	MaxIdleConns  int
	ConnMaxIdle   time.Duration
	ConnMaxLife   time.Duration
}

// NewPostgresGateway opens a pooled connection and verifies connectivity.
func NewPostgresGateway(ctx context.Context, cfg Config, opts ...Option) (*PostgresGateway, error) {
	if cfg.DatabaseURL == "" {
		return nil, errkind.New(errkind.Configuration, "database URL is empty")
	}

	g := &PostgresGateway{
		logger: log.New(log.Writer(), "[store] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(g)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, errkind.Wrap(errkind.Persistence, err, "open database")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdle > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdle)
	}
	if cfg.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLife)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errkind.Wrap(errkind.Persistence, err, "ping database")
	}

	g.db = db
	return g, nil
}

// Close releases the underlying connection pool.
func (g *PostgresGateway) Close() error { return g.db.Close() }

// Migrate applies every embedded migration file in lexical order,
// tracked in a schema_migrations table.
func (g *PostgresGateway) Migrate(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version text PRIMARY KEY, applied_at timestamptz NOT NULL)`); err != nil {
		return errkind.Wrap(errkind.Persistence, err, "create schema_migrations table")
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return errkind.Wrap(errkind.Persistence, err, "read migrations")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var applied bool
		if err := g.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, name).Scan(&applied); err != nil {
			return errkind.Wrap(errkind.Persistence, err, "check migration status")
		}
		if applied {
			continue
		}
		sqlBytes, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return errkind.Wrap(errkind.Persistence, err, "read migration "+name)
		}
		tx, err := g.db.BeginTx(ctx, nil)
		if err != nil {
			return errkind.Wrap(errkind.Persistence, err, "begin migration tx")
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			tx.Rollback()
			return errkind.Wrap(errkind.Persistence, err, "apply migration "+name)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, now())`, name); err != nil {
			tx.Rollback()
			return errkind.Wrap(errkind.Persistence, err, "record migration "+name)
		}
		if err := tx.Commit(); err != nil {
			return errkind.Wrap(errkind.Persistence, err, "commit migration "+name)
		}
		g.logger.Printf("applied migration %s", name)
	}
	return nil
}

// CreateJob inserts a new job row with the id, batch and data the
// caller supplies; every other column takes its table default.
func (g *PostgresGateway) CreateJob(ctx context.Context, job *domain.Job) error {
	dataJSON, err := json.Marshal(job.Data)
	if err != nil {
		return errkind.WrapJob(errkind.Validation, err, job.ID, "marshal job data")
	}
	status := job.Status
	if status == "" {
		status = domain.JobPending
	}
	_, err = g.db.ExecContext(ctx, `
		INSERT INTO jobs (id, batch_id, data, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.BatchID, string(dataJSON), status, job.CreatedAt)
	if err != nil {
		return errkind.WrapJob(errkind.Persistence, err, job.ID, "create job")
	}
	return nil
}

// ClaimPending implements JobRepository.ClaimPending with a single
// conditional UPDATE ... RETURNING so a losing worker sees zero rows.
func (g *PostgresGateway) ClaimPending(ctx context.Context, limit int) ([]*domain.Job, error) {
	rows, err := g.db.QueryContext(ctx, `
		UPDATE jobs SET status = 'Processing'
		WHERE id IN (
			SELECT id FROM jobs WHERE status = 'Pending'
			ORDER BY created_at ASC LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, limit)
	if err != nil {
		return nil, errkind.Wrap(errkind.Persistence, err, "claim pending jobs")
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (g *PostgresGateway) FindPendingSignature(ctx context.Context, batchID string) ([]*domain.Job, error) {
	return g.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE batch_id = $1 AND status = 'PendingSigning' ORDER BY created_at ASC`, batchID)
}

func (g *PostgresGateway) FindSignedJobs(ctx context.Context, batchID string) ([]*domain.Job, error) {
	return g.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE batch_id = $1 AND status = 'Generated' ORDER BY created_at ASC`, batchID)
}

func (g *PostgresGateway) FindJobsByBatch(ctx context.Context, batchID string) ([]*domain.Job, error) {
	return g.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE batch_id = $1 ORDER BY created_at ASC`, batchID)
}

func (g *PostgresGateway) FindJobsAwaitingQR(ctx context.Context, limit int) ([]*domain.Job, error) {
	return g.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs j
		JOIN batches b ON b.id = j.batch_id
		WHERE j.status = 'Generated' AND j.qr_code_path = ''
		  AND b.merkle_root_ultimate <> '' AND b.tx_hash <> ''
		ORDER BY j.created_at ASC LIMIT $1`, limit)
}

func (g *PostgresGateway) FindJobsAwaitingPDFAugment(ctx context.Context, limit int) ([]*domain.Job, error) {
	return g.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = 'Generated' AND qr_code_path <> '' AND certificate_with_qr_path = '' AND certificate_path <> ''
		ORDER BY created_at ASC LIMIT $1`, limit)
}

func (g *PostgresGateway) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	jobs, err := g.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrNotFound
	}
	return jobs[0], nil
}

func (g *PostgresGateway) UpdateJob(ctx context.Context, job *domain.Job, prevStatus domain.JobStatus) error {
	dataJSON, err := json.Marshal(job.Data)
	if err != nil {
		return errkind.Wrap(errkind.Validation, err, "marshal job data")
	}
	mpi, _ := json.Marshal(job.MerkleProofIntermediate)
	mpu, _ := json.Marshal(job.MerkleProofUltimate)

	res, err := g.db.ExecContext(ctx, `
		UPDATE jobs SET
			status = $1, error_message = $2, certificate_path = $3, qr_code_path = $4,
			certificate_with_qr_path = $5, document_hash = $6, data_hash = $7,
			document_fingerprint = $8, fingerprint_hash = $9, issuer_signature = $10,
			merkle_leaf = $11, merkle_proof_intermediate = $12, merkle_proof_ultimate = $13,
			verification_bundle = $14, qr_payload_fragment = $15, data = $16
		WHERE id = $17 AND status = $18`,
		job.Status, job.ErrorMessage, job.CertificatePath, job.QRCodePath,
		job.CertificateWithQRPath, job.DocumentHash, job.DataHash,
		job.DocumentFingerprint, job.FingerprintHash, job.IssuerSignature,
		job.MerkleLeaf, string(mpi), string(mpu),
		job.VerificationBundle, job.QRPayloadFragment, string(dataJSON),
		job.ID, prevStatus)
	if err != nil {
		return errkind.Wrap(errkind.Persistence, err, "update job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errkind.Wrap(errkind.Persistence, err, "rows affected")
	}
	if n == 0 {
		return ErrStaleWrite
	}
	return nil
}

func (g *PostgresGateway) CreateBatch(ctx context.Context, b *domain.Batch) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO batches (id, tenant_id, template_id, status, ed, ei, issuer_public_key, signing_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.TenantID, b.TemplateID, b.Status, b.Ed, b.Ei, b.IssuerPublicKey, b.SigningStatus, b.CreatedAt)
	if err != nil {
		return errkind.Wrap(errkind.Persistence, err, "create batch")
	}
	return nil
}

func (g *PostgresGateway) GetBatch(ctx context.Context, batchID string) (*domain.Batch, error) {
	batches, err := g.queryBatches(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, batchID)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, ErrNotFound
	}
	return batches[0], nil
}

func (g *PostgresGateway) FindBatchesAwaitingMRI(ctx context.Context) ([]*domain.Batch, error) {
	return g.queryBatches(ctx, `
		SELECT `+batchColumns+` FROM batches b
		WHERE b.merkle_root = ''
		  AND EXISTS (SELECT 1 FROM jobs j WHERE j.batch_id = b.id AND j.status = 'Generated')
		  AND NOT EXISTS (SELECT 1 FROM jobs j WHERE j.batch_id = b.id AND j.status = 'PendingSigning')
		ORDER BY b.created_at ASC`)
}

func (g *PostgresGateway) FindBatchesAwaitingMRU(ctx context.Context, limit int) ([]*domain.Batch, error) {
	return g.queryBatches(ctx, `
		SELECT `+batchColumns+` FROM batches
		WHERE signing_status = 'Finalized' AND merkle_root_ultimate = ''
		ORDER BY finalized_at ASC LIMIT $1`, limit)
}

func (g *PostgresGateway) UpdateBatch(ctx context.Context, b *domain.Batch) error {
	mpu, _ := json.Marshal(b.MerkleProofUltimate)
	res, err := g.db.ExecContext(ctx, `
		UPDATE batches SET
			status = $1, issuer_public_key = $2, merkle_root = $3, merkle_root_ultimate = $4,
			merkle_proof_ultimate = $5, tx_hash = $6, network = $7, signing_status = $8, finalized_at = $9
		WHERE id = $10 AND (merkle_root = '' OR merkle_root = $3)`,
		b.Status, b.IssuerPublicKey, b.MerkleRoot, b.MerkleRootUltimate,
		string(mpu), b.TxHash, b.Network, b.SigningStatus, b.FinalizedAt, b.ID)
	if err != nil {
		return errkind.Wrap(errkind.Persistence, err, "update batch")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errkind.Wrap(errkind.Persistence, err, "rows affected")
	}
	if n == 0 {
		return ErrImmutableField
	}
	return nil
}

const jobColumns = `id, batch_id, data, status, error_message, certificate_path, qr_code_path,
	certificate_with_qr_path, document_hash, data_hash, document_fingerprint, fingerprint_hash,
	issuer_signature, merkle_leaf, merkle_proof_intermediate, merkle_proof_ultimate,
	verification_bundle, qr_payload_fragment, created_at`

const batchColumns = `id, tenant_id, template_id, status, ed, ei, issuer_public_key, merkle_root,
	merkle_root_ultimate, merkle_proof_ultimate, tx_hash, network, signing_status, finalized_at, created_at`

func (g *PostgresGateway) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errkind.Wrap(errkind.Persistence, err, "query jobs")
	}
	defer rows.Close()
	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]*domain.Job, error) {
	var out []*domain.Job
	for rows.Next() {
		j := &domain.Job{}
		var dataJSON, mpiJSON, mpuJSON string
		if err := rows.Scan(
			&j.ID, &j.BatchID, &dataJSON, &j.Status, &j.ErrorMessage, &j.CertificatePath, &j.QRCodePath,
			&j.CertificateWithQRPath, &j.DocumentHash, &j.DataHash, &j.DocumentFingerprint, &j.FingerprintHash,
			&j.IssuerSignature, &j.MerkleLeaf, &mpiJSON, &mpuJSON,
			&j.VerificationBundle, &j.QRPayloadFragment, &j.CreatedAt,
		); err != nil {
			return nil, errkind.Wrap(errkind.Persistence, err, "scan job")
		}
		if dataJSON != "" {
			json.Unmarshal([]byte(dataJSON), &j.Data)
		}
		if mpiJSON != "" {
			json.Unmarshal([]byte(mpiJSON), &j.MerkleProofIntermediate)
		}
		if mpuJSON != "" {
			json.Unmarshal([]byte(mpuJSON), &j.MerkleProofUltimate)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (g *PostgresGateway) queryBatches(ctx context.Context, query string, args ...any) ([]*domain.Batch, error) {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errkind.Wrap(errkind.Persistence, err, "query batches")
	}
	defer rows.Close()

	var out []*domain.Batch
	for rows.Next() {
		b := &domain.Batch{}
		var mpuJSON string
		var finalizedAt sql.NullTime
		if err := rows.Scan(
			&b.ID, &b.TenantID, &b.TemplateID, &b.Status, &b.Ed, &b.Ei, &b.IssuerPublicKey, &b.MerkleRoot,
			&b.MerkleRootUltimate, &mpuJSON, &b.TxHash, &b.Network, &b.SigningStatus, &finalizedAt, &b.CreatedAt,
		); err != nil {
			return nil, errkind.Wrap(errkind.Persistence, err, "scan batch")
		}
		if mpuJSON != "" {
			json.Unmarshal([]byte(mpuJSON), &b.MerkleProofUltimate)
		}
		if finalizedAt.Valid {
			t := finalizedAt.Time
			b.FinalizedAt = &t
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
