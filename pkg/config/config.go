// Copyright 2025 Justifai
//
// Package config reads the service's environment-variable
// configuration, following the teacher's getEnv*/Load()/Validate()
// split: Load never fails on a missing variable, it fills in defaults;
// Validate is a separate call the composition root makes once, so unit
// tests can build a Config by hand without touching the environment.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"os"
)

// Config holds every environment-driven setting the composition root needs.
type Config struct {
	// Storage (C5)
	StorageDriver  string // "local" or "s3"
	StoragePath    string // local driver root
	S3Bucket       string
	S3Region       string
	AWSEndpoint    string // custom S3-compatible endpoint, e.g. MinIO
	StorageBaseURL string

	// Persistence (C4)
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	DBConnMaxIdle  time.Duration
	DBConnMaxLife  time.Duration

	// Scheduler (C6) poll intervals
	GenerateInterval       time.Duration
	IntermediateInterval   time.Duration
	UltimateAnchorInterval time.Duration
	QRArtifactInterval     time.Duration
	PDFAugmentInterval     time.Duration
	PDFConcurrency         int
	SchedulerClaimBatch    int

	// Blockchain anchor (C7)
	RPCURL             string
	PrivateKey         string
	AnchorContractAddr string
	ContractType       string // "legacy" or "emit_only"
	ChainID            int64
	Network            string
	MinPriorityFeeGwei int64
	MinMaxFeeGwei      int64
	AnchorTimeWindow   uint64

	// Verification / QR (C9/C10)
	VerifyBaseURL   string
	VerifyQRBaseURL string
	IssuerPublicKey string
	IssuerName      string

	QRPNGWidth    int
	QRPDFPNGWidth int
	QRMargin      int
	QRDarkColor   string
	QRLightColor  string
	QRStyle       string

	// HTTP liveness/readiness (A4)
	HealthAddr string
}

// Load reads configuration from the environment, applying safe
// defaults to everything except the handful of values that have no
// safe default (RPC URL, private key, contract address, database
// URL, verify base URL). Those are left empty here and rejected by
// Validate.
func Load() *Config {
	return &Config{
		StorageDriver:  getEnv("STORAGE_DRIVER", "local"),
		StoragePath:    getEnv("STORAGE_PATH", "./data"),
		S3Bucket:       getEnv("S3_BUCKET_NAME", ""),
		S3Region:       getEnv("AWS_REGION", "us-east-1"),
		AWSEndpoint:    getEnv("AWS_ENDPOINT", ""),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", ""),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxOpenConns: getEnvInt("DATABASE_MAX_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
		DBConnMaxIdle:  getEnvDuration("DATABASE_CONN_MAX_IDLE", 5*time.Minute),
		DBConnMaxLife:  getEnvDuration("DATABASE_CONN_MAX_LIFE", time.Hour),

		GenerateInterval:       getEnvDuration("POLL_GENERATE_INTERVAL", 5*time.Second),
		IntermediateInterval:   getEnvDuration("POLL_INTERMEDIATE_INTERVAL", 10*time.Second),
		UltimateAnchorInterval: getEnvDuration("POLL_ULTIMATE_ANCHOR_INTERVAL", 30*time.Second),
		QRArtifactInterval:     getEnvDuration("POLL_QR_INTERVAL", 5*time.Second),
		PDFAugmentInterval:     getEnvDuration("POLL_PDF_AUGMENT_INTERVAL", 5*time.Second),
		PDFConcurrency:         getEnvInt("PDF_CONCURRENCY", 2),
		SchedulerClaimBatch:    getEnvInt("SCHEDULER_CLAIM_BATCH", 20),

		RPCURL:             getEnv("RPC_URL", ""),
		PrivateKey:         getEnv("PRIVATE_KEY", ""),
		AnchorContractAddr: getEnv("ANCHORSTORE_ADDRESS", ""),
		ContractType:       getEnv("CONTRACT_TYPE", "emit_only"),
		ChainID:            getEnvInt64("CHAIN_ID", 11155111),
		Network:            getEnv("NETWORK", "sepolia"),
		MinPriorityFeeGwei: getEnvInt64("MIN_PRIORITY_FEE_GWEI", 1),
		MinMaxFeeGwei:      getEnvInt64("MIN_MAX_FEE_GWEI", 2),
		AnchorTimeWindow:   uint64(getEnvInt64("ANCHOR_TIME_WINDOW_SECONDS", 0)),

		VerifyBaseURL:   getEnv("VERIFY_BASE_URL", ""),
		VerifyQRBaseURL: getEnv("VERIFY_QR_BASE_URL", ""),
		IssuerPublicKey: getEnv("ISSUER_PUBLIC_KEY", ""),
		IssuerName:      getEnv("ISSUER_NAME", "Justifai"),

		QRPNGWidth:    getEnvInt("QR_PNG_WIDTH", 768),
		QRPDFPNGWidth: getEnvInt("QR_PDF_PNG_WIDTH", 256),
		QRMargin:      getEnvInt("QR_MARGIN", 4),
		QRDarkColor:   getEnv("QR_DARK_COLOR", "#000000"),
		QRLightColor:  getEnv("QR_LIGHT_COLOR", "#FFFFFF"),
		QRStyle:       getEnv("QR_STYLE", "classic"),

		HealthAddr: getEnv("HEALTH_ADDR", ":8081"),
	}
}

// Validate checks the variables that have no safe default. Call this
// once at startup, after Load.
func (c *Config) Validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required but not set")
	}
	if c.RPCURL == "" {
		errs = append(errs, "RPC_URL is required but not set")
	}
	if c.PrivateKey == "" {
		errs = append(errs, "PRIVATE_KEY is required but not set")
	}
	if c.AnchorContractAddr == "" {
		errs = append(errs, "ANCHORSTORE_ADDRESS is required but not set")
	}
	if c.ContractType != "legacy" && c.ContractType != "emit_only" {
		errs = append(errs, "CONTRACT_TYPE must be \"legacy\" or \"emit_only\"")
	}
	if c.StorageDriver == "s3" && c.S3Bucket == "" {
		errs = append(errs, "S3_BUCKET_NAME is required when STORAGE_DRIVER=s3")
	}
	if c.VerifyBaseURL == "" {
		errs = append(errs, "VERIFY_BASE_URL is required but not set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
