package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/anchorpq/anchorpq/protocol"
	"github.com/anchorpq/anchorpq/server"
)

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// TrustRecord is one persisted trust entry: the identity of a build
// artifact and one version/variant claim it may make.
type TrustRecord struct {
	MerkleRoot        string           `json:"merkleRoot"`
	SignerFingerprint string           `json:"signerFingerprint"`
	Version           string           `json:"version"`
	Variant           protocol.Variant `json:"variant"`
	Description       string           `json:"description,omitempty"`
}

// Validate checks the record against the payload field rules.
func (r TrustRecord) Validate() error {
	_, err := protocol.NewIntegrityPayload(r.MerkleRoot, r.Version, r.Variant, r.SignerFingerprint)
	return err
}

// PostgresTrustStore implements server.TrustStore with PostgreSQL
// persistence.
type PostgresTrustStore struct {
	db *sql.DB
}

// NewPostgresTrustStore connects, verifies the connection and runs the
// schema migration.
func NewPostgresTrustStore(config *PostgresConfig) (*PostgresTrustStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresTrustStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresTrustStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trust_records (
		merkle_root VARCHAR(64) NOT NULL,
		signer_fingerprint VARCHAR(64) NOT NULL,
		version VARCHAR(128) NOT NULL,
		variant VARCHAR(16) NOT NULL,
		description TEXT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (merkle_root, signer_fingerprint, version, variant)
	);

	CREATE INDEX IF NOT EXISTS idx_trust_identity ON trust_records(merkle_root, signer_fingerprint);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Register persists a trust record, updating the description if the
// claim already exists.
func (s *PostgresTrustStore) Register(ctx context.Context, record TrustRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	query := `
	INSERT INTO trust_records
		(merkle_root, signer_fingerprint, version, variant, description)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (merkle_root, signer_fingerprint, version, variant) DO UPDATE SET
		description = EXCLUDED.description
	`

	_, err := s.db.ExecContext(ctx, query,
		strings.ToLower(record.MerkleRoot),
		strings.ToLower(record.SignerFingerprint),
		record.Version,
		string(record.Variant),
		record.Description,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", server.ErrTrustStoreUnavailable, err)
	}
	return nil
}

// RegisterRecord implements server.TrustRegistrar for records arriving
// over the admin endpoint. Records loaded from a seed file go through
// Register directly and may carry a description.
func (s *PostgresTrustStore) RegisterRecord(ctx context.Context, merkleRoot, signerFingerprint, version string, variant protocol.Variant) error {
	return s.Register(ctx, TrustRecord{
		MerkleRoot:        merkleRoot,
		SignerFingerprint: signerFingerprint,
		Version:           version,
		Variant:           variant,
	})
}

// Lookup implements server.TrustStore. An unknown identity returns a
// nil policy; database failures are wrapped so the service reports the
// store as unavailable rather than denying trust.
func (s *PostgresTrustStore) Lookup(ctx context.Context, merkleRoot, signerFingerprint string) (*server.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, variant
		FROM trust_records
		WHERE merkle_root = $1 AND signer_fingerprint = $2
	`, strings.ToLower(merkleRoot), strings.ToLower(signerFingerprint))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", server.ErrTrustStoreUnavailable, err)
	}
	defer rows.Close()

	var policy *server.Policy
	for rows.Next() {
		var version, variant string
		if err := rows.Scan(&version, &variant); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", server.ErrTrustStoreUnavailable, err)
		}
		if policy == nil {
			policy = server.NewPolicy()
		}
		policy.Allow(version, protocol.Variant(variant))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", server.ErrTrustStoreUnavailable, err)
	}

	return policy, nil
}

// Close closes the database connection.
func (s *PostgresTrustStore) Close() error {
	return s.db.Close()
}
