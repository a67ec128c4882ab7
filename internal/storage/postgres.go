/**
 * PostgreSQL remote store for the SIRIM capture worker
 *
 * Holds the shared copy of every owner's records in sirim.records. The
 * coordinator pushes unsynced local records here and pulls the owner's
 * records back for recency-wins reconciliation.
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/errors"
	"github.com/adverant/nexus/sirim-worker/internal/processor"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresRemote handles remote record operations
type PostgresRemote struct {
	db *sql.DB
}

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS sirim;
	CREATE TABLE IF NOT EXISTS sirim.records (
		id                TEXT PRIMARY KEY,
		owner_id          TEXT NOT NULL,
		sirim_serial_no   TEXT NOT NULL,
		batch_no          TEXT,
		brand_trademark   TEXT,
		model             TEXT,
		type              TEXT,
		rating            TEXT,
		pack_size         TEXT,
		image_url         TEXT,
		confidence_score  NUMERIC(5,4) NOT NULL DEFAULT 0,
		validation_status TEXT NOT NULL DEFAULT 'pending',
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS records_owner_idx ON sirim.records (owner_id, created_at DESC);
`

// sanitizeConfidence rounds confidence to 4 decimal places and clamps it to
// [0,1] so it fits NUMERIC(5,4)
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	v, _ := decimal.NewFromFloat(confidence).Round(4).Float64()
	return v
}

// NewPostgresRemote creates a new PostgreSQL remote store
func NewPostgresRemote(databaseURL string) (*PostgresRemote, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Sync runs one cycle at a time; a small pool is enough
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// The remote is allowed to be unreachable at startup. Connectivity is
	// probed before every sync operation instead.
	return &PostgresRemote{db: db}, nil
}

// EnsureSchema creates the records table if it does not exist
func (p *PostgresRemote) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping reports whether the remote database is reachable
func (p *PostgresRemote) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresRemote) Close() error {
	return p.db.Close()
}

// Upsert writes rec into the remote store keyed by its id
func (p *PostgresRemote) Upsert(ctx context.Context, rec Record) error {
	if rec.SerialNo == nil || *rec.SerialNo == "" {
		return errors.NewInvalidRecordError(rec.ID, "serial number is required")
	}

	query := `
		INSERT INTO sirim.records (
			id, owner_id, sirim_serial_no, batch_no, brand_trademark,
			model, type, rating, pack_size, image_url,
			confidence_score, validation_status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11::NUMERIC(5,4), $12, $13, $14
		)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			sirim_serial_no = EXCLUDED.sirim_serial_no,
			batch_no = EXCLUDED.batch_no,
			brand_trademark = EXCLUDED.brand_trademark,
			model = EXCLUDED.model,
			type = EXCLUDED.type,
			rating = EXCLUDED.rating,
			pack_size = EXCLUDED.pack_size,
			image_url = EXCLUDED.image_url,
			confidence_score = EXCLUDED.confidence_score,
			validation_status = EXCLUDED.validation_status,
			updated_at = EXCLUDED.updated_at
	`
	_, err := p.db.ExecContext(ctx, query, recordArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to upsert record (id=%s, confidence=%.4f): %w",
			rec.ID, sanitizeConfidence(rec.Confidence), err)
	}
	return nil
}

// Update replaces the remote copy of rec. Returns errors.ErrRemoteNotFound
// when the remote store does not hold the record.
func (p *PostgresRemote) Update(ctx context.Context, rec Record) error {
	if rec.SerialNo == nil || *rec.SerialNo == "" {
		return errors.NewInvalidRecordError(rec.ID, "serial number is required")
	}

	query := `
		UPDATE sirim.records SET
			owner_id = $2,
			sirim_serial_no = $3,
			batch_no = $4,
			brand_trademark = $5,
			model = $6,
			type = $7,
			rating = $8,
			pack_size = $9,
			image_url = $10,
			confidence_score = $11::NUMERIC(5,4),
			validation_status = $12,
			created_at = $13,
			updated_at = $14
		WHERE id = $1
	`
	res, err := p.db.ExecContext(ctx, query, recordArgs(rec)...)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for %s: %w", rec.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", rec.ID, errors.ErrRemoteNotFound)
	}
	return nil
}

// Delete removes the owner's remote copy of a record. Deleting a record the
// remote store does not hold is not an error.
func (p *PostgresRemote) Delete(ctx context.Context, ownerID, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM sirim.records WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}

// ListByOwner returns every remote record belonging to ownerID
func (p *PostgresRemote) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	query := `
		SELECT
			id, owner_id, sirim_serial_no, batch_no, brand_trademark,
			model, type, rating, pack_size, image_url,
			confidence_score, validation_status, created_at, updated_at
		FROM sirim.records
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`
	rows, err := p.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var (
			rec                                         Record
			serial                                      string
			batch, brand, model, typ, rating, pack, img sql.NullString
			confidence                                  float64
			status                                      string
		)
		if err := rows.Scan(
			&rec.ID, &rec.OwnerID, &serial, &batch, &brand,
			&model, &typ, &rating, &pack, &img,
			&confidence, &status, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.SerialNo = processor.StringPtr(serial)
		rec.BatchNo = nullable(batch)
		rec.Brand = nullable(brand)
		rec.Model = nullable(model)
		rec.Type = nullable(typ)
		rec.Rating = nullable(rating)
		rec.PackSize = nullable(pack)
		rec.ImageRef = nullable(img)
		rec.Confidence = confidence
		rec.ValidationStatus = ValidationStatus(status)
		rec.CreatedAt = rec.CreatedAt.UTC()
		rec.UpdatedAt = rec.UpdatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

func recordArgs(rec Record) []interface{} {
	status := rec.ValidationStatus
	if status == "" {
		status = ValidationPending
	}
	return []interface{}{
		rec.ID,                              // $1
		rec.OwnerID,                         // $2
		*rec.SerialNo,                       // $3
		toNull(rec.BatchNo),                 // $4
		toNull(rec.Brand),                   // $5
		toNull(rec.Model),                   // $6
		toNull(rec.Type),                    // $7
		toNull(rec.Rating),                  // $8
		toNull(rec.PackSize),                // $9
		toNull(rec.ImageRef),                // $10
		sanitizeConfidence(rec.Confidence),  // $11
		string(status),                      // $12
		rec.CreatedAt,                       // $13
		rec.UpdatedAt,                       // $14
	}
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
