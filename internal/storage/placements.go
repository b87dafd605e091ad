// Package storage provides database access for the mediation adapter
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Placement represents a placement mapping from the database: the
// mediation-side id, the Vantage-side id it maps to, and whether loads
// for it are allowed.
type Placement struct {
	ID                 string    `json:"id"`
	PlacementID        string    `json:"placement_id"`
	PartnerPlacementID string    `json:"partner_placement_id"`
	Format             string    `json:"format"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// PlacementStore provides database operations for placements
type PlacementStore struct {
	db *sql.DB
}

// NewPlacementStore creates a new placement store
func NewPlacementStore(db *sql.DB) *PlacementStore {
	return &PlacementStore{db: db}
}

// CreateTable creates the placements table if it does not exist
func (s *PlacementStore) CreateTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS placements (
			id SERIAL PRIMARY KEY,
			placement_id VARCHAR(255) NOT NULL UNIQUE,
			partner_placement_id VARCHAR(255) NOT NULL,
			format VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_placements_status ON placements(status);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create placements table: %w", err)
	}
	return nil
}

// GetByPlacementID retrieves one placement by its mediation-side id.
// Returns nil when the placement does not exist or is not active.
func (s *PlacementStore) GetByPlacementID(ctx context.Context, placementID string) (*Placement, error) {
	query := `
		SELECT id, placement_id, partner_placement_id, format, status, created_at, updated_at
		FROM placements
		WHERE placement_id = $1 AND status = 'active'
	`

	var p Placement
	err := s.db.QueryRowContext(ctx, query, placementID).Scan(
		&p.ID,
		&p.PlacementID,
		&p.PartnerPlacementID,
		&p.Format,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil // Placement not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query placement: %w", err)
	}

	return &p, nil
}

// List retrieves all active placements
func (s *PlacementStore) List(ctx context.Context) ([]*Placement, error) {
	query := `
		SELECT id, placement_id, partner_placement_id, format, status, created_at, updated_at
		FROM placements
		WHERE status = 'active'
		ORDER BY placement_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query placements: %w", err)
	}
	defer rows.Close()

	placements := make([]*Placement, 0, 100)
	for rows.Next() {
		var p Placement
		err := rows.Scan(
			&p.ID,
			&p.PlacementID,
			&p.PartnerPlacementID,
			&p.Format,
			&p.Status,
			&p.CreatedAt,
			&p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan placement row: %w", err)
		}
		placements = append(placements, &p)
	}

	return placements, rows.Err()
}

// AllowedIDs returns the mediation-side ids of all active placements.
// This feeds the adapter's placement allowlist.
func (s *PlacementStore) AllowedIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT placement_id
		FROM placements
		WHERE status = 'active'
		ORDER BY placement_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query placement ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 100)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan placement id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Create adds a new placement
func (s *PlacementStore) Create(ctx context.Context, p *Placement) error {
	status := p.Status
	if status == "" {
		status = "active"
	}

	query := `
		INSERT INTO placements (placement_id, partner_placement_id, format, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query,
		p.PlacementID,
		p.PartnerPlacementID,
		p.Format,
		status,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create placement: %w", err)
	}

	return nil
}

// Delete soft-deletes a placement by setting status to 'archived'
func (s *PlacementStore) Delete(ctx context.Context, placementID string) error {
	query := `
		UPDATE placements
		SET status = 'archived'
		WHERE placement_id = $1
	`

	result, err := s.db.ExecContext(ctx, query, placementID)
	if err != nil {
		return fmt.Errorf("failed to delete placement: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("placement not found: %s", placementID)
	}

	return nil
}

// NewDBConnection creates a new database connection
func NewDBConnection(host, port, user, password, dbname, sslmode string) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
