package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"inventory_watch/models"
)

// PostgresStore mirrors ledger runs and first sightings into a shared database
// for reporting. The JSON ledger stays authoritative.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS search_runs (
		id UUID PRIMARY KEY,
		searched_at TIMESTAMPTZ NOT NULL,
		vehicles_found INTEGER NOT NULL,
		new_vehicles INTEGER NOT NULL,
		notifications_sent BOOLEAN NOT NULL,
		no_matches_notification_sent BOOLEAN NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vehicle_sightings (
		vehicle_id TEXT PRIMARY KEY,
		run_id UUID REFERENCES search_runs(id),
		title TEXT NOT NULL,
		year INTEGER,
		make TEXT,
		model TEXT,
		trim TEXT,
		color TEXT,
		body_style TEXT,
		price TEXT,
		vin TEXT,
		url TEXT,
		dealership TEXT,
		location TEXT,
		inventory_type TEXT,
		first_seen TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sightings_first_seen ON vehicle_sightings(first_seen);
	`)
	return err
}

// MirrorRun writes the run and its novel vehicles in one transaction. Vehicles
// already mirrored keep their original row.
func (s *PostgresStore) MirrorRun(ctx context.Context, run models.SearchRun, entries []models.LedgerEntry) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO search_runs (id, searched_at, vehicles_found, new_vehicles,
				notifications_sent, no_matches_notification_sent)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			run.ID, run.Timestamp.Time, run.VehiclesFound, run.NewVehicles,
			run.NotificationsSent, run.NoMatchesNotificationSent)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
				INSERT INTO vehicle_sightings (vehicle_id, run_id, title, year, make, model, trim, color,
					body_style, price, vin, url, dealership, location, inventory_type, first_seen)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
				ON CONFLICT (vehicle_id) DO NOTHING`, sightingArgs(run.ID, e)...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert sightings: %w", err)
		}
		return nil
	})
}

func sightingArgs(runID uuid.UUID, e models.LedgerEntry) []any {
	return []any{
		e.ID, runID, e.Title, e.Year, e.Make, e.Model, e.Trim, e.Color,
		e.BodyStyle, e.Price, e.VIN, e.URL, e.Dealership, e.Location, string(e.InventoryKind),
		e.FirstSeen.Time,
	}
}

// CountSightingsSince reports how many vehicles were first seen after since.
func (s *PostgresStore) CountSightingsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM vehicle_sightings WHERE first_seen > $1`, since).Scan(&n)
	return n, err
}
