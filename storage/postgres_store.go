package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"leboncoin-scraper/models"
)

// PostgresStore persists listing records to PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id                TEXT PRIMARY KEY,
			publication_date  TIMESTAMP,
			index_date        TIMESTAMP,
			expiration_date   TIMESTAMP,
			scraped_at        TIMESTAMPTZ NOT NULL,
			status            TEXT,
			ad_type           TEXT,
			category_id       TEXT,
			category_name     TEXT,
			title             TEXT,
			description       TEXT,
			url               TEXT,
			price             NUMERIC(14,2),
			image_count       INTEGER,
			images            TEXT[] NOT NULL DEFAULT '{}',
			property_type     TEXT,
			furnished         TEXT,
			surface           TEXT,
			rooms             TEXT,
			bedrooms          TEXT,
			shower_rooms      TEXT,
			bathrooms         TEXT,
			parking_spaces    TEXT,
			levels            TEXT,
			available_from    TEXT,
			construction_year TEXT,
			energy_class      TEXT,
			ges               TEXT,
			elevator          TEXT,
			floor             TEXT,
			building_floors   TEXT,
			outdoor           TEXT[],
			charges_included  TEXT,
			security_deposit  TEXT,
			rental_charges    TEXT,
			features          TEXT[],
			region            TEXT,
			region_id         TEXT,
			city              TEXT,
			zipcode           TEXT,
			department        TEXT,
			department_id     TEXT,
			latitude          DOUBLE PRECISION,
			longitude         DOUBLE PRECISION,
			geohash           TEXT,
			agency_name       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_listings_price   ON listings(price);
		CREATE INDEX IF NOT EXISTS idx_listings_city    ON listings(city);
		CREATE INDEX IF NOT EXISTS idx_listings_zipcode ON listings(zipcode);
		CREATE INDEX IF NOT EXISTS idx_listings_geohash ON listings(geohash);
	`)
	return err
}

// Exists reports whether a listing with the given ID is already stored.
func (ps *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := ps.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: exists %s: %w", id, err)
	}
	return exists, nil
}

// Save inserts the record unless its ID is already present.
func (ps *PostgresStore) Save(ctx context.Context, r *models.ListingRecord) (bool, error) {
	columns, args := recordColumns(r)

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (%s)
		VALUES (%s)
		ON CONFLICT (id) DO NOTHING
	`, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	res, err := ps.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("postgres: insert %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: rows affected %s: %w", r.ID, err)
	}
	return n == 1, nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

func recordColumns(r *models.ListingRecord) ([]string, []interface{}) {
	images := r.Images
	if images == nil {
		images = []string{}
	}
	pairs := []struct {
		col string
		val interface{}
	}{
		{"id", r.ID},
		{"publication_date", r.PublicationDate},
		{"index_date", r.IndexDate},
		{"expiration_date", r.ExpirationDate},
		{"scraped_at", r.ScrapedAt},
		{"status", r.Status},
		{"ad_type", r.AdType},
		{"category_id", r.CategoryID},
		{"category_name", r.CategoryName},
		{"title", r.Title},
		{"description", r.Description},
		{"url", r.URL},
		{"price", r.Price},
		{"image_count", r.ImageCount},
		{"images", pq.Array(images)},
		{"property_type", r.PropertyType},
		{"furnished", r.Furnished},
		{"surface", r.Surface},
		{"rooms", r.Rooms},
		{"bedrooms", r.Bedrooms},
		{"shower_rooms", r.ShowerRooms},
		{"bathrooms", r.Bathrooms},
		{"parking_spaces", r.ParkingSpaces},
		{"levels", r.Levels},
		{"available_from", r.AvailableFrom},
		{"construction_year", r.ConstructionYear},
		{"energy_class", r.EnergyClass},
		{"ges", r.GES},
		{"elevator", r.Elevator},
		{"floor", r.Floor},
		{"building_floors", r.BuildingFloors},
		{"outdoor", nullableArray(r.Outdoor)},
		{"charges_included", r.ChargesIncluded},
		{"security_deposit", r.SecurityDeposit},
		{"rental_charges", r.RentalCharges},
		{"features", nullableArray(r.Features)},
		{"region", r.Region},
		{"region_id", r.RegionID},
		{"city", r.City},
		{"zipcode", r.Zipcode},
		{"department", r.Department},
		{"department_id", r.DepartmentID},
		{"latitude", r.Latitude},
		{"longitude", r.Longitude},
		{"geohash", r.Geohash},
		{"agency_name", r.AgencyName},
	}

	cols := make([]string, len(pairs))
	args := make([]interface{}, len(pairs))
	for i, p := range pairs {
		cols[i] = p.col
		args[i] = p.val
	}
	return cols, args
}

// nullableArray keeps an absent set attribute NULL instead of an empty array.
func nullableArray(values []string) interface{} {
	if values == nil {
		return nil
	}
	return pq.Array(values)
}
