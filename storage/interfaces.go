package storage

import (
	"context"

	"leboncoin-scraper/models"
)

// ListingStore is the persistence contract keyed by listing ID.
// Save is first-write-wins: it reports false when the ID is already stored.
// Exists followed by Save is not atomic; a single active run is assumed.
type ListingStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	Save(ctx context.Context, record *models.ListingRecord) (bool, error)
	Close() error
}

// RecordExporter receives every newly saved record, e.g. for a CSV dump.
type RecordExporter interface {
	Export(record *models.ListingRecord) error
	Close() error
}
