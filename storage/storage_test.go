package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"leboncoin-scraper/models"
)

func strPtr(s string) *string { return &s }

func TestMemoryStoreSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := &models.ListingRecord{ID: "123", ScrapedAt: time.Now()}

	first, err := s.Save(ctx, rec)
	if err != nil || !first {
		t.Fatalf("first save: got (%v, %v), want (true, nil)", first, err)
	}
	second, err := s.Save(ctx, &models.ListingRecord{ID: "123", Title: strPtr("later")})
	if err != nil || second {
		t.Fatalf("second save: got (%v, %v), want (false, nil)", second, err)
	}
	if got := len(s.All()); got != 1 {
		t.Errorf("stored records: got %d, want 1", got)
	}
	if s.All()[0].Title != nil {
		t.Error("first write must win, later record leaked into storage")
	}
	exists, _ := s.Exists(ctx, "123")
	if !exists {
		t.Error("Exists(123): got false, want true")
	}
}

func TestRecordColumnsAligned(t *testing.T) {
	cols, args := recordColumns(&models.ListingRecord{ID: "1"})
	if len(cols) != len(args) {
		t.Fatalf("columns/args mismatch: %d vs %d", len(cols), len(args))
	}
	if cols[0] != "id" || args[0] != "1" {
		t.Errorf("first column: got %s=%v, want id=1", cols[0], args[0])
	}
	seen := make(map[string]bool)
	for _, c := range cols {
		if seen[c] {
			t.Errorf("duplicate column %q", c)
		}
		seen[c] = true
	}
}

func TestCSVWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "listings.csv")
	price := 950.0

	for i, id := range []string{"1", "2"} {
		w, err := NewCSVWriter(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		rec := &models.ListingRecord{ID: id, Price: &price, City: strPtr("Lyon"),
			Images: []string{"a.jpg", "b.jpg"}, ScrapedAt: time.Now()}
		if err := w.Export(rec); err != nil {
			t.Fatalf("export: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows: got %d, want 3 (header + 2)", len(rows))
	}
	if rows[1][2] != "950" || rows[1][3] != "Lyon" || rows[1][11] != "a.jpg|b.jpg" {
		t.Errorf("unexpected row: %v", rows[1])
	}
}
