package services

import (
	"bytes"
	"strings"
	"testing"

	"leboncoin-scraper/models"
	"leboncoin-scraper/utils"
)

func str(s string) *string { return &s }
func price(f float64) *float64 { return &f }

func sampleListings() []*models.ListingRecord {
	return []*models.ListingRecord{
		{ID: "1", Title: str("Maison 5 pièces"), Price: price(2000), City: str("Lyon"), PropertyType: str("Maison"), AgencyName: str("Agence A")},
		{ID: "2", Title: str("Studio"), Price: price(500), City: str("Lyon"), PropertyType: str("Appartement"), AgencyName: str("Agence A")},
		{ID: "3", Title: str("T3 centre"), Price: price(1200), City: str("Paris"), PropertyType: str("Appartement"), AgencyName: str("Agence B")},
		{ID: "4", Title: str("Loft"), Price: price(3000), City: str("Paris"), PropertyType: str("Appartement")},
		{ID: "5", Title: str("T2 sans prix"), City: str("Nantes")},
	}
}

func TestInsightCounts(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())
	r := svc.Generate(sampleListings())
	if r.TotalListings != 5 {
		t.Errorf("TotalListings: got %d, want 5", r.TotalListings)
	}
	if r.PricedListings != 4 {
		t.Errorf("PricedListings: got %d, want 4", r.PricedListings)
	}
	if r.AgenciesCovered != 2 {
		t.Errorf("AgenciesCovered: got %d, want 2", r.AgenciesCovered)
	}
}

func TestInsightPrices(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())
	r := svc.Generate(sampleListings())
	if r.AveragePrice != 1675 {
		t.Errorf("AveragePrice: got %.2f, want 1675", r.AveragePrice)
	}
	if r.MinPrice != 500 {
		t.Errorf("MinPrice: got %.2f, want 500", r.MinPrice)
	}
	if r.MaxPrice != 3000 {
		t.Errorf("MaxPrice: got %.2f, want 3000", r.MaxPrice)
	}
}

func TestInsightMostExpensive(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())
	r := svc.Generate(sampleListings())
	if r.MostExpensive == nil {
		t.Fatal("MostExpensive should not be nil")
	}
	if r.MostExpensive.ID != "4" {
		t.Errorf("MostExpensive: got %q, want %q", r.MostExpensive.ID, "4")
	}
}

func TestInsightGrouping(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())
	r := svc.Generate(sampleListings())
	if r.ListingsByCity["Lyon"] != 2 || r.ListingsByCity["Nantes"] != 1 {
		t.Errorf("ListingsByCity: got %v", r.ListingsByCity)
	}
	if r.ListingsByType["Appartement"] != 3 {
		t.Errorf("Appartement count: got %d, want 3", r.ListingsByType["Appartement"])
	}
}

func TestInsightEmptyInput(t *testing.T) {
	svc := NewInsightService(utils.NewLogger())
	r := svc.Generate(nil)
	if r.TotalListings != 0 || r.MostExpensive != nil {
		t.Errorf("expected empty report for empty input, got %+v", r)
	}
}

func TestInsightPrint(t *testing.T) {
	var buf bytes.Buffer
	svc := NewInsightService(utils.NewLogger())
	svc.out = &buf
	svc.Print(svc.Generate(sampleListings()))

	out := buf.String()
	for _, want := range []string{"Listings saved", "Loft", "Paris", "Appartement"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q", want)
		}
	}
}
