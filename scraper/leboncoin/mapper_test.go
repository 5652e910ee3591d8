package leboncoin

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"leboncoin-scraper/services/imagestore"
	"leboncoin-scraper/utils"
)

// fakeImages re-hosts under cdn.test and fails for URLs listed in fail.
type fakeImages struct {
	mu    sync.Mutex
	fail  map[string]string
	calls int
}

func (f *fakeImages) Store(_ context.Context, src, ns string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if sentinel, ok := f.fail[src]; ok {
		return sentinel, errors.New("download failed")
	}
	return "https://cdn.test/" + ns + "/" + src[strings.LastIndex(src, "/")+1:], nil
}

func newTestMapper(images ImageStore) *Mapper {
	m := NewMapper(images, "real_estate", 3, 0, utils.NewLogger())
	m.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }
	return m
}

func decode(t *testing.T, raw string) *RawAd {
	t.Helper()
	ad, err := DecodeAd(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("DecodeAd: %v", err)
	}
	return ad
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want *float64
	}{
		{`[150000]`, ptr(150000.0)},
		{`150000`, ptr(150000.0)},
		{`"1250.5"`, ptr(1250.5)},
		{`[950, 1000]`, ptr(950.0)},
		{`null`, nil},
		{``, nil},
		{`[]`, nil},
	}
	for _, tt := range tests {
		got, err := normalizePrice(json.RawMessage(tt.raw))
		if err != nil {
			t.Errorf("normalizePrice(%s): %v", tt.raw, err)
			continue
		}
		switch {
		case tt.want == nil && got != nil:
			t.Errorf("normalizePrice(%s): got %v, want nil", tt.raw, *got)
		case tt.want != nil && (got == nil || *got != *tt.want):
			t.Errorf("normalizePrice(%s): got %v, want %v", tt.raw, got, *tt.want)
		}
	}

	if _, err := normalizePrice(json.RawMessage(`{"amount": 3}`)); err == nil {
		t.Error("object price: expected error")
	}
}

func TestMapAttributeResolution(t *testing.T) {
	m := newTestMapper(imagestore.Passthrough{})

	r, err := m.Map(context.Background(), decode(t, `{"list_id": 1, "attributes": [
		{"key": "square", "key_label": "Surface habitable", "value_label": "45 m²"}
	]}`))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if r.Surface == nil || *r.Surface != "45 m²" {
		t.Errorf("Surface: got %v, want 45 m²", r.Surface)
	}

	r, err = m.Map(context.Background(), decode(t, `{"list_id": 2, "attributes": [
		{"key": "rooms", "key_label": "Nombre de pièces", "value_label": "3"}
	]}`))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if r.Surface != nil {
		t.Errorf("Surface: got %q, want nil", *r.Surface)
	}
	if r.Elevator != nil {
		t.Errorf("Elevator: got %q, want nil", *r.Elevator)
	}
	if r.Rooms == nil || *r.Rooms != "3" {
		t.Errorf("Rooms: got %v, want 3", r.Rooms)
	}
}

func TestMapAttributeMatching(t *testing.T) {
	m := newTestMapper(imagestore.Passthrough{})
	// "Étage" written with a combining accent must still match.
	r, err := m.Map(context.Background(), decode(t, `{"list_id": 3, "attributes": [
		{"key_label": "  Type de bien ", "value_label": "Maison"},
		{"key_label": "Type de bien", "value_label": "Appartement"},
		{"key_label": "type de bien", "value_label": "Terrain"},
		{"key_label": "Étage de votre bien", "value_label": 2},
		{"key_label": "Nombre d'étages dans l'immeuble", "value_label": "5"},
		{"key_label": "Extérieur", "values_label": ["Balcon", "Jardin"]},
		{"key_label": "Caractéristiques", "value_label": "Cave", "values_label": ["Cave", "Digicode"]}
	]}`))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if r.PropertyType == nil || *r.PropertyType != "Maison" {
		t.Errorf("PropertyType: got %v, want first match Maison", r.PropertyType)
	}
	if r.Floor == nil || *r.Floor != "2" {
		t.Errorf("Floor: got %v, want 2", r.Floor)
	}
	if r.BuildingFloors == nil || *r.BuildingFloors != "5" {
		t.Errorf("BuildingFloors: got %v, want 5", r.BuildingFloors)
	}
	if strings.Join(r.Outdoor, ",") != "Balcon,Jardin" {
		t.Errorf("Outdoor: got %v", r.Outdoor)
	}
	if strings.Join(r.Features, ",") != "Cave,Digicode" {
		t.Errorf("Features: got %v", r.Features)
	}
}

func TestMapImageFallback(t *testing.T) {
	images := &fakeImages{fail: map[string]string{
		"https://img.leboncoin.fr/ad-image/b.jpg": imagestore.FailureSentinel,
	}}
	m := newTestMapper(images)

	r, err := m.Map(context.Background(), decode(t, `{"list_id": 4, "images": {
		"nb_images": 3,
		"urls": [
			"https://img.leboncoin.fr/ad-image/a.jpg",
			"https://img.leboncoin.fr/ad-image/b.jpg",
			"https://img.leboncoin.fr/ad-image/c.jpg"
		]
	}}`))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	want := []string{
		"https://cdn.test/real_estate/a.jpg",
		"https://img.leboncoin.fr/ad-image/b.jpg",
		"https://cdn.test/real_estate/c.jpg",
	}
	if len(r.Images) != len(want) {
		t.Fatalf("images: got %d entries, want %d", len(r.Images), len(want))
	}
	for i := range want {
		if r.Images[i] != want[i] {
			t.Errorf("images[%d]: got %q, want %q", i, r.Images[i], want[i])
		}
	}
	if r.ImageCount == nil || *r.ImageCount != 3 {
		t.Errorf("ImageCount: got %v, want 3", r.ImageCount)
	}
}

func TestMapImagesFallBackToLargeURLs(t *testing.T) {
	m := newTestMapper(imagestore.Passthrough{})
	r, err := m.Map(context.Background(), decode(t, `{"list_id": 5, "images": {
		"urls_large": ["https://img.leboncoin.fr/large/x.jpg"]
	}}`))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if len(r.Images) != 1 || r.Images[0] != "https://img.leboncoin.fr/large/x.jpg" {
		t.Errorf("images: got %v", r.Images)
	}
}

func TestMapTopLevelAndLocation(t *testing.T) {
	m := newTestMapper(imagestore.Passthrough{})
	r, err := m.Map(context.Background(), decode(t, `{
		"list_id": 2871234567,
		"first_publication_date": "2025-02-27 18:04:11",
		"index_date": "not a date",
		"status": "active",
		"ad_type": "offer",
		"subject": "Appartement 3 pièces 62 m²",
		"body": "Lumineux",
		"url": "https://www.leboncoin.fr/ad/locations/2871234567",
		"category_id": "10",
		"category_name": "Locations",
		"price": [1150],
		"location": {
			"region_id": "12", "region_name": "Ile-de-France",
			"department_id": "75", "department_name": "Paris",
			"city": "Paris", "zipcode": 75011,
			"lat": 48.8589, "lng": "2.3795"
		},
		"owner": {"name": "Agence du Marais", "type": "pro"}
	}`))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if r.ID != "2871234567" {
		t.Errorf("ID: got %q", r.ID)
	}
	if r.Title == nil || *r.Title != "Appartement 3 pièces 62 m²" {
		t.Errorf("Title: got %v", r.Title)
	}
	if r.PublicationDate == nil || !r.PublicationDate.Equal(time.Date(2025, 2, 27, 18, 4, 11, 0, time.UTC)) {
		t.Errorf("PublicationDate: got %v", r.PublicationDate)
	}
	if r.IndexDate != nil {
		t.Errorf("IndexDate: got %v, want nil", r.IndexDate)
	}
	if r.Price == nil || *r.Price != 1150 {
		t.Errorf("Price: got %v", r.Price)
	}
	if r.Zipcode == nil || *r.Zipcode != "75011" {
		t.Errorf("Zipcode: got %v", r.Zipcode)
	}
	if r.Longitude == nil || *r.Longitude != 2.3795 {
		t.Errorf("Longitude: got %v", r.Longitude)
	}
	if r.Geohash == nil || len(*r.Geohash) != 9 || !strings.HasPrefix(*r.Geohash, "u09") {
		t.Errorf("Geohash: got %v", r.Geohash)
	}
	if r.AgencyName == nil || *r.AgencyName != "Agence du Marais" {
		t.Errorf("AgencyName: got %v", r.AgencyName)
	}
	if !r.ScrapedAt.Equal(time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("ScrapedAt: got %v", r.ScrapedAt)
	}
}

func TestMapWithoutOptionalData(t *testing.T) {
	m := newTestMapper(imagestore.Passthrough{})
	r, err := m.Map(context.Background(), decode(t, `{"list_id": "77"}`))
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if r.Price != nil || r.City != nil || r.Latitude != nil || r.Geohash != nil || r.AgencyName != nil {
		t.Errorf("absent data mapped to values: %+v", r)
	}
	if r.Images == nil || len(r.Images) != 0 {
		t.Errorf("Images: got %v, want empty", r.Images)
	}
	if r.ScrapedAt.IsZero() {
		t.Error("ScrapedAt not set")
	}
}

func TestDecodeAdWithoutID(t *testing.T) {
	if _, err := DecodeAd(json.RawMessage(`{"subject": "sans id"}`)); !errors.Is(err, ErrMissingID) {
		t.Errorf("got %v, want ErrMissingID", err)
	}
}

func ptr[T any](v T) *T { return &v }
