package leboncoin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"

	"leboncoin-scraper/models"
	"leboncoin-scraper/services/imagestore"
	"leboncoin-scraper/utils"
)

const sourceTimeLayout = "2006-01-02 15:04:05"

// ImageStore re-hosts an image and returns its public URL. On failure it
// returns an error and, possibly, a sentinel URL.
type ImageStore interface {
	Store(ctx context.Context, sourceURL, namespace string) (string, error)
}

// Mapper turns raw ads into ListingRecords.
type Mapper struct {
	images      ImageStore
	namespace   string
	concurrency int
	rateLimitMs int
	logger      *utils.Logger
	now         func() time.Time
}

// NewMapper returns a Mapper re-hosting images under namespace with up to
// concurrency parallel uploads per ad.
func NewMapper(images ImageStore, namespace string, concurrency, rateLimitMs int, logger *utils.Logger) *Mapper {
	return &Mapper{
		images:      images,
		namespace:   namespace,
		concurrency: concurrency,
		rateLimitMs: rateLimitMs,
		logger:      logger,
		now:         time.Now,
	}
}

// Map builds the canonical record of one ad. Only image re-hosting has side effects.
func (m *Mapper) Map(ctx context.Context, ad *RawAd) (*models.ListingRecord, error) {
	id := ad.ID()
	if id == "" {
		return nil, ErrMissingID
	}

	price, err := normalizePrice(ad.Price)
	if err != nil {
		return nil, fmt.Errorf("ad %s: %w", id, err)
	}

	r := &models.ListingRecord{
		ID:              id,
		PublicationDate: parseSourceTime(ad.FirstPublicationDate),
		IndexDate:       parseSourceTime(ad.IndexDate),
		ExpirationDate:  parseSourceTime(ad.ExpirationDate),
		Status:          ad.Status,
		AdType:          ad.AdType,
		CategoryID:      flexPtr(ad.CategoryID),
		CategoryName:    ad.CategoryName,
		Title:           ad.Subject,
		Description:     ad.Body,
		URL:             ad.URL,
		Price:           price,
		Images:          []string{},
	}

	if ad.Images != nil {
		r.ImageCount = ad.Images.NbImages
		sources := ad.Images.URLs
		if len(sources) == 0 {
			sources = ad.Images.URLsLarge
		}
		r.Images = m.rehostImages(ctx, id, sources)
	}

	applyAttributes(r, ad.Attributes)

	if loc := ad.Location; loc != nil {
		r.Region = loc.RegionName
		r.RegionID = flexPtr(loc.RegionID)
		r.City = loc.City
		r.Zipcode = flexPtr(loc.Zipcode)
		r.Department = loc.DepartmentName
		r.DepartmentID = flexPtr(loc.DepartmentID)
		if loc.Lat != nil && loc.Lng != nil {
			lat, lng := float64(*loc.Lat), float64(*loc.Lng)
			r.Latitude, r.Longitude = &lat, &lng
			gh := geohash.EncodeWithPrecision(lat, lng, 9)
			r.Geohash = &gh
		}
	}

	if ad.Owner != nil {
		r.AgencyName = ad.Owner.Name
	}

	r.ScrapedAt = m.now().UTC()
	return r, nil
}

// rehostImages keeps source order; a failed image keeps its source URL.
func (m *Mapper) rehostImages(ctx context.Context, id string, sources []string) []string {
	out := make([]string, len(sources))
	if len(sources) == 0 {
		return out
	}
	pool := utils.NewWorkerPool(m.concurrency, m.rateLimitMs)
	for i, src := range sources {
		pool.Submit(func() {
			out[i] = m.rehostOne(ctx, id, src)
		})
	}
	pool.Wait()
	return out
}

func (m *Mapper) rehostOne(ctx context.Context, id, src string) (public string) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Warn("[mapper] ad %s: image store panicked on %s: %v", id, src, rec)
			public = src
		}
	}()
	public, err := m.images.Store(ctx, src, m.namespace)
	if err != nil || public == "" || public == imagestore.FailureSentinel {
		if err != nil {
			m.logger.Warn("[mapper] ad %s: keeping source image %s: %v", id, src, err)
		}
		return src
	}
	return public
}

// normalizePrice takes the first element of a list, a bare number, or a
// numeric string. Absent and null give nil.
func normalizePrice(raw json.RawMessage) (*float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("price: %w", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		return normalizePrice(list[0])
	}
	var f FlexFloat
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	v := float64(f)
	return &v, nil
}

func parseSourceTime(s *string) *time.Time {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	t, err := time.Parse(sourceTimeLayout, strings.TrimSpace(*s))
	if err != nil {
		return nil
	}
	return &t
}

func flexPtr(f *FlexString) *string {
	if f == nil {
		return nil
	}
	s := string(*f)
	return &s
}
