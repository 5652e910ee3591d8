package leboncoin

import (
	"context"
	"fmt"

	"leboncoin-scraper/models"
	"leboncoin-scraper/storage"
	"leboncoin-scraper/utils"
)

// RecordMapper builds a record from one raw ad.
type RecordMapper interface {
	Map(ctx context.Context, ad *RawAd) (*models.ListingRecord, error)
}

// Notifier is told about every newly saved record.
type Notifier interface {
	ListingSaved(ctx context.Context, runID string, record *models.ListingRecord) error
}

// PipelineStats are the per-run ingestion counters.
type PipelineStats struct {
	AdsSeen         int
	UniqueAds       int
	Duplicates      int
	MappingFailures int
	Saved           int
}

// Pipeline deduplicates, maps and persists the ads of each page, up to the
// extraction cap.
type Pipeline struct {
	runID    string
	mapper   RecordMapper
	store    storage.ListingStore
	exporter storage.RecordExporter
	notifier Notifier
	cap      int
	seen     *utils.IDSet
	logger   *utils.Logger

	stats PipelineStats
	saved []*models.ListingRecord
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithExporter appends every saved record to e.
func WithExporter(e storage.RecordExporter) PipelineOption {
	return func(p *Pipeline) { p.exporter = e }
}

// WithNotifier reports every saved record to n.
func WithNotifier(n Notifier) PipelineOption {
	return func(p *Pipeline) { p.notifier = n }
}

// NewPipeline creates a Pipeline for one run. A cap below one disables the cap.
func NewPipeline(runID string, mapper RecordMapper, store storage.ListingStore, extractionCap int, logger *utils.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		runID:  runID,
		mapper: mapper,
		store:  store,
		cap:    extractionCap,
		seen:   utils.NewIDSet(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandlePage ingests one page and reports whether the cap has been reached.
// It satisfies PageHandler.
func (p *Pipeline) HandlePage(ctx context.Context, page int, payload *SearchPayload) bool {
	for i, raw := range payload.Ads {
		if p.capReached() {
			p.logger.Info("[pipeline] extraction cap %d reached on page %d", p.cap, page)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		p.stats.AdsSeen++

		ad, err := DecodeAd(raw)
		if err != nil {
			p.stats.MappingFailures++
			p.logger.Warn("[pipeline] page %d ad %d skipped: %v", page, i, err)
			continue
		}
		p.ingest(ctx, page, ad)
	}
	return p.capReached()
}

func (p *Pipeline) ingest(ctx context.Context, page int, ad *RawAd) {
	id := ad.ID()
	if !p.seen.Add(id) {
		p.stats.Duplicates++
		return
	}

	exists, err := p.store.Exists(ctx, id)
	if err != nil {
		p.stats.MappingFailures++
		p.logger.Error("[pipeline] ad %s: existence check: %v", id, err)
		return
	}
	if exists {
		p.stats.Duplicates++
		p.logger.Debug("[pipeline] ad %s already stored", id)
		return
	}

	record, err := p.mapSafely(ctx, ad)
	if err != nil {
		p.stats.MappingFailures++
		p.logger.Warn("[pipeline] page %d ad %s not mapped: %v", page, id, err)
		return
	}

	inserted, err := p.store.Save(ctx, record)
	if err != nil {
		p.stats.MappingFailures++
		p.logger.Error("[pipeline] ad %s: save: %v", id, err)
		return
	}
	if !inserted {
		p.stats.Duplicates++
		return
	}

	p.stats.Saved++
	p.saved = append(p.saved, record)
	p.logger.Info("[pipeline] saved ad %s (%d/%d)", id, p.stats.Saved, p.cap)

	if p.exporter != nil {
		if err := p.exporter.Export(record); err != nil {
			p.logger.Warn("[pipeline] export of ad %s: %v", id, err)
		}
	}
	if p.notifier != nil {
		if err := p.notifier.ListingSaved(ctx, p.runID, record); err != nil {
			p.logger.Warn("[pipeline] notify ad %s: %v", id, err)
		}
	}
}

// mapSafely turns a mapper panic into an error so sibling ads still run.
func (p *Pipeline) mapSafely(ctx context.Context, ad *RawAd) (record *models.ListingRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mapper panic: %v", r)
		}
	}()
	return p.mapper.Map(ctx, ad)
}

func (p *Pipeline) capReached() bool {
	return p.cap > 0 && p.stats.Saved >= p.cap
}

// Stats returns a copy of the counters.
func (p *Pipeline) Stats() PipelineStats {
	st := p.stats
	st.UniqueAds = p.seen.Size()
	return st
}

// Saved returns the records saved so far, in save order.
func (p *Pipeline) Saved() []*models.ListingRecord { return p.saved }
