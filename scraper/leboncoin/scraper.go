package leboncoin

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"leboncoin-scraper/config"
	"leboncoin-scraper/models"
	"leboncoin-scraper/scraper/humanize"
	"leboncoin-scraper/services/imagestore"
	"leboncoin-scraper/services/proxy"
	"leboncoin-scraper/storage"
	"leboncoin-scraper/utils"
)

// ProxySource hands out one proxy identity per run.
type ProxySource interface {
	Next() proxy.Proxy
}

// RunNotifier is told about saved records and finished runs.
type RunNotifier interface {
	Notifier
	RunFinished(ctx context.Context, report *models.RunReport) error
}

// Deps are the collaborators of a Scraper. Store and Solver are required.
type Deps struct {
	Store    storage.ListingStore
	Images   ImageStore
	Exporter storage.RecordExporter
	Solver   ChallengeSolver
	Proxies  ProxySource
	Events   RunNotifier
}

// launchFunc opens a browser session for one run. The returned context is
// bound to the session's tab.
type launchFunc func(ctx context.Context, logger *utils.Logger) (context.Context, Session, func(), error)

// Scraper runs one complete Leboncoin scrape per call.
type Scraper struct {
	cfg    *config.Config
	fp     *config.Fingerprints
	deps   Deps
	logger *utils.Logger
	launch launchFunc
}

// New creates a ready-to-use Leboncoin Scraper.
func New(cfg *config.Config, fp *config.Fingerprints, deps Deps, logger *utils.Logger) *Scraper {
	if deps.Images == nil {
		deps.Images = imagestore.Passthrough{}
	}
	s := &Scraper{cfg: cfg, fp: fp, deps: deps, logger: logger}
	s.launch = s.launchBrowser
	return s
}

// Run drives one scrape to a terminal state. The report is always returned;
// the error is set when the run failed.
func (s *Scraper) Run(ctx context.Context, runID string) (*models.RunReport, []*models.ListingRecord, error) {
	logger := s.logger.With("run_id", runID)
	report := &models.RunReport{
		RunID:     runID,
		State:     models.StateFiltering,
		StartedAt: time.Now().UTC(),
	}
	logger.Info("[leboncoin] Starting run: max %d pages, cap %d records", s.cfg.MaxPages, s.cfg.ExtractionCap)

	tabCtx, session, release, err := s.launch(ctx, logger)
	if err != nil {
		report.State = models.StateFailed
		s.finish(report, err, logger)
		return report, nil, err
	}
	defer release()

	mapper := NewMapper(s.deps.Images, s.cfg.ImageNamespace, s.cfg.ImageConcurrency, s.cfg.ImageRateLimitMs, logger)
	var opts []PipelineOption
	if s.deps.Exporter != nil {
		opts = append(opts, WithExporter(s.deps.Exporter))
	}
	if s.deps.Events != nil {
		opts = append(opts, WithNotifier(s.deps.Events))
	}
	pipeline := NewPipeline(runID, mapper, s.deps.Store, s.cfg.ExtractionCap, logger, opts...)

	driver := NewDriver(session, DriverConfig{
		MaxPages:       s.cfg.MaxPages,
		MaxRetries:     s.cfg.MaxRetries,
		PayloadTimeout: s.cfg.PayloadTimeout,
	}, logger)

	prog, runErr := driver.Run(tabCtx, pipeline.HandlePage)

	stats := pipeline.Stats()
	report.State = prog.State
	report.PagesVisited = prog.PagesVisited
	report.Partial = prog.Partial
	report.StopReason = prog.StopReason
	report.AdsSeen = stats.AdsSeen
	report.UniqueAds = stats.UniqueAds
	report.Duplicates = stats.Duplicates
	report.MappingFailures = stats.MappingFailures
	report.Saved = stats.Saved
	s.finish(report, runErr, logger)

	return report, pipeline.Saved(), runErr
}

func (s *Scraper) finish(report *models.RunReport, runErr error, logger *utils.Logger) {
	report.FinishedAt = time.Now().UTC()
	if runErr != nil {
		report.Error = runErr.Error()
		logger.Error("[leboncoin] Run failed in %s after %d pages: %v", report.State, report.PagesVisited, runErr)
	} else {
		logger.Info("[leboncoin] Run %s (%s): %d pages, %d ads seen, %d saved, %d duplicates, %d mapping failures, partial=%t",
			report.State, report.StopReason, report.PagesVisited, report.AdsSeen, report.Saved,
			report.Duplicates, report.MappingFailures, report.Partial)
	}

	if s.deps.Events != nil {
		// The run context may already be cancelled on shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Events.RunFinished(ctx, report); err != nil {
			logger.Warn("[leboncoin] publish run report: %v", err)
		}
	}
}

// launchBrowser starts Chrome with a fresh fingerprint and proxy identity.
func (s *Scraper) launchBrowser(ctx context.Context, logger *utils.Logger) (context.Context, Session, func(), error) {
	var p *proxy.Proxy
	if s.deps.Proxies != nil {
		next := s.deps.Proxies.Next()
		p = &next
		logger.Info("[leboncoin] Using proxy %s", p.Server())
	}

	ua := s.fp.RandomUserAgent()
	opts := LaunchOptions{
		Headless:       s.cfg.Headless,
		ChromeBin:      s.cfg.ChromeBin,
		UserAgent:      ua,
		Viewport:       s.fp.RandomViewport(),
		Locale:         s.fp.Locale,
		Timezone:       s.fp.Timezone,
		AcceptLanguage: s.fp.AcceptLanguage,
		Proxy:          p,
	}

	retry := &utils.RetryConfig{MaxAttempts: s.cfg.MaxRetries, BaseDelay: 2 * time.Second, Logger: logger}
	var (
		tabCtx  context.Context
		release func()
	)
	err := retry.Do(ctx, "launch-browser", func() error {
		var err error
		tabCtx, release, err = LaunchBrowser(ctx, opts, logger)
		return err
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("browser launch: %w", err)
	}

	human := humanize.New(humanize.DefaultConfig(), logger)
	session := NewBrowserSession(s.cfg, human, s.deps.Solver, p, ua, logger)
	return tabCtx, session, release, nil
}

// findChromeBinary locates a Chrome or Chromium binary.
func findChromeBinary() string {
	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
