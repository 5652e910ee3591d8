package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"leboncoin-scraper/models"
	"leboncoin-scraper/utils"
)

// ErrRunInProgress is returned by Start while another run is active.
var ErrRunInProgress = errors.New("a scrape run is already in progress")

// RunExecutor performs one scrape run.
type RunExecutor interface {
	Run(ctx context.Context, runID string) (*models.RunReport, []*models.ListingRecord, error)
}

// RunOutcome is delivered once a run reaches a terminal state.
type RunOutcome struct {
	Report *models.RunReport
	Err    error
}

// Runner allows at most one active run. Runs live on the Runner's base
// context, not on the request that started them.
type Runner struct {
	baseCtx  context.Context
	exec     RunExecutor
	insights *InsightService
	logger   *utils.Logger

	mu     sync.Mutex
	active string
	wg     sync.WaitGroup
}

func NewRunner(baseCtx context.Context, exec RunExecutor, insights *InsightService, logger *utils.Logger) *Runner {
	return &Runner{baseCtx: baseCtx, exec: exec, insights: insights, logger: logger}
}

// Start launches a run in the background. The returned channel receives
// exactly one outcome and is then closed.
func (r *Runner) Start() (string, <-chan RunOutcome, error) {
	r.mu.Lock()
	if r.active != "" {
		r.mu.Unlock()
		return "", nil, ErrRunInProgress
	}
	runID := uuid.NewString()
	r.active = runID
	r.wg.Add(1)
	r.mu.Unlock()

	out := make(chan RunOutcome, 1)
	go func() {
		defer r.wg.Done()
		defer close(out)

		r.logger.Info("[runner] run %s started", runID)
		report, saved, err := r.exec.Run(r.baseCtx, runID)
		if report == nil {
			report = &models.RunReport{RunID: runID, State: models.StateFailed}
			if err != nil {
				report.Error = err.Error()
			}
		}
		if r.insights != nil && len(saved) > 0 {
			r.insights.Print(r.insights.Generate(saved))
		}

		// Cleared before the outcome so a caller can retrigger on receipt.
		r.mu.Lock()
		r.active = ""
		r.mu.Unlock()
		out <- RunOutcome{Report: report, Err: err}
	}()
	return runID, out, nil
}

// Active returns the id of the running scrape, or "".
func (r *Runner) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Wait blocks until every started run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
