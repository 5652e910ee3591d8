package api

import (
	"errors"
	"fmt"
	"net/http"

	"leboncoin-scraper/models"
	"leboncoin-scraper/services"
	"leboncoin-scraper/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type scrapeResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Title   string            `json:"title,omitempty"`
	Report  *models.RunReport `json:"report,omitempty"`
}

// RunStarter starts a background scrape run.
type RunStarter interface {
	Start() (string, <-chan services.RunOutcome, error)
}

type ScrapeHandlers struct {
	runs   RunStarter
	logger *utils.Logger
}

func NewScrapeHandlers(runs RunStarter, logger *utils.Logger) *ScrapeHandlers {
	return &ScrapeHandlers{runs: runs, logger: logger}
}

// HandleScrapeLeboncoin starts a run and answers once it is over. A client
// that goes away does not stop the run.
func (h *ScrapeHandlers) HandleScrapeLeboncoin(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context(), h.logger)

	runID, outcome, err := h.runs.Start()
	if err != nil {
		if errors.Is(err, services.ErrRunInProgress) {
			logger.Warn("Scrape rejected: %v", err)
			WriteJSONError(w, http.StatusConflict, err.Error())
			return
		}
		logger.Error("Scrape could not start: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger = logger.With("run_id", runID)
	logger.Info("Scrape run started")

	select {
	case o := <-outcome:
		if o.Err != nil {
			logger.Error("Scrape run failed: %v", o.Err)
			RespondWithJSON(w, http.StatusInternalServerError, scrapeResponse{
				Status: statusError,
				Title:  fmt.Sprintf("scrape run failed: %v", o.Err),
				Report: o.Report,
			})
			return
		}
		RespondWithJSON(w, http.StatusOK, scrapeResponse{
			Status:  statusSuccess,
			Message: summary(o.Report),
			Report:  o.Report,
		})
	case <-r.Context().Done():
		logger.Warn("Client left before run %s finished; run continues", runID)
	}
}

func summary(r *models.RunReport) string {
	msg := fmt.Sprintf("Scraping completed: %d listings saved from %d pages (%d ads seen, %d duplicates, %d skipped)",
		r.Saved, r.PagesVisited, r.AdsSeen, r.Duplicates, r.MappingFailures)
	if r.Partial {
		msg += ", partial: pagination stopped early"
	}
	return msg
}
