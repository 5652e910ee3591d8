package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"leboncoin-scraper/models"
	"leboncoin-scraper/services"
	"leboncoin-scraper/utils"
)

type stubRuns struct {
	outcome services.RunOutcome
	err     error
}

func (s *stubRuns) Start() (string, <-chan services.RunOutcome, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	ch := make(chan services.RunOutcome, 1)
	ch <- s.outcome
	close(ch)
	return "run-1", ch, nil
}

func serve(t *testing.T, runs RunStarter) (*httptest.ResponseRecorder, scrapeResponse) {
	t.Helper()
	router := NewRouter(NewScrapeHandlers(runs, utils.NewLogger()), utils.NewLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scrape/leboncoin", nil)
	req.Header.Set("X-Trace-ID", "trace-abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body scrapeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestScrapeSuccess(t *testing.T) {
	rec, body := serve(t, &stubRuns{outcome: services.RunOutcome{Report: &models.RunReport{
		RunID: "run-1", State: models.StateDone, Saved: 42, PagesVisited: 3, AdsSeen: 105,
	}}})
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
	if body.Status != "success" || !strings.Contains(body.Message, "42 listings saved") {
		t.Errorf("body: got %+v", body)
	}
	if rec.Header().Get("X-Trace-ID") != "trace-abc" {
		t.Errorf("trace id not echoed: %q", rec.Header().Get("X-Trace-ID"))
	}
}

func TestScrapeFailure(t *testing.T) {
	rec, body := serve(t, &stubRuns{outcome: services.RunOutcome{
		Report: &models.RunReport{RunID: "run-1", State: models.StateFailed},
		Err:    errors.New("leboncoin: no payload for the first results page"),
	}})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rec.Code)
	}
	if body.Status != "error" || !strings.Contains(body.Title, "first results page") {
		t.Errorf("body: got %+v", body)
	}
}

func TestScrapeAlreadyRunning(t *testing.T) {
	rec, body := serve(t, &stubRuns{err: services.ErrRunInProgress})
	if rec.Code != http.StatusConflict {
		t.Errorf("status: got %d, want 409", rec.Code)
	}
	if body.Status != "error" || body.Title != services.ErrRunInProgress.Error() {
		t.Errorf("body: got %+v", body)
	}
}
