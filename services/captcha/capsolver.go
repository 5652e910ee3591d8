package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const capSolverBaseURL = "https://api.capsolver.com"

// CapSolver solves DataDome slider challenges through api.capsolver.com.
type CapSolver struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	MaxAttempts  int
	HTTPClient   *http.Client
}

// NewCapSolver returns a CapSolver polling every 2s up to 30 times.
func NewCapSolver(apiKey string) *CapSolver {
	return &CapSolver{
		APIKey:       apiKey,
		BaseURL:      capSolverBaseURL,
		PollInterval: 2 * time.Second,
		MaxAttempts:  30,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *CapSolver) Name() string { return "capsolver" }

type capSolverTask struct {
	Type       string `json:"type"`
	WebsiteURL string `json:"websiteURL"`
	CaptchaURL string `json:"captchaUrl"`
	UserAgent  string `json:"userAgent"`
	Proxy      string `json:"proxy,omitempty"`
}

type capSolverResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           string `json:"taskId"`
	Status           string `json:"status"`
	Solution         struct {
		Cookie string `json:"cookie"`
	} `json:"solution"`
}

func (c *CapSolver) Solve(ctx context.Context, ch Challenge) (string, error) {
	if c.APIKey == "" {
		return "", ErrNoAPIKey
	}

	var created capSolverResponse
	err := c.post(ctx, "/createTask", map[string]interface{}{
		"clientKey": c.APIKey,
		"task": capSolverTask{
			Type:       "DatadomeSliderTask",
			WebsiteURL: ch.PageURL,
			CaptchaURL: ch.CaptchaURL,
			UserAgent:  ch.UserAgent,
			Proxy:      ch.Proxy,
		},
	}, &created)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	if created.ErrorID != 0 || created.TaskID == "" {
		return "", fmt.Errorf("create task: %s", describe(created.ErrorDescription, "no taskId returned"))
	}

	var cookie string
	err = poll(ctx, c.PollInterval, c.MaxAttempts, func() (bool, error) {
		var res capSolverResponse
		if err := c.post(ctx, "/getTaskResult", map[string]string{
			"clientKey": c.APIKey,
			"taskId":    created.TaskID,
		}, &res); err != nil {
			// A failed poll request is retried on the next tick.
			return false, nil
		}
		if res.ErrorID != 0 {
			return false, fmt.Errorf("task %s: %s", created.TaskID, describe(res.ErrorDescription, res.ErrorCode))
		}
		switch res.Status {
		case "ready":
			if res.Solution.Cookie == "" {
				return false, fmt.Errorf("task %s: solution has no cookie", created.TaskID)
			}
			cookie = res.Solution.Cookie
			return true, nil
		case "failed":
			return false, fmt.Errorf("task %s failed: %s", created.TaskID, describe(res.ErrorDescription, "unknown error"))
		default:
			return false, nil
		}
	})
	if err != nil {
		return "", err
	}
	return cookie, nil
}

func (c *CapSolver) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s (status %d): %w", path, resp.StatusCode, err)
	}
	return nil
}

func describe(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
