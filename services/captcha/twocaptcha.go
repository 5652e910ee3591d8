package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twoCaptchaBaseURL = "https://api.2captcha.com"

// TwoCaptcha solves DataDome challenges through the 2Captcha in.php/res.php API.
type TwoCaptcha struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	MaxAttempts  int
	HTTPClient   *http.Client
}

// NewTwoCaptcha returns a TwoCaptcha polling every 5s up to 30 times.
func NewTwoCaptcha(apiKey string) *TwoCaptcha {
	return &TwoCaptcha{
		APIKey:       apiKey,
		BaseURL:      twoCaptchaBaseURL,
		PollInterval: 5 * time.Second,
		MaxAttempts:  30,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TwoCaptcha) Name() string { return "2captcha" }

type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

func (t *TwoCaptcha) Solve(ctx context.Context, ch Challenge) (string, error) {
	if t.APIKey == "" {
		return "", ErrNoAPIKey
	}

	form := url.Values{
		"key":         {t.APIKey},
		"method":      {"datadome"},
		"captcha_url": {ch.CaptchaURL},
		"pageurl":     {ch.PageURL},
		"userAgent":   {ch.UserAgent},
		"json":        {"1"},
	}
	if ch.Proxy != "" {
		form.Set("proxy", ch.Proxy)
		form.Set("proxytype", "HTTP")
	}

	var created twoCaptchaResponse
	if err := t.do(ctx, http.MethodPost, "/in.php", form, &created); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	if created.Status != 1 || created.Request == "" || strings.HasPrefix(created.Request, "ERROR") {
		return "", fmt.Errorf("submit: %s", describe(created.Request, "no task id returned"))
	}
	taskID := created.Request

	var cookie string
	err := poll(ctx, t.PollInterval, t.MaxAttempts, func() (bool, error) {
		var res twoCaptchaResponse
		q := url.Values{"key": {t.APIKey}, "action": {"get"}, "id": {taskID}, "json": {"1"}}
		if err := t.do(ctx, http.MethodGet, "/res.php", q, &res); err != nil {
			return false, nil
		}
		switch {
		case res.Request == "CAPCHA_NOT_READY":
			return false, nil
		case res.Status == 1 && res.Request != "":
			cookie = res.Request
			return true, nil
		default:
			return false, fmt.Errorf("task %s: %s", taskID, describe(res.Request, "unknown error"))
		}
	})
	if err != nil {
		return "", err
	}
	return cookie, nil
}

func (t *TwoCaptcha) do(ctx context.Context, method, path string, params url.Values, out interface{}) error {
	var (
		req *http.Request
		err error
	)
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, t.BaseURL+path, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, t.BaseURL+path+"?"+params.Encode(), nil)
	}
	if err != nil {
		return err
	}
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s (status %d): %w", path, resp.StatusCode, err)
	}
	return nil
}
