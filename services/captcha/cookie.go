package captcha

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultCookieDomain applies when the solver's Set-Cookie string has no Domain.
const DefaultCookieDomain = ".leboncoin.fr"

// Cookie is a bypass cookie ready to be injected into the browser.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	// SameSite is "Strict", "Lax", "None" or empty.
	SameSite string
	// Expires is zero for a session cookie.
	Expires time.Time
}

// ParseCookie parses a raw Set-Cookie string returned by a solving service.
// Max-Age takes precedence over Expires.
func ParseCookie(raw string, now time.Time) (*Cookie, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("captcha: empty cookie")
	}
	hc, err := http.ParseSetCookie(raw)
	if err != nil {
		return nil, fmt.Errorf("captcha: parse cookie: %w", err)
	}

	c := &Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Domain:   hc.Domain,
		Path:     hc.Path,
		Secure:   hc.Secure,
		HTTPOnly: hc.HttpOnly,
	}
	if c.Domain == "" {
		c.Domain = DefaultCookieDomain
	} else if !strings.HasPrefix(c.Domain, ".") && strings.Count(c.Domain, ".") == 1 {
		c.Domain = "." + c.Domain
	}
	if c.Path == "" {
		c.Path = "/"
	}
	switch hc.SameSite {
	case http.SameSiteStrictMode:
		c.SameSite = "Strict"
	case http.SameSiteLaxMode:
		c.SameSite = "Lax"
	case http.SameSiteNoneMode:
		c.SameSite = "None"
	}
	switch {
	case hc.MaxAge > 0:
		c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
	case !hc.Expires.IsZero():
		c.Expires = hc.Expires
	}
	return c, nil
}
