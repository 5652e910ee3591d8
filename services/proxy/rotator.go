// Package proxy hands out residential proxy credentials with a fresh sticky
// session token per browser session.
package proxy

import (
	"fmt"
	"math/rand/v2"
	"net/url"
)

const sessionAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Proxy is one set of credentials for the upstream proxy.
type Proxy struct {
	Host     string
	Port     string
	Username string
	Password string
}

// Server returns the proxy address for Chrome's --proxy-server flag.
func (p Proxy) Server() string {
	return "http://" + p.Host + ":" + p.Port
}

// Auth returns "user:pass@host:port", the form the solving services expect.
func (p Proxy) Auth() string {
	return p.Username + ":" + p.Password + "@" + p.Host + ":" + p.Port
}

// URL returns the proxy as an http URL with embedded credentials.
func (p Proxy) URL() *url.URL {
	return &url.URL{Scheme: "http", User: url.UserPassword(p.Username, p.Password), Host: p.Host + ":" + p.Port}
}

// Config describes the upstream account and the session policy.
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	Country  string
	Lifetime string
}

// Rotator builds session-scoped credentials. The zero value is not usable;
// use NewRotator.
type Rotator struct {
	cfg Config
}

// NewRotator returns a Rotator for cfg.
func NewRotator(cfg Config) *Rotator {
	if cfg.Country == "" {
		cfg.Country = "fr"
	}
	if cfg.Lifetime == "" {
		cfg.Lifetime = "35m"
	}
	return &Rotator{cfg: cfg}
}

// Next returns credentials bound to a new random session, so each call
// gets its own exit IP for the configured lifetime.
func (r *Rotator) Next() Proxy {
	return Proxy{
		Host:     r.cfg.Host,
		Port:     r.cfg.Port,
		Username: r.cfg.Username,
		Password: fmt.Sprintf("%s_country-%s_session-%s_lifetime-%s_streaming-1",
			r.cfg.Password, r.cfg.Country, sessionToken(8), r.cfg.Lifetime),
	}
}

func sessionToken(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = sessionAlphabet[rand.IntN(len(sessionAlphabet))]
	}
	return string(b)
}
