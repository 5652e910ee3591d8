package proxy

import (
	"regexp"
	"testing"
)

func TestNextEmbedsSessionPolicy(t *testing.T) {
	r := NewRotator(Config{Host: "geo.iproyal.com", Port: "12321", Username: "user", Password: "secret"})
	p := r.Next()

	re := regexp.MustCompile(`^secret_country-fr_session-[A-Za-z0-9]{8}_lifetime-35m_streaming-1$`)
	if !re.MatchString(p.Password) {
		t.Errorf("password %q does not match session policy", p.Password)
	}
	if p.Server() != "http://geo.iproyal.com:12321" {
		t.Errorf("Server: got %q", p.Server())
	}
	if want := "user:" + p.Password + "@geo.iproyal.com:12321"; p.Auth() != want {
		t.Errorf("Auth: got %q, want %q", p.Auth(), want)
	}
	if p.URL().User.Username() != "user" {
		t.Errorf("URL user: got %q", p.URL().User.Username())
	}
}

func TestNextRotatesSession(t *testing.T) {
	r := NewRotator(Config{Host: "h", Port: "1", Username: "u", Password: "p", Country: "de", Lifetime: "10m"})
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[r.Next().Password] = true
	}
	if len(seen) < 45 {
		t.Errorf("expected distinct session tokens, got %d unique of 50", len(seen))
	}
}
