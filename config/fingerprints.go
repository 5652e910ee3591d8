package config

import (
	_ "embed"
	"fmt"
	"math/rand/v2"

	"gopkg.in/yaml.v2"
)

//go:embed fingerprints.yaml
var fingerprintsYAML []byte

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Fingerprints is the static pool the browser identity is drawn from.
type Fingerprints struct {
	Locale         string     `yaml:"locale"`
	Timezone       string     `yaml:"timezone"`
	AcceptLanguage string     `yaml:"accept_language"`
	UserAgents     []string   `yaml:"user_agents"`
	Viewports      []Viewport `yaml:"viewports"`
}

// LoadFingerprints decodes the embedded fingerprint pools.
func LoadFingerprints() (*Fingerprints, error) {
	return parseFingerprints(fingerprintsYAML)
}

func parseFingerprints(data []byte) (*Fingerprints, error) {
	var fp Fingerprints
	if err := yaml.Unmarshal(data, &fp); err != nil {
		return nil, fmt.Errorf("fingerprints: decode: %w", err)
	}
	if len(fp.UserAgents) == 0 {
		return nil, fmt.Errorf("fingerprints: no user agents defined")
	}
	if len(fp.Viewports) == 0 {
		return nil, fmt.Errorf("fingerprints: no viewports defined")
	}
	return &fp, nil
}

// RandomUserAgent picks one user agent from the pool.
func (f *Fingerprints) RandomUserAgent() string {
	return f.UserAgents[rand.IntN(len(f.UserAgents))]
}

// RandomViewport picks one viewport from the pool.
func (f *Fingerprints) RandomViewport() Viewport {
	return f.Viewports[rand.IntN(len(f.Viewports))]
}
