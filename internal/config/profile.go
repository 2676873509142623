package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/quickpeek/internal/relay"
)

// Profile is a YAML capture profile. Zero values leave the environment
// settings untouched.
type Profile struct {
	Capture struct {
		MaxScreenshots int     `yaml:"max_screenshots"`
		FoldSlackPx    int     `yaml:"fold_slack_px"`
		Zoom           float64 `yaml:"zoom"`
		Format         string  `yaml:"format"`
		Quality        int     `yaml:"quality"`
		LoadTimeoutMS  int     `yaml:"load_timeout_ms"`
	} `yaml:"capture"`
	Relay   *relay.Config `yaml:"relay"`
	Archive struct {
		Dir  string `yaml:"dir"`
		Keep int    `yaml:"keep"`
	} `yaml:"archive"`
	NotifyURL string `yaml:"notify_url"`
}

// LoadProfile reads and validates a capture profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("capture profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("capture profile: %w", err)
	}
	if p.Capture.MaxScreenshots < 0 {
		return nil, fmt.Errorf("capture profile: capture.max_screenshots must not be negative")
	}
	if p.Relay != nil {
		if err := p.Relay.Validate(); err != nil {
			return nil, fmt.Errorf("capture profile: %w", err)
		}
	}
	return &p, nil
}

// Apply overlays the profile onto cfg.
func (p *Profile) Apply(cfg *Config) {
	c := p.Capture
	if c.MaxScreenshots > 0 {
		cfg.MaxScreenshots = c.MaxScreenshots
	}
	if c.FoldSlackPx > 0 {
		cfg.FoldSlackPx = c.FoldSlackPx
	}
	if c.Zoom > 0 {
		cfg.Zoom = c.Zoom
	}
	if c.Format != "" {
		cfg.CaptureFormat = c.Format
	}
	if c.Quality > 0 {
		cfg.CaptureQuality = c.Quality
	}
	if c.LoadTimeoutMS != 0 {
		cfg.LoadTimeoutMS = c.LoadTimeoutMS
	}
	if p.Relay != nil {
		cfg.Relay = *p.Relay
	}
	if p.Archive.Dir != "" {
		cfg.ArchiveDir = p.Archive.Dir
	}
	if p.Archive.Keep > 0 {
		cfg.ArchiveKeep = p.Archive.Keep
	}
	if p.NotifyURL != "" {
		cfg.NotifyURL = p.NotifyURL
	}
}
