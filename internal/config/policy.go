package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// IgnoreEntry is a catalog source whose imagery is known to be unreliable
// to probe.
type IgnoreEntry struct {
	ID     string `yaml:"id"`
	Reason string `yaml:"reason"`
}

// Policy holds the tunable rules of a validation run.
type Policy struct {
	StaleAfterYears           int           `yaml:"stale_after_years"`
	Ignore                    []IgnoreEntry `yaml:"ignore"`
	ExpectedProjections       []string      `yaml:"expected_projections"`
	BBoxOutsideWarningPercent float64       `yaml:"bbox_outside_warning_percent"`
	BBoxOutsideErrorPercent   float64       `yaml:"bbox_outside_error_percent"`
	WMSVersions               []string      `yaml:"wms_versions"`
	TMSRetryZooms             int           `yaml:"tms_retry_zooms"`
	UserAgentPlaceholders     []string      `yaml:"user_agent_placeholders"`
}

// DefaultPolicy returns the built-in rules.
func DefaultPolicy() *Policy {
	return &Policy{
		StaleAfterYears:           30,
		ExpectedProjections:       []string{"EPSG:3857", "EPSG:4326", "CRS:84"},
		BBoxOutsideWarningPercent: 15,
		BBoxOutsideErrorPercent:   100,
		WMSVersions:               []string{"1.3.0", "1.1.1", "1.1.0", "1.0.0"},
		TMSRetryZooms:             3,
		UserAgentPlaceholders:     []string{"{useragent}", "{user_agent}"},
	}
}

// LoadPolicy reads a YAML policy file on top of the defaults. An empty path
// returns the defaults.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy yaml: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy %s: %w", path, err)
	}
	return p, nil
}

// Validate checks the thresholds for consistency.
func (p *Policy) Validate() error {
	var errs []error
	if p.StaleAfterYears <= 0 {
		errs = append(errs, fmt.Errorf("stale_after_years must be positive, got %d", p.StaleAfterYears))
	}
	if p.BBoxOutsideWarningPercent < 0 || p.BBoxOutsideErrorPercent > 100 ||
		p.BBoxOutsideWarningPercent >= p.BBoxOutsideErrorPercent {
		errs = append(errs, fmt.Errorf("bbox thresholds must satisfy 0 <= warning (%v) < error (%v) <= 100",
			p.BBoxOutsideWarningPercent, p.BBoxOutsideErrorPercent))
	}
	if p.TMSRetryZooms < 0 {
		errs = append(errs, fmt.Errorf("tms_retry_zooms must be >= 0, got %d", p.TMSRetryZooms))
	}
	for i, e := range p.Ignore {
		if strings.TrimSpace(e.ID) == "" {
			errs = append(errs, fmt.Errorf("ignore[%d]: missing id", i))
		}
	}
	return errors.Join(errs...)
}

// IgnoreReason returns why id is on the ignore list.
func (p *Policy) IgnoreReason(id string) (string, bool) {
	for _, e := range p.Ignore {
		if e.ID == id {
			return e.Reason, true
		}
	}
	return "", false
}
