package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// ServiceType is the imagery protocol a source is served with.
type ServiceType string

const (
	TypeTMS         ServiceType = "tms"
	TypeWMS         ServiceType = "wms"
	TypeWMSEndpoint ServiceType = "wms_endpoint"
	TypeWMTS        ServiceType = "wmts"
	TypeOther       ServiceType = "other"
)

// ParseServiceType maps the catalog value onto a known type. Anything
// unrecognised (bing, scanex, ...) becomes TypeOther.
func ParseServiceType(s string) ServiceType {
	switch t := ServiceType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeTMS, TypeWMS, TypeWMSEndpoint, TypeWMTS:
		return t
	default:
		return TypeOther
	}
}

// Header is a single custom HTTP header a source requires.
type Header struct {
	Name  string
	Value string
}

// Source is one imagery descriptor from the catalog.
//
// It is read-only for the validation engine: the catalog reader builds it,
// the evaluator only consumes it.
type Source struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// ID is the stable identifier used by notifiers to track a source
	// across runs.
	ID   string
	Name string
	Type ServiceType

	// URL is the template URL (placeholders like {zoom}, {bbox}, {proj}).
	URL string

	// ─────────────────────────────
	// Optional metadata
	// ─────────────────────────────

	// Geometry is the coverage area; nil for global sources.
	Geometry orb.Geometry

	MinZoom *int
	MaxZoom *int

	LicenseURL       string
	PrivacyPolicyURL string
	Category         string

	// AvailableProjections are the CRS codes the catalog claims the
	// service supports.
	AvailableProjections []string

	CustomHeader *Header

	// EndDate is the raw end-of-coverage date (YYYY, YYYY-MM or YYYY-MM-DD).
	EndDate string

	// ─────────────────────────────
	// Passthrough for renderers
	// ─────────────────────────────

	Directory []string
	Filename  string
}

// ValidateIdentity checks what a result needs to be keyed. Sources failing
// it cannot be reported and are the only ones the catalog reader skips.
func (s *Source) ValidateIdentity() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("missing id")
	}
	return nil
}

// Validate checks the fields the imagery checkers cannot work without.
// License and privacy URLs are not checked here: their probes report bad
// URLs against their own aspect.
func (s *Source) Validate() error {
	errs := []error{s.ValidateIdentity()}
	if strings.TrimSpace(s.URL) == "" {
		errs = append(errs, errors.New("missing url"))
	}
	if s.MinZoom != nil && *s.MinZoom < 0 {
		errs = append(errs, fmt.Errorf("negative min_zoom %d", *s.MinZoom))
	}
	if s.MinZoom != nil && s.MaxZoom != nil && *s.MinZoom > *s.MaxZoom {
		errs = append(errs, fmt.Errorf("min_zoom %d greater than max_zoom %d", *s.MinZoom, *s.MaxZoom))
	}
	return errors.Join(errs...)
}

// Headers returns the custom header as a map, or nil.
func (s *Source) Headers() map[string]string {
	if s.CustomHeader == nil || s.CustomHeader.Name == "" {
		return nil
	}
	return map[string]string{s.CustomHeader.Name: s.CustomHeader.Value}
}

// EndYear extracts the year of EndDate. ok is false when no usable date is set.
func (s *Source) EndYear() (year int, ok bool) {
	raw := strings.TrimSpace(s.EndDate)
	if raw == "" {
		return 0, false
	}
	head, _, _ := strings.Cut(raw, "-")
	y, err := strconv.Atoi(head)
	if err != nil {
		return 0, false
	}
	return y, true
}

// AgeYears is the number of calendar years between EndDate and now.
func (s *Source) AgeYears(now time.Time) (int, bool) {
	y, ok := s.EndYear()
	if !ok {
		return 0, false
	}
	return now.Year() - y, true
}
