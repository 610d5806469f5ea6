package domain

import (
	"fmt"
	"time"
)

// Status is the tri-state outcome of one checked aspect.
type Status string

const (
	StatusGood    Status = "good"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Severity prefixes used in result messages. Notifiers grep for "Error".
const (
	PrefixError   = "Error: "
	PrefixWarning = "Warning: "
	PrefixInfo    = "Info: "
)

// Aspects checked for every source.
const (
	AspectLicense = "license_url"
	AspectPrivacy = "privacy_policy_url"
	AspectImagery = "imagery"
)

// Result is the outcome of one aspect: a status plus ordered messages.
type Result struct {
	Status   Status   `json:"status"`
	Messages []string `json:"message"`
}

// Report collects a checker's findings by severity. The zero value is ready
// to use. Checkers fill it and never return errors.
type Report struct {
	Info     []string
	Warnings []string
	Errors   []string
}

// Infof appends an informational message.
func (r *Report) Infof(format string, args ...interface{}) {
	r.Info = append(r.Info, fmt.Sprintf(format, args...))
}

// Warnf appends a warning message.
func (r *Report) Warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Errorf appends an error message.
func (r *Report) Errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Empty reports whether no message at all was collected.
func (r *Report) Empty() bool {
	return len(r.Info) == 0 && len(r.Warnings) == 0 && len(r.Errors) == 0
}

// Status derives the outcome: any error wins, then any warning.
func (r *Report) Status() Status {
	switch {
	case len(r.Errors) > 0:
		return StatusError
	case len(r.Warnings) > 0:
		return StatusWarning
	default:
		return StatusGood
	}
}

// Result flattens the report into errors, then warnings, then info, each with
// its severity prefix. An empty report means nothing was checked.
func (r *Report) Result() Result {
	if r.Empty() {
		return NotChecked("Not checked")
	}
	msgs := make([]string, 0, len(r.Errors)+len(r.Warnings)+len(r.Info))
	for _, m := range r.Errors {
		msgs = append(msgs, PrefixError+m)
	}
	for _, m := range r.Warnings {
		msgs = append(msgs, PrefixWarning+m)
	}
	for _, m := range r.Info {
		msgs = append(msgs, PrefixInfo+m)
	}
	return Result{Status: r.Status(), Messages: msgs}
}

// NotChecked is the warning result for aspects skipped by policy.
func NotChecked(format string, args ...interface{}) Result {
	var r Report
	r.Warnf(format, args...)
	return r.Result()
}

// SourceResult is everything the engine knows about one source after a run.
type SourceResult struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      ServiceType `json:"type"`
	Directory []string    `json:"directory"`
	Filename  string      `json:"filename"`
	Category  string      `json:"category,omitempty"`

	LicenseURL       Result `json:"license_url"`
	PrivacyPolicyURL Result `json:"privacy_policy_url"`
	Imagery          Result `json:"imagery"`
}

// Aspect returns the result for the named aspect.
func (sr *SourceResult) Aspect(name string) (Result, bool) {
	switch name {
	case AspectLicense:
		return sr.LicenseURL, true
	case AspectPrivacy:
		return sr.PrivacyPolicyURL, true
	case AspectImagery:
		return sr.Imagery, true
	default:
		return Result{}, false
	}
}

// Run is one completed batch.
type Run struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []SourceResult `json:"results"`
}

// Duration of the run.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary counts statuses per aspect.
type Summary map[string]map[Status]int

// Summarize counts statuses for every aspect of the run.
func (r *Run) Summarize() Summary {
	s := Summary{
		AspectLicense: {},
		AspectPrivacy: {},
		AspectImagery: {},
	}
	for i := range r.Results {
		for aspect, counts := range s {
			res, _ := r.Results[i].Aspect(aspect)
			counts[res.Status]++
		}
	}
	return s
}
