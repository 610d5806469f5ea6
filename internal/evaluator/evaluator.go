// Package evaluator turns one catalog source into its three checked
// aspects: license URL, privacy policy URL and imagery.
package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/eliwatch/internal/checker"
	"github.com/MrSnakeDoc/eliwatch/internal/config"
	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
	"github.com/MrSnakeDoc/eliwatch/internal/metrics"
)

// Evaluator checks sources. It holds no per-source state and is safe for
// concurrent use as long as its Fetcher is.
type Evaluator struct {
	fetcher  checker.Fetcher
	policy   *config.Policy
	checkers map[domain.ServiceType]checker.Checker
	now      func() time.Time
	log      logger.Logger
}

// New wires the protocol checkers on top of f. tilePace is the pause
// between TMS tile probes.
func New(f checker.Fetcher, policy *config.Policy, tilePace time.Duration, log logger.Logger) *Evaluator {
	if policy == nil {
		policy = config.DefaultPolicy()
	}
	wmsOpts := checker.WMSOptions{
		Versions:            policy.WMSVersions,
		ExpectedProjections: policy.ExpectedProjections,
		OutsideWarnPercent:  policy.BBoxOutsideWarningPercent,
		OutsideErrorPercent: policy.BBoxOutsideErrorPercent,
	}
	return &Evaluator{
		fetcher: f,
		policy:  policy,
		checkers: map[domain.ServiceType]checker.Checker{
			domain.TypeTMS:         checker.NewTMS(f, tilePace, policy.TMSRetryZooms),
			domain.TypeWMS:         checker.NewWMS(f, wmsOpts),
			domain.TypeWMSEndpoint: checker.NewWMSEndpoint(f, policy.WMSVersions),
			domain.TypeWMTS:        checker.NewWMTS(f),
		},
		now: time.Now,
		log: log,
	}
}

// WithClock replaces the clock used for the age policy.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate checks every aspect of src. It never fails: problems, panics
// included, become messages of the affected aspect.
func (e *Evaluator) Evaluate(ctx context.Context, src *domain.Source) domain.SourceResult {
	log := e.log.With(logger.String("id", src.ID))
	out := domain.SourceResult{
		ID:        src.ID,
		Name:      src.Name,
		Type:      src.Type,
		Directory: src.Directory,
		Filename:  src.Filename,
		Category:  src.Category,
	}

	out.LicenseURL = guard(log, domain.AspectLicense, func() domain.Result {
		return e.checkURL(ctx, src.LicenseURL, domain.AspectLicense)
	})
	out.PrivacyPolicyURL = guard(log, domain.AspectPrivacy, func() domain.Result {
		return e.checkURL(ctx, src.PrivacyPolicyURL, domain.AspectPrivacy)
	})
	out.Imagery = guard(log, domain.AspectImagery, func() domain.Result {
		return e.checkImagery(ctx, src)
	})

	e.record(domain.AspectLicense, out.LicenseURL)
	e.record(domain.AspectPrivacy, out.PrivacyPolicyURL)
	e.record(domain.AspectImagery, out.Imagery)

	log.Debug("source evaluated",
		logger.String("type", string(src.Type)),
		logger.String("imagery", string(out.Imagery.Status)),
	)
	return out
}

// guard confines a panic to the aspect that raised it.
func guard(log logger.Logger, aspect string, check func() domain.Result) (res domain.Result) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("check panicked",
				logger.String("aspect", aspect),
				logger.String("panic", fmt.Sprint(p)),
			)
			var r domain.Report
			r.Errorf("Internal error while checking %s: %v", aspect, p)
			res = r.Result()
		}
	}()
	return check()
}

func (e *Evaluator) checkURL(ctx context.Context, rawURL, aspect string) domain.Result {
	if strings.TrimSpace(rawURL) == "" {
		var r domain.Report
		r.Errorf("No %s set!", aspect)
		return r.Result()
	}
	return checker.TestURL(ctx, e.fetcher, rawURL, nil)
}

func (e *Evaluator) checkImagery(ctx context.Context, src *domain.Source) domain.Result {
	if err := src.Validate(); err != nil {
		var r domain.Report
		r.Errorf("Invalid source: %v", err)
		return r.Result()
	}

	if age, ok := src.AgeYears(e.now()); ok && age > e.policy.StaleAfterYears {
		return domain.NotChecked("Not checked due to age: %d years", age)
	}
	if reason, ok := e.policy.IgnoreReason(src.ID); ok {
		if reason == "" {
			reason = "known to be unreliable"
		}
		return domain.NotChecked("Not checked: source is ignored (%s)", reason)
	}
	for _, p := range e.policy.UserAgentPlaceholders {
		if strings.Contains(src.URL, p) {
			return domain.NotChecked("Not checked: URL requires a dynamic User-Agent %s", p)
		}
	}

	c, ok := e.checkers[src.Type]
	if !ok {
		return domain.NotChecked("Type '%s' is not currently checked", src.Type)
	}
	r := c.Check(ctx, src)
	if r == nil {
		return domain.NotChecked("Not checked")
	}
	return r.Result()
}

func (e *Evaluator) record(aspect string, res domain.Result) {
	metrics.CheckResults.WithLabelValues(aspect, string(res.Status)).Inc()
}
