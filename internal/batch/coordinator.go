// Package batch fans source evaluation out over a whole catalog.
package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/eliwatch/internal/domain"
	"github.com/MrSnakeDoc/eliwatch/internal/logger"
	"github.com/MrSnakeDoc/eliwatch/internal/metrics"
)

// Evaluator checks a single source.
type Evaluator interface {
	Evaluate(ctx context.Context, src *domain.Source) domain.SourceResult
}

// Coordinator runs one evaluation per source concurrently.
type Coordinator struct {
	eval        Evaluator
	concurrency int
	timeout     time.Duration
	log         logger.Logger
	now         func() time.Time
}

// NewCoordinator creates a Coordinator. concurrency 0 means one goroutine
// per source; timeout 0 means no batch deadline.
func NewCoordinator(eval Evaluator, concurrency int, timeout time.Duration, log logger.Logger) *Coordinator {
	return &Coordinator{
		eval:        eval,
		concurrency: concurrency,
		timeout:     timeout,
		log:         log,
		now:         time.Now,
	}
}

// Run evaluates all sources and returns their results in input order.
// The batch deadline turns pending probes into timeout messages; it never
// drops a source.
func (c *Coordinator) Run(ctx context.Context, sources []*domain.Source) *domain.Run {
	run := &domain.Run{
		StartedAt: c.now(),
		Results:   make([]domain.SourceResult, len(sources)),
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.log.Info("batch started",
		logger.Int("sources", len(sources)),
		logger.Int("concurrency", c.concurrency),
		logger.Duration("timeout", c.timeout),
	)

	// Evaluations never return errors, so the group is only used for
	// bounded fan-out and must not cancel siblings.
	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, src := range sources {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					c.log.Error("evaluation panicked",
						logger.String("id", src.ID),
						logger.String("panic", fmt.Sprint(p)),
					)
					run.Results[i] = failedResult(src, p)
				}
			}()
			run.Results[i] = c.eval.Evaluate(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	run.FinishedAt = c.now()
	metrics.BatchDuration.Observe(run.Duration().Seconds())
	metrics.BatchSources.Set(float64(len(sources)))

	summary := run.Summarize()
	c.log.Info("batch finished",
		logger.Int("sources", len(sources)),
		logger.Duration("duration", run.Duration()),
		logger.Int("imagery_good", summary[domain.AspectImagery][domain.StatusGood]),
		logger.Int("imagery_warning", summary[domain.AspectImagery][domain.StatusWarning]),
		logger.Int("imagery_error", summary[domain.AspectImagery][domain.StatusError]),
	)
	return run
}

// failedResult stands in for an evaluation that never returned. Every
// aspect gets the error since none of them can be trusted.
func failedResult(src *domain.Source, p interface{}) domain.SourceResult {
	var r domain.Report
	r.Errorf("Internal error while checking source: %v", p)
	res := r.Result()
	return domain.SourceResult{
		ID:               src.ID,
		Name:             src.Name,
		Type:             src.Type,
		Directory:        src.Directory,
		Filename:         src.Filename,
		Category:         src.Category,
		LicenseURL:       res,
		PrivacyPolicyURL: res,
		Imagery:          res,
	}
}
