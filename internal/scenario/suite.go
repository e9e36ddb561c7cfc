package scenario

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"contractkit/internal/contract"
	"contractkit/internal/descriptor"
	"contractkit/internal/metrics"
	"contractkit/internal/models"
)

// Scenario is a named sequence of checked steps. Each run deploys its own
// instances, so scenarios may run in parallel on one session.
type Scenario interface {
	Name() string
	Run(ctx context.Context, session *contract.Session, reg *descriptor.Registry, c *Collector) error
}

// RunSink receives finished runs, e.g. a storage repository
type RunSink interface {
	SaveScenarioRun(ctx context.Context, run *models.ScenarioRun) error
}

// Suite runs scenarios with bounded parallelism
type Suite struct {
	session     *contract.Session
	registry    *descriptor.Registry
	parallelism int
	sink        RunSink
}

// NewSuite creates a Suite. A parallelism below 1 means 1.
func NewSuite(session *contract.Session, reg *descriptor.Registry, parallelism int) *Suite {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Suite{session: session, registry: reg, parallelism: parallelism}
}

// WithSink makes the suite hand every finished run to sink
func (s *Suite) WithSink(sink RunSink) *Suite {
	s.sink = sink
	return s
}

// RunOne runs a single scenario and returns its record
func (s *Suite) RunOne(ctx context.Context, sc Scenario) *models.ScenarioRun {
	metrics.ScenariosInFlight.Inc()
	defer metrics.ScenariosInFlight.Dec()

	c := NewCollector(sc.Name())
	run := c.Finish(sc.Run(ctx, s.session, s.registry, c))

	if s.sink != nil {
		if err := s.sink.SaveScenarioRun(ctx, run); err != nil {
			metrics.ErrorsTotal.WithLabelValues("scenario").Inc()
			slog.Error("Failed to save scenario run", "run_id", run.ID, "error", err)
		}
	}
	return run
}

// Run executes all scenarios and returns their runs in input order.
// A failing scenario does not stop the others.
func (s *Suite) Run(ctx context.Context, scenarios []Scenario) ([]*models.ScenarioRun, error) {
	runs := make([]*models.ScenarioRun, len(scenarios))

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, sc := range scenarios {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			runs[i] = s.RunOne(ctx, sc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return runs, err
	}
	return runs, nil
}

// Passed reports whether every run passed
func Passed(runs []*models.ScenarioRun) bool {
	for _, r := range runs {
		if r == nil || !r.Passed {
			return false
		}
	}
	return true
}
