package scenario

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"contractkit/internal/metrics"
	"contractkit/internal/models"
)

// Collector records the checked steps of one scenario run
type Collector struct {
	mu     sync.Mutex
	run    *models.ScenarioRun
	logger *slog.Logger
}

// NewCollector starts a run for the named scenario
func NewCollector(scenario string) *Collector {
	id := uuid.NewString()
	return &Collector{
		run: &models.ScenarioRun{
			ID:        id,
			Scenario:  scenario,
			StartedAt: time.Now(),
		},
		logger: slog.Default().With("scenario", scenario, "run_id", id),
	}
}

// Check records a step and returns passed
func (c *Collector) Check(description string, passed bool, detail string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := models.StepResult{
		Index:       len(c.run.Steps),
		Description: description,
		Passed:      passed,
		Detail:      detail,
	}
	c.run.Steps = append(c.run.Steps, step)

	if passed {
		metrics.ScenarioSteps.WithLabelValues("pass").Inc()
		c.logger.Info("Step passed", "step", step.Index, "description", description)
	} else {
		metrics.ScenarioSteps.WithLabelValues("fail").Inc()
		c.logger.Warn("Step failed", "step", step.Index, "description", description, "detail", detail)
	}
	return passed
}

// Pass records a passing step
func (c *Collector) Pass(description string) {
	c.Check(description, true, "")
}

// Failf records a failing step
func (c *Collector) Failf(description, format string, args ...any) {
	c.Check(description, false, fmt.Sprintf(format, args...))
}

// Finish closes the run. A run passes when err is nil, at least one step
// was checked and every step passed.
func (c *Collector) Finish(err error) *models.ScenarioRun {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := c.run
	run.FinishedAt = time.Now()
	run.Passed = err == nil && len(run.Steps) > 0 && len(run.Failed()) == 0
	if err != nil {
		run.Error = err.Error()
	}

	result := "pass"
	if !run.Passed {
		result = "fail"
	}
	metrics.ScenarioRuns.WithLabelValues(result).Inc()
	c.logger.Info("Scenario finished",
		"passed", run.Passed,
		"steps", len(run.Steps),
		"failed", len(run.Failed()),
		"duration", run.FinishedAt.Sub(run.StartedAt))
	return run
}
