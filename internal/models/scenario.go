package models

import "time"

// ScenarioRun is the outcome of one scenario execution
type ScenarioRun struct {
	ID         string       `json:"id"`
	Scenario   string       `json:"scenario"`
	Steps      []StepResult `json:"steps"`
	Passed     bool         `json:"passed"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// StepResult is a single checked step of a scenario
type StepResult struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	Passed      bool   `json:"passed"`
	Detail      string `json:"detail,omitempty"`
}

// Failed returns the failing steps
func (r *ScenarioRun) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if !s.Passed {
			failed = append(failed, s)
		}
	}
	return failed
}
