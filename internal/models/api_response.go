package models

import (
	"time"
)

// DeploymentListResponse represents a paginated list of deployments
type DeploymentListResponse struct {
	Deployments []*Deployment `json:"deployments"`
	Total       int           `json:"total"`
	Page        int           `json:"page"`
	PageSize    int           `json:"page_size"`
}

// DeploymentResponse represents a deployment with its recent invocations
type DeploymentResponse struct {
	Deployment
	Invocations int        `json:"invocations"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// InvocationsResponse represents the invocations of one contract
type InvocationsResponse struct {
	Address     string        `json:"address"`
	Invocations []*Invocation `json:"invocations"`
	Total       int           `json:"total"`
}

// ScenarioRunListResponse represents a paginated list of scenario runs
type ScenarioRunListResponse struct {
	Runs     []ScenarioRunSummary `json:"runs"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

// ScenarioRunSummary represents a run for list views
type ScenarioRunSummary struct {
	ID         string    `json:"id"`
	Scenario   string    `json:"scenario"`
	Passed     bool      `json:"passed"`
	Steps      int       `json:"steps"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}
