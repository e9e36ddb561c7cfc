package api

import (
	"net/url"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"contractkit/internal/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// pagination reads ?limit= and ?offset=, ignoring values out of range
func pagination(query url.Values) (limit, offset int) {
	limit = defaultPageSize
	if limitStr := query.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= maxPageSize {
			limit = parsed
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// normalizeAddress returns the checksummed form under which deployments
// are stored. ok is false for text that is not a 20-byte hex address.
func normalizeAddress(address string) (string, bool) {
	if !common.IsHexAddress(address) {
		return "", false
	}
	return common.HexToAddress(address).Hex(), true
}

// pageNumber returns the 1-based page an offset falls on
func pageNumber(limit, offset int) int {
	return offset/limit + 1
}

// BuildDeploymentResponse joins a deployment with its invocation history
func BuildDeploymentResponse(d *models.Deployment, invocations []*models.Invocation) *models.DeploymentResponse {
	response := &models.DeploymentResponse{
		Deployment:  *d,
		Invocations: len(invocations),
	}
	for _, inv := range invocations {
		if response.LastUsedAt == nil || inv.StartedAt.After(*response.LastUsedAt) {
			started := inv.StartedAt
			response.LastUsedAt = &started
		}
	}
	return response
}

// BuildScenarioRunSummary creates a summary for list views
func BuildScenarioRunSummary(run *models.ScenarioRun) models.ScenarioRunSummary {
	return models.ScenarioRunSummary{
		ID:         run.ID,
		Scenario:   run.Scenario,
		Passed:     run.Passed,
		Steps:      len(run.Steps),
		Failed:     len(run.Failed()),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}
