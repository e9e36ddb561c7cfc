package debug

import (
	"encoding/json"
	"log/slog"

	"contractkit/internal/models"
)

// PrintDeployment prints the deployment in JSON format
func PrintDeployment(deployment *models.Deployment) {
	jsonData, err := json.MarshalIndent(deployment, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal deployment to JSON", "error", err)
		return
	}

	slog.Debug("Deployment details", "json", string(jsonData))
}

// PrintInvocation prints the invocation in JSON format
func PrintInvocation(inv *models.Invocation) {
	jsonData, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal invocation to JSON", "error", err)
		return
	}

	slog.Debug("Invocation details", "json", string(jsonData))
}

// PrintScenarioRun prints the scenario run in JSON format
func PrintScenarioRun(run *models.ScenarioRun) {
	jsonData, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal scenario run to JSON", "error", err)
		return
	}

	slog.Debug("Scenario run details", "json", string(jsonData))
}
