package mcp

import (
	"strings"

	"intake-pipeline/backend/internal/services"
)

// Ops bundles the service layer behind PipelineOps.
type Ops struct {
	*services.StatusQueryService
	*services.RetryCoordinator
	*services.RegenerationCoordinator
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
