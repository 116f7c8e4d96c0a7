package engine

import (
	"context"
	"fmt"

	"github.com/readystackgo/rsgo/internal/config"
	"github.com/readystackgo/rsgo/internal/docker"
)

// RemoveResult is the outcome of removing a stack.
type RemoveResult struct {
	RemovedContexts []string
	Errors          []string
}

// Success reports whether every container was removed.
func (r *RemoveResult) Success() bool {
	return len(r.Errors) == 0
}

// RemoveStack force-removes every container labeled with the stack. A
// container that cannot be removed is logged and skipped.
func (e *Engine) RemoveStack(ctx context.Context, stackName string) (*RemoveResult, error) {
	if stackName == "" {
		return nil, fmt.Errorf("stack name is required")
	}
	logger := e.logger.With().Str("stack", stackName).Logger()

	containers, err := e.docker.ListContainers(ctx, map[string]string{docker.LabelStack: stackName})
	if err != nil {
		e.metrics.IncDockerAPIErrors()
		return nil, fmt.Errorf("list containers for stack %s: %w", stackName, err)
	}

	result := &RemoveResult{}
	for _, ctr := range containers {
		contextName := ctr.Labels[docker.LabelContext]
		if contextName == "" {
			contextName = ctr.Name
		}
		if err := e.docker.RemoveContainer(ctx, ctr.ID, true); err != nil {
			e.metrics.IncDockerAPIErrors()
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", contextName, err))
			logger.Warn().Err(err).Str("container", ctr.Name).Msg("failed to remove container")
			continue
		}
		result.RemovedContexts = append(result.RemovedContexts, contextName)
	}

	if err := e.store.SaveRelease(ctx, config.ReleaseConfig{}); err != nil {
		logger.Warn().Err(err).Msg("failed to clear release config")
	}
	logger.Info().Strs("contexts", result.RemovedContexts).Msg("stack removed")
	return result, nil
}
