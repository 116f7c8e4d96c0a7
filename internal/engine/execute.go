package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/readystackgo/rsgo/internal/config"
	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/docker"
)

// Result is the outcome of executing a plan. Docker failures are reported
// here instead of as errors so callers can decide on remediation.
type Result struct {
	Success          bool
	Cancelled        bool
	CancelReason     string
	DeployedContexts []string
	Services         []deployment.DeployedService
	Errors           []string
	Warnings         []string
	Duration         time.Duration
}

// ProgressFunc receives progress updates between steps.
type ProgressFunc func(ctx context.Context, phase deployment.Phase, percentage int, message string)

// CancellationFunc reports whether execution should stop before the next step.
type CancellationFunc func(ctx context.Context) (reason string, cancelled bool)

type executeOptions struct {
	progress ProgressFunc
	cancel   CancellationFunc
}

// ExecuteOption customizes a single Execute call.
type ExecuteOption func(*executeOptions)

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) ExecuteOption {
	return func(o *executeOptions) {
		o.progress = fn
	}
}

// WithCancellation registers a cancellation probe polled between steps.
func WithCancellation(fn CancellationFunc) ExecuteOption {
	return func(o *executeOptions) {
		o.cancel = fn
	}
}

// Execute runs the plan steps strictly in order. The first failing step ends
// execution; steps deployed earlier in the run are left in place.
func (e *Engine) Execute(ctx context.Context, plan *Plan, opts ...ExecuteOption) (*Result, error) {
	if plan == nil {
		return nil, errNilPlan
	}
	options := executeOptions{
		progress: func(context.Context, deployment.Phase, int, string) {},
		cancel:   func(context.Context) (string, bool) { return "", false },
	}
	for _, opt := range opts {
		opt(&options)
	}

	start := e.now()
	result := &Result{}
	logger := e.logger.With().Str("stack", plan.StackName).Logger()

	finish := func() *Result {
		result.Duration = e.now().Sub(start)
		return result
	}

	options.progress(ctx, deployment.PhaseCreatingNetworks, 5, "Ensuring networks")
	for _, name := range requiredNetworks(plan) {
		if err := e.docker.EnsureNetwork(ctx, name); err != nil {
			e.metrics.IncDockerAPIErrors()
			result.Errors = append(result.Errors, fmt.Sprintf("network %s: %v", name, err))
			logger.Error().Err(err).Str("network", name).Msg("failed to ensure network")
			return finish(), nil
		}
	}

	total := len(plan.Steps)
	for i, step := range plan.Steps {
		if reason, cancelled := e.cancelled(ctx, options.cancel); cancelled {
			result.Cancelled = true
			result.CancelReason = reason
			logger.Warn().Str("reason", reason).Int("completed", i).Msg("deployment cancelled")
			return finish(), nil
		}

		percentage := 10 + (80*i)/max(total, 1)
		options.progress(ctx, deployment.PhasePullingImages, percentage, fmt.Sprintf("Deploying %s (%d/%d)", step.ContextName, i+1, total))

		service, warnings, err := e.deployStep(ctx, plan, step)
		result.Warnings = append(result.Warnings, warnings...)
		if err != nil {
			e.metrics.IncStep("failed")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", step.ContextName, err))
			logger.Error().Err(err).Str("context", step.ContextName).Msg("deployment step failed")
			return finish(), nil
		}
		e.metrics.IncStep("succeeded")
		result.DeployedContexts = append(result.DeployedContexts, step.ContextName)
		result.Services = append(result.Services, service)
	}

	options.progress(ctx, deployment.PhaseStartingServices, 95, "Recording release")
	if err := e.recordRelease(ctx, plan); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("release config: %v", err))
		logger.Warn().Err(err).Msg("failed to update release config")
	}

	result.Success = true
	logger.Info().Strs("contexts", result.DeployedContexts).Msg("deployment plan executed")
	return finish(), nil
}

func (e *Engine) cancelled(ctx context.Context, probe CancellationFunc) (string, bool) {
	if err := ctx.Err(); err != nil {
		return err.Error(), true
	}
	return probe(ctx)
}

// deployStep replaces the step's container. Pull failures fall back to a
// local image when one exists.
func (e *Engine) deployStep(ctx context.Context, plan *Plan, step Step) (deployment.DeployedService, []string, error) {
	var warnings []string
	logger := e.logger.With().Str("stack", plan.StackName).Str("context", step.ContextName).Logger()

	existing, err := e.docker.GetContainerByName(ctx, step.ContainerName)
	if err != nil {
		e.metrics.IncDockerAPIErrors()
		return deployment.DeployedService{}, warnings, fmt.Errorf("look up container %s: %w", step.ContainerName, err)
	}
	if existing != nil {
		if err := e.docker.RemoveContainer(ctx, existing.ID, true); err != nil {
			e.metrics.IncDockerAPIErrors()
			return deployment.DeployedService{}, warnings, fmt.Errorf("remove existing container %s: %w", step.ContainerName, err)
		}
		logger.Debug().Str("container_id", existing.ID).Msg("removed existing container")
	}

	name, tag := pullReference(step.Image)
	ref := name + ":" + tag
	if err := e.docker.PullImage(ctx, name, tag); err != nil {
		exists, inspectErr := e.docker.ImageExists(ctx, ref)
		if inspectErr != nil || !exists {
			return deployment.DeployedService{}, warnings, fmt.Errorf("pull image %s failed and no local copy exists: %w", ref, err)
		}
		e.metrics.IncPullFallback()
		warnings = append(warnings, fmt.Sprintf("%s: pull of %s failed, using local image", step.ContextName, ref))
		logger.Warn().Err(err).Str("image", ref).Msg("image pull failed, using local image")
	}

	containerID, err := e.docker.CreateAndStartContainer(ctx, docker.CreateContainerRequest{
		Name:           step.ContainerName,
		Image:          ref,
		Env:            step.Env,
		Ports:          step.Ports,
		Volumes:        step.Volumes,
		Networks:       step.Networks,
		NetworkAliases: []string{step.ContextName},
		Labels: map[string]string{
			docker.LabelStack:       plan.StackName,
			docker.LabelContext:     step.ContextName,
			docker.LabelEnvironment: string(plan.EnvironmentID),
		},
	})
	if err != nil {
		e.metrics.IncDockerAPIErrors()
		return deployment.DeployedService{}, warnings, err
	}

	logger.Info().Str("container_id", containerID).Str("image", ref).Msg("container started")
	return deployment.DeployedService{
		Name:          step.ContextName,
		ContainerID:   containerID,
		ContainerName: step.ContainerName,
		Image:         ref,
		Status:        "running",
	}, warnings, nil
}

func (e *Engine) recordRelease(ctx context.Context, plan *Plan) error {
	contexts := make(map[string]string, len(plan.Steps))
	for _, step := range plan.Steps {
		version := step.Version
		if version == "" {
			_, version = ParseImageReference(step.Image)
		}
		contexts[step.ContextName] = version
	}
	return e.store.SaveRelease(ctx, config.ReleaseConfig{
		InstalledStackVersion: plan.StackVersion,
		InstalledContexts:     contexts,
		InstallDate:           e.now().UTC(),
	})
}

// requiredNetworks lists the non-external networks used by the plan.
func requiredNetworks(plan *Plan) []string {
	seen := map[string]bool{}
	for _, step := range plan.Steps {
		for _, name := range step.Networks {
			if plan.Networks[name].External {
				continue
			}
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
