package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/engine"
	"github.com/readystackgo/rsgo/internal/health"
	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/rs/zerolog"
)

// StackRequest asks for a stack to be installed from a manifest.
type StackRequest struct {
	// DeploymentID is optional; a new identity is allocated when empty.
	DeploymentID  deployment.ID
	EnvironmentID domain.EnvironmentID
	StackName     string
	StackID       string
	// ProjectName defaults to StackName.
	ProjectName string
	Manifest    *manifest.ReleaseManifest
	Variables   map[string]string
	DeployedBy  string
}

// UpgradeRequest asks for an existing deployment to move to a new manifest.
type UpgradeRequest struct {
	DeploymentID deployment.ID
	Manifest     *manifest.ReleaseManifest
	Variables    map[string]string
}

// StackResponse reports the persisted deployment and the engine result.
type StackResponse struct {
	Deployment *deployment.Deployment
	Plan       *engine.Plan
	Result     *engine.Result
}

// Succeeded reports whether the deployment ended Running.
func (r *StackResponse) Succeeded() bool {
	return r != nil && r.Deployment != nil && r.Deployment.Status() == deployment.StatusRunning
}

// StackService runs single-stack commands.
type StackService struct {
	common
	engine      Engine
	deployments deployment.Repository
}

// NewStackService returns a stack service over engine and repository.
func NewStackService(eng Engine, deployments deployment.Repository, logger zerolog.Logger, opts ...Option) *StackService {
	return &StackService{
		common:      newCommon(logger, opts),
		engine:      eng,
		deployments: deployments,
	}
}

// Deploy installs a stack. A stopped or failed deployment of the same stack is
// restarted in place; a running one must be upgraded instead.
func (s *StackService) Deploy(ctx context.Context, req StackRequest) (*StackResponse, error) {
	if req.Manifest == nil {
		return nil, domain.InvalidArgument("manifest is required")
	}
	if err := domain.RequireNonEmpty("stack name", req.StackName); err != nil {
		return nil, err
	}

	d, err := s.prepareInstall(ctx, req)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With().Str("stack", d.StackName()).Str("deployment_id", string(d.ID())).Logger()
	logger.Info().Str("version", req.Manifest.StackVersion).Msg("installing stack")

	return s.run(ctx, d, "install", engine.PlanRequest{
		Manifest:      req.Manifest,
		StackName:     req.StackName,
		EnvironmentID: req.EnvironmentID,
		Variables:     req.Variables,
	}, logger)
}

func (s *StackService) prepareInstall(ctx context.Context, req StackRequest) (*deployment.Deployment, error) {
	existing, err := s.deployments.GetByStack(ctx, req.EnvironmentID, req.StackName)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("look up stack %s: %w", req.StackName, err)
	default:
		switch existing.Status() {
		case deployment.StatusStopped, deployment.StatusFailed:
			return s.mutate(ctx, existing, (*deployment.Deployment).Restart)
		case deployment.StatusPending:
			return s.mutate(ctx, existing, (*deployment.Deployment).MarkAsInstalling)
		case deployment.StatusRunning:
			return nil, fmt.Errorf("stack %s is already running as %s, upgrade it instead: %w",
				req.StackName, existing.ID(), domain.ErrAlreadyExists)
		default:
			return nil, fmt.Errorf("stack %s is %s: %w", req.StackName, existing.Status(), domain.ErrInvalidTransition)
		}
	}

	id := req.DeploymentID
	if id == "" {
		id = s.deployments.NextIdentity()
	}
	project := req.ProjectName
	if project == "" {
		project = req.StackName
	}
	d, err := deployment.Start(id, req.EnvironmentID, req.StackName, project, req.DeployedBy,
		deployment.WithStackID(req.StackID),
		deployment.WithStackVersion(req.Manifest.StackVersion),
		deployment.WithVariables(req.Variables),
	)
	if err != nil {
		return nil, err
	}
	if err := d.MarkAsInstalling(); err != nil {
		return nil, err
	}
	s.deployments.Add(d)
	if err := s.deployments.SaveChanges(ctx); err != nil {
		return nil, fmt.Errorf("save deployment %s: %w", id, err)
	}
	s.dispatch(ctx, d.PullEvents())
	return d, nil
}

// Upgrade moves a deployment to the manifest's stack version.
func (s *StackService) Upgrade(ctx context.Context, req UpgradeRequest) (*StackResponse, error) {
	if req.Manifest == nil {
		return nil, domain.InvalidArgument("manifest is required")
	}
	d, err := s.deployments.Get(ctx, req.DeploymentID)
	if err != nil {
		return nil, err
	}
	target := req.Manifest.StackVersion
	d, err = s.mutate(ctx, d, func(d *deployment.Deployment) error {
		return d.StartUpgrade(target)
	})
	if err != nil {
		return nil, err
	}
	logger := s.logger.With().Str("stack", d.StackName()).Str("deployment_id", string(d.ID())).Logger()
	logger.Info().Str("from", d.PreviousVersion()).Str("to", target).Msg("upgrading stack")

	vars := d.Variables()
	for k, v := range req.Variables {
		vars[k] = v
	}
	return s.run(ctx, d, "upgrade", engine.PlanRequest{
		Manifest:      req.Manifest,
		StackName:     d.StackName(),
		EnvironmentID: d.EnvironmentID(),
		Variables:     vars,
	}, logger)
}

// run plans and executes an install or upgrade and records the outcome.
func (s *StackService) run(ctx context.Context, d *deployment.Deployment, kind string, planReq engine.PlanRequest, logger zerolog.Logger) (*StackResponse, error) {
	start := s.now()
	resp := &StackResponse{Deployment: d}

	plan, err := s.engine.GeneratePlan(ctx, planReq)
	if err != nil {
		logger.Error().Err(err).Msg("failed to generate plan")
		d, saveErr := s.mutate(ctx, d, func(d *deployment.Deployment) error {
			return d.MarkAsFailed(fmt.Sprintf("plan generation failed: %v", err))
		})
		resp.Deployment = d
		s.metrics.ObserveDeployment(kind, "failed", s.now().Sub(start))
		return resp, errors.Join(err, saveErr)
	}
	resp.Plan = plan

	current := d
	result, err := s.engine.Execute(ctx, plan,
		engine.WithProgress(func(ctx context.Context, phase deployment.Phase, pct int, msg string) {
			updated, err := s.mutate(ctx, current, func(d *deployment.Deployment) error {
				return d.UpdateProgress(phase, pct, msg)
			})
			if err != nil {
				logger.Warn().Err(err).Msg("failed to persist progress")
				return
			}
			current = updated
		}),
		engine.WithCancellation(func(ctx context.Context) (string, bool) {
			latest, err := s.deployments.Get(ctx, current.ID())
			if err != nil {
				logger.Warn().Err(err).Msg("failed to poll cancellation flag")
				return "", false
			}
			if !latest.IsCancellationRequested() {
				return "", false
			}
			current = latest
			return latest.CancellationReason(), true
		}),
	)
	if err != nil {
		return resp, err
	}
	resp.Result = result

	finish := func(d *deployment.Deployment) error {
		if result.Success {
			return d.MarkAsRunning(result.Services)
		}
		return d.MarkAsFailed(failureMessage(result))
	}
	final, err := s.mutate(context.WithoutCancel(ctx), current, finish)
	resp.Deployment = final
	s.metrics.ObserveDeployment(kind, outcome(result), result.Duration)
	if err != nil {
		return resp, err
	}

	event := logger.Info()
	if !result.Success {
		event = logger.Warn().Strs("errors", result.Errors)
	}
	event.Str("status", string(final.Status())).
		Strs("contexts", result.DeployedContexts).
		Dur("duration", result.Duration).
		Msg("stack " + kind + " finished")
	return resp, nil
}

func failureMessage(result *engine.Result) string {
	if result.Cancelled {
		return "Cancelled: " + result.CancelReason
	}
	if len(result.Errors) == 0 {
		return "Deployment failed"
	}
	return strings.Join(result.Errors, "; ")
}

// Remove removes the stack's containers and terminates the deployment. When
// some containers could not be removed the deployment is left unchanged so the
// removal can be retried.
func (s *StackService) Remove(ctx context.Context, id deployment.ID) (*deployment.Deployment, error) {
	d, err := s.deployments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status() == deployment.StatusRemoved {
		return d, nil
	}
	if !d.CanTransitionTo(deployment.StatusRemoved) {
		return d, domain.NewTransitionError("deployment", d.Status(), deployment.StatusRemoved)
	}

	result, err := s.engine.RemoveStack(ctx, d.StackName())
	if err != nil {
		return d, err
	}
	if !result.Success() {
		return d, fmt.Errorf("remove stack %s: %s", d.StackName(), strings.Join(result.Errors, "; "))
	}
	s.logger.Info().Str("stack", d.StackName()).Str("deployment_id", string(id)).Msg("stack removed")
	return s.mutate(ctx, d, (*deployment.Deployment).MarkAsRemoved)
}

// Cancel requests cooperative cancellation of an install or upgrade. The
// executing command observes the flag before its next step.
func (s *StackService) Cancel(ctx context.Context, id deployment.ID, reason string) (*deployment.Deployment, error) {
	d, err := s.deployments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, d, func(d *deployment.Deployment) error {
		return d.RequestCancellation(reason)
	})
}

// Abort fails an install or upgrade that has no live executor, such as one
// left behind by a crashed process. Callers must hold exclusive access to the
// repository.
func (s *StackService) Abort(ctx context.Context, id deployment.ID, reason string) (*deployment.Deployment, error) {
	d, err := s.deployments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, d, func(d *deployment.Deployment) error {
		if err := d.RequestCancellation(reason); err != nil {
			return err
		}
		return d.MarkAsFailed("Cancelled: " + d.CancellationReason())
	})
}

// ChangeOperationMode applies a mode change to a deployment.
func (s *StackService) ChangeOperationMode(ctx context.Context, id deployment.ID, mode health.OperationMode) (*deployment.Deployment, error) {
	d, err := s.deployments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.OperationMode() == mode {
		return d, nil
	}
	return s.mutate(ctx, d, func(d *deployment.Deployment) error {
		return d.ChangeOperationMode(mode)
	})
}

// mutate applies fn, saves and dispatches events. On a concurrency conflict
// the deployment is reloaded and fn reapplied.
func (s *StackService) mutate(ctx context.Context, d *deployment.Deployment, fn func(*deployment.Deployment) error) (*deployment.Deployment, error) {
	for attempt := 0; ; attempt++ {
		if err := fn(d); err != nil {
			return d, err
		}
		s.deployments.Update(d)
		err := s.deployments.SaveChanges(ctx)
		if err == nil {
			s.dispatch(ctx, d.PullEvents())
			return d, nil
		}
		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) || attempt >= maxConflictRetries {
			return d, fmt.Errorf("save deployment %s: %w", d.ID(), err)
		}
		s.logger.Debug().Str("deployment_id", string(d.ID())).Int("attempt", attempt+1).Msg("concurrency conflict, reloading deployment")
		reloaded, getErr := s.deployments.Get(ctx, d.ID())
		if getErr != nil {
			return d, fmt.Errorf("reload deployment %s: %w", d.ID(), getErr)
		}
		d = reloaded
	}
}
