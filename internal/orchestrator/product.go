package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/readystackgo/rsgo/internal/catalog"
	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/productdeployment"
	"github.com/rs/zerolog"
)

// Catalog resolves product definitions.
type Catalog interface {
	GetLatest(groupID string) (catalog.ProductDefinition, bool)
	GetProductVersion(groupID, version string) (catalog.ProductDefinition, bool)
}

// ProductRequest asks for a product version to be deployed.
type ProductRequest struct {
	EnvironmentID   domain.EnvironmentID
	GroupID         string
	Version         string
	Variables       map[string]string
	DeployedBy      string
	ContinueOnError bool
}

// ProductUpgradeRequest asks for the latest deployment of a product to move to
// another version. An empty TargetVersion selects the newest catalog version.
type ProductUpgradeRequest struct {
	EnvironmentID   domain.EnvironmentID
	GroupID         string
	TargetVersion   string
	Variables       map[string]string
	DeployedBy      string
	ContinueOnError bool
}

// ProductService runs multi-stack product commands on top of StackService.
type ProductService struct {
	common
	stacks      *StackService
	products    productdeployment.Repository
	deployments deployment.Repository
	catalog     Catalog
}

// NewProductService returns a product service.
func NewProductService(stacks *StackService, products productdeployment.Repository, cat Catalog, logger zerolog.Logger, opts ...Option) *ProductService {
	return &ProductService{
		common:      newCommon(logger, opts),
		stacks:      stacks,
		products:    products,
		deployments: stacks.deployments,
		catalog:     cat,
	}
}

// Deploy installs every stack of a product version in manifest order.
func (s *ProductService) Deploy(ctx context.Context, req ProductRequest) (*productdeployment.ProductDeployment, error) {
	product, ok := s.catalog.GetProductVersion(req.GroupID, req.Version)
	if !ok {
		return nil, fmt.Errorf("product %s version %s: %w", req.GroupID, req.Version, domain.ErrNotFound)
	}

	existing, err := s.products.GetLatestForProduct(ctx, req.EnvironmentID, product.GroupID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("look up product %s: %w", product.GroupID, err)
	case existing.Status() != productdeployment.StatusRemoved:
		return nil, fmt.Errorf("product %s is already deployed as %s (%s), upgrade it instead: %w",
			product.GroupID, existing.ID(), existing.Status(), domain.ErrAlreadyExists)
	}

	pd, err := productdeployment.InitiateDeployment(productdeployment.DeployParams{
		ID:              s.products.NextIdentity(),
		EnvironmentID:   req.EnvironmentID,
		ProductGroupID:  product.GroupID,
		ProductID:       product.ID,
		ProductName:     product.Name,
		ProductVersion:  product.ProductVersion,
		DeployedBy:      req.DeployedBy,
		Stacks:          stackSpecs(product),
		Variables:       req.Variables,
		ContinueOnError: req.ContinueOnError,
	})
	if err != nil {
		return nil, err
	}
	s.products.Add(pd)
	if err := s.products.SaveChanges(ctx); err != nil {
		return nil, fmt.Errorf("save product deployment %s: %w", pd.ID(), err)
	}
	s.dispatch(ctx, pd.PullEvents())

	return s.runStacks(ctx, pd, product, "product_install", req.DeployedBy)
}

// Upgrade replaces the latest deployment of a product with a newer version.
// The replaced deployment is retired in the same save, and stacks the new
// version drops are removed from it before the new stacks roll out.
func (s *ProductService) Upgrade(ctx context.Context, req ProductUpgradeRequest) (*productdeployment.ProductDeployment, error) {
	existing, err := s.products.GetLatestForProduct(ctx, req.EnvironmentID, req.GroupID)
	if err != nil {
		return nil, err
	}

	var product catalog.ProductDefinition
	var ok bool
	if req.TargetVersion == "" {
		product, ok = s.catalog.GetLatest(req.GroupID)
	} else {
		product, ok = s.catalog.GetProductVersion(req.GroupID, req.TargetVersion)
	}
	if !ok {
		return nil, fmt.Errorf("product %s version %q: %w", req.GroupID, req.TargetVersion, domain.ErrNotFound)
	}
	if catalog.CompareVersions(product.ProductVersion, existing.ProductVersion()) <= 0 {
		return nil, domain.InvalidArgument("target version %s is not newer than deployed %s",
			product.ProductVersion, existing.ProductVersion())
	}

	pd, err := productdeployment.InitiateUpgrade(existing, productdeployment.UpgradeParams{
		ID:              s.products.NextIdentity(),
		ProductID:       product.ID,
		ProductVersion:  product.ProductVersion,
		DeployedBy:      req.DeployedBy,
		Stacks:          stackSpecs(product),
		Variables:       req.Variables,
		ContinueOnError: req.ContinueOnError,
	})
	if err != nil {
		return nil, err
	}
	var kept []string
	for _, stack := range pd.Stacks() {
		kept = append(kept, stack.Name())
	}
	if err := existing.Supersede(pd.ID(), kept); err != nil {
		return nil, err
	}
	s.products.Update(existing)
	s.products.Add(pd)
	if err := s.products.SaveChanges(ctx); err != nil {
		return nil, fmt.Errorf("save product upgrade %s: %w", pd.ID(), err)
	}
	s.dispatch(ctx, existing.PullEvents())
	s.dispatch(ctx, pd.PullEvents())

	if existing.Status() == productdeployment.StatusRemoving {
		if err := s.removeStacks(ctx, existing); err != nil {
			s.logger.Warn().Err(err).
				Str("product_deployment_id", string(existing.ID())).
				Msg("failed to remove stacks dropped by upgrade")
		}
	}

	return s.runStacks(ctx, pd, product, "product_upgrade", req.DeployedBy)
}

// runStacks deploys or upgrades each pending stack in order and settles the
// product status.
func (s *ProductService) runStacks(ctx context.Context, pd *productdeployment.ProductDeployment, product catalog.ProductDefinition, kind, deployedBy string) (*productdeployment.ProductDeployment, error) {
	start := s.now()
	logger := s.logger.With().
		Str("product_deployment_id", string(pd.ID())).
		Str("product", product.GroupID).
		Str("version", product.ProductVersion).
		Logger()

	for _, stack := range pd.GetStacksInDeployOrder() {
		if stack.Status() != productdeployment.StackPending {
			continue
		}
		def, ok := product.Stack(stack.Name())
		if !ok || def.Manifest == nil {
			if err := s.mutate(ctx, pd, func(p *productdeployment.ProductDeployment) error {
				return p.FailStack(stack.Name(), "stack definition has no manifest")
			}); err != nil {
				return pd, err
			}
			if !pd.ContinueOnError() {
				break
			}
			continue
		}

		failure, err := s.runStack(ctx, pd, def, deployedBy)
		if err != nil {
			return pd, err
		}
		if failure != "" {
			logger.Warn().Str("stack", def.Name).Str("error", failure).Msg("product stack failed")
			if !pd.ContinueOnError() {
				break
			}
		}
	}

	if pd.Status() == productdeployment.StatusDeploying || pd.Status() == productdeployment.StatusUpgrading {
		settle := func(p *productdeployment.ProductDeployment) error {
			if p.CompletedStacks() > 0 {
				return p.MarkAsPartiallyRunning("")
			}
			return p.MarkAsFailed(fmt.Sprintf("%d of %d stacks failed", p.FailedStacks(), p.TotalStacks()))
		}
		if err := s.mutate(context.WithoutCancel(ctx), pd, settle); err != nil {
			return pd, err
		}
	}

	result := "succeeded"
	if pd.Status() != productdeployment.StatusRunning {
		result = "failed"
	}
	s.metrics.ObserveDeployment(kind, result, s.now().Sub(start))
	logger.Info().
		Str("status", string(pd.Status())).
		Int("running", pd.CompletedStacks()).
		Int("failed", pd.FailedStacks()).
		Msg("product " + kind + " finished")
	return pd, nil
}

// runStack installs or upgrades one stack and records the outcome on the
// product. It returns the failure message, or "" on success.
func (s *ProductService) runStack(ctx context.Context, pd *productdeployment.ProductDeployment, def catalog.StackDefinition, deployedBy string) (string, error) {
	var existing *deployment.Deployment
	found, err := s.deployments.GetByStack(ctx, pd.EnvironmentID(), def.Name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return "", err
	default:
		existing = found
	}

	id := s.deployments.NextIdentity()
	if existing != nil {
		id = existing.ID()
	}
	if err := s.mutate(ctx, pd, func(p *productdeployment.ProductDeployment) error {
		return p.StartStack(def.Name, id)
	}); err != nil {
		return "", err
	}

	var resp *StackResponse
	var runErr error
	if existing != nil && existing.Status() != deployment.StatusPending {
		resp, runErr = s.stacks.Upgrade(ctx, UpgradeRequest{
			DeploymentID: id,
			Manifest:     def.Manifest,
			Variables:    pd.Variables(),
		})
	} else {
		resp, runErr = s.stacks.Deploy(ctx, StackRequest{
			DeploymentID:  id,
			EnvironmentID: pd.EnvironmentID(),
			StackName:     def.Name,
			StackID:       def.ID,
			ProjectName:   pd.ProductName(),
			Manifest:      def.Manifest,
			Variables:     pd.Variables(),
			DeployedBy:    deployedBy,
		})
	}

	if runErr == nil && resp.Succeeded() {
		count := len(resp.Deployment.Services())
		return "", s.mutate(ctx, pd, func(p *productdeployment.ProductDeployment) error {
			return p.CompleteStack(def.Name, count)
		})
	}

	message := "Stack deployment failed"
	switch {
	case runErr != nil:
		message = runErr.Error()
	case resp != nil && resp.Deployment != nil && resp.Deployment.ErrorMessage() != "":
		message = resp.Deployment.ErrorMessage()
	}
	return message, s.mutate(context.WithoutCancel(ctx), pd, func(p *productdeployment.ProductDeployment) error {
		return p.FailStack(def.Name, message)
	})
}

// Remove removes every stack in reverse order. Stacks that cannot be removed
// are recorded and the product stays Removing so the call can be repeated.
func (s *ProductService) Remove(ctx context.Context, id productdeployment.ID) (*productdeployment.ProductDeployment, error) {
	pd, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if pd.Status() == productdeployment.StatusRemoved {
		return pd, nil
	}
	if err := s.mutate(ctx, pd, (*productdeployment.ProductDeployment).StartRemoval); err != nil {
		return pd, err
	}
	return pd, s.removeStacks(ctx, pd)
}

// removeStacks removes every stack not yet Removed in reverse order.
func (s *ProductService) removeStacks(ctx context.Context, pd *productdeployment.ProductDeployment) error {
	var failures []error
	for _, stack := range pd.GetStacksInRemoveOrder() {
		name := stack.Name()
		if stack.Status() == productdeployment.StackRemoved {
			continue
		}
		if err := s.mutate(ctx, pd, func(p *productdeployment.ProductDeployment) error {
			return p.StartStackRemoval(name)
		}); err != nil {
			return err
		}

		removeErr := s.removeStack(ctx, stack.DeploymentID())
		if removeErr != nil {
			failures = append(failures, fmt.Errorf("%s: %w", name, removeErr))
			if err := s.mutate(ctx, pd, func(p *productdeployment.ProductDeployment) error {
				return p.FailStackRemoval(name, removeErr.Error())
			}); err != nil {
				return err
			}
			continue
		}
		if err := s.mutate(ctx, pd, func(p *productdeployment.ProductDeployment) error {
			return p.MarkStackRemoved(name)
		}); err != nil {
			return err
		}
	}
	return errors.Join(failures...)
}

func (s *ProductService) removeStack(ctx context.Context, id deployment.ID) error {
	if id == "" {
		return nil
	}
	_, err := s.stacks.Remove(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// SyncHealth reconciles the product's stacks with the live status of their
// deployments and recalculates the product status.
func (s *ProductService) SyncHealth(ctx context.Context, id productdeployment.ID) (productdeployment.SyncResult, error) {
	pd, err := s.products.Get(ctx, id)
	if err != nil {
		return productdeployment.SyncSkipped, err
	}
	if !pd.Status().IsOperational() {
		return productdeployment.SyncSkipped, nil
	}

	result := productdeployment.SyncUnchanged
	for _, stack := range pd.Stacks() {
		live, message, ok := s.liveStatus(ctx, stack.DeploymentID())
		if !ok {
			continue
		}
		changed, err := pd.SyncStackHealth(stack.Name(), live, message)
		if err != nil {
			return productdeployment.SyncSkipped, err
		}
		if changed == productdeployment.SyncChanged {
			result = productdeployment.SyncChanged
		}
	}
	if pd.RecalculateProductStatus() == productdeployment.SyncChanged {
		result = productdeployment.SyncChanged
	}
	if result != productdeployment.SyncChanged {
		return result, nil
	}

	s.products.Update(pd)
	if err := s.products.SaveChanges(ctx); err != nil {
		return productdeployment.SyncSkipped, fmt.Errorf("save product deployment %s: %w", pd.ID(), err)
	}
	s.dispatch(ctx, pd.PullEvents())
	return result, nil
}

// liveStatus maps a deployment's status onto a product stack status. Stacks
// whose deployment is mid-operation are not reconciled.
func (s *ProductService) liveStatus(ctx context.Context, id deployment.ID) (productdeployment.StackStatus, string, bool) {
	if id == "" {
		return "", "", false
	}
	d, err := s.deployments.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return productdeployment.StackFailed, "deployment not found", true
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("deployment_id", string(id)).Msg("failed to load deployment for health sync")
		return "", "", false
	}
	switch d.Status() {
	case deployment.StatusRunning:
		return productdeployment.StackRunning, "", true
	case deployment.StatusFailed:
		return productdeployment.StackFailed, d.ErrorMessage(), true
	case deployment.StatusStopped:
		return productdeployment.StackFailed, "deployment stopped", true
	case deployment.StatusRemoved:
		return productdeployment.StackFailed, "deployment removed", true
	default:
		return "", "", false
	}
}

// mutate applies fn to the product deployment, saves and dispatches events.
// The aggregate is updated in place, so fn must succeed on the loaded state.
func (s *ProductService) mutate(ctx context.Context, pd *productdeployment.ProductDeployment, fn func(*productdeployment.ProductDeployment) error) error {
	if err := fn(pd); err != nil {
		return err
	}
	s.products.Update(pd)
	if err := s.products.SaveChanges(ctx); err != nil {
		return fmt.Errorf("save product deployment %s: %w", pd.ID(), err)
	}
	s.dispatch(ctx, pd.PullEvents())
	return nil
}

func stackSpecs(product catalog.ProductDefinition) []productdeployment.StackSpec {
	specs := make([]productdeployment.StackSpec, 0, len(product.Stacks))
	for _, stack := range product.Stacks {
		specs = append(specs, productdeployment.StackSpec{Name: stack.Name, StackID: stack.ID})
	}
	return specs
}

// SyncEnvironment runs SyncHealth for every operational product deployment in
// the environment and returns how many changed.
func (s *ProductService) SyncEnvironment(ctx context.Context, environmentID domain.EnvironmentID) (int, error) {
	products, err := s.products.ListByEnvironment(ctx, environmentID)
	if err != nil {
		return 0, fmt.Errorf("list product deployments in %s: %w", environmentID, err)
	}
	changed := 0
	var errs []error
	for _, pd := range products {
		if !pd.Status().IsOperational() {
			continue
		}
		result, err := s.SyncHealth(ctx, pd.ID())
		if err != nil {
			errs = append(errs, fmt.Errorf("sync %s: %w", pd.ID(), err))
			continue
		}
		if result == productdeployment.SyncChanged {
			changed++
		}
	}
	return changed, errors.Join(errs...)
}
