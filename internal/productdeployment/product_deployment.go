package productdeployment

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/domain"
)

const entityName = "product deployment"

// ID identifies a product deployment.
type ID string

// NewID returns a random product deployment id.
func NewID() ID {
	return ID(uuid.NewString())
}

// StackSpec describes one stack of the product, in manifest order.
type StackSpec struct {
	Name    string
	StackID string
}

// PhaseRecord is one entry of the product phase history.
type PhaseRecord struct {
	Phase   string    `json:"phase"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// DeployParams carries the inputs of InitiateDeployment.
type DeployParams struct {
	ID              ID
	EnvironmentID   domain.EnvironmentID
	ProductGroupID  string
	ProductID       string
	ProductName     string
	ProductVersion  string
	DeployedBy      string
	Stacks          []StackSpec
	Variables       map[string]string
	ContinueOnError bool
}

// UpgradeParams carries the inputs of InitiateUpgrade.
type UpgradeParams struct {
	ID              ID
	ProductID       string
	ProductVersion  string
	DeployedBy      string
	Stacks          []StackSpec
	Variables       map[string]string
	ContinueOnError bool
}

// ProductDeployment coordinates the deployment of several stacks that make up
// a product. It records outcomes and derives status; callers decide whether
// to continue after a stack fails.
type ProductDeployment struct {
	domain.EventLog

	id              ID
	environmentID   domain.EnvironmentID
	productGroupID  string
	productID       string
	productName     string
	productVersion  string
	deployedBy      string
	status          Status
	stacks          []*StackDeployment
	variables       map[string]string
	phases          []PhaseRecord
	isUpgrade       bool
	previousVersion string
	upgradeCount    int
	lastUpgradedAt  time.Time
	continueOnError bool
	errorMessage    string
	createdAt       time.Time
	completedAt     time.Time
	version         int64
}

// InitiateDeployment creates a product deployment in Deploying with every
// stack Pending.
func InitiateDeployment(p DeployParams) (*ProductDeployment, error) {
	if err := domain.RequireNonEmpty("product deployment id", string(p.ID)); err != nil {
		return nil, err
	}
	if err := domain.RequireNonEmpty("environment id", string(p.EnvironmentID)); err != nil {
		return nil, err
	}
	if err := domain.RequireNonEmpty("product group id", p.ProductGroupID); err != nil {
		return nil, err
	}
	if err := domain.RequireNonEmpty("product name", p.ProductName); err != nil {
		return nil, err
	}
	if err := domain.RequireNonEmpty("product version", p.ProductVersion); err != nil {
		return nil, err
	}
	stacks, err := buildStacks(p.Stacks, nil)
	if err != nil {
		return nil, err
	}
	pd := &ProductDeployment{
		id:              p.ID,
		environmentID:   p.EnvironmentID,
		productGroupID:  p.ProductGroupID,
		productID:       p.ProductID,
		productName:     p.ProductName,
		productVersion:  p.ProductVersion,
		deployedBy:      p.DeployedBy,
		status:          StatusDeploying,
		stacks:          stacks,
		variables:       copyVars(p.Variables),
		continueOnError: p.ContinueOnError,
		createdAt:       time.Now().UTC(),
	}
	pd.recordPhase("Deploying", fmt.Sprintf("Deploying %s %s (%d stacks)", p.ProductName, p.ProductVersion, len(stacks)))
	pd.Record(pd.event(domain.EventProductDeploymentInitiated, "", "product deployment initiated"))
	return pd, nil
}

// InitiateUpgrade creates a new product deployment in Upgrading that replaces
// existing. The existing deployment must be able to enter Upgrading.
func InitiateUpgrade(existing *ProductDeployment, p UpgradeParams) (*ProductDeployment, error) {
	if existing == nil {
		return nil, domain.InvalidArgument("existing product deployment is required")
	}
	if err := domain.RequireNonEmpty("product deployment id", string(p.ID)); err != nil {
		return nil, err
	}
	if err := domain.RequireNonEmpty("product version", p.ProductVersion); err != nil {
		return nil, err
	}
	if !existing.status.CanTransitionTo(StatusUpgrading) {
		return nil, domain.NewTransitionError(entityName, existing.status, StatusUpgrading)
	}
	previous := make(map[string]struct{}, len(existing.stacks))
	for _, stack := range existing.stacks {
		previous[stack.name] = struct{}{}
	}
	stacks, err := buildStacks(p.Stacks, previous)
	if err != nil {
		return nil, err
	}
	productID := p.ProductID
	if productID == "" {
		productID = existing.productID
	}
	vars := existing.Variables()
	for k, v := range p.Variables {
		vars[k] = v
	}
	pd := &ProductDeployment{
		id:              p.ID,
		environmentID:   existing.environmentID,
		productGroupID:  existing.productGroupID,
		productID:       productID,
		productName:     existing.productName,
		productVersion:  p.ProductVersion,
		deployedBy:      p.DeployedBy,
		status:          StatusUpgrading,
		stacks:          stacks,
		variables:       vars,
		isUpgrade:       true,
		previousVersion: existing.productVersion,
		upgradeCount:    existing.upgradeCount,
		lastUpgradedAt:  existing.lastUpgradedAt,
		continueOnError: p.ContinueOnError,
		createdAt:       time.Now().UTC(),
	}
	pd.recordPhase("Upgrading", fmt.Sprintf("Upgrading %s from %s to %s", pd.productName, pd.previousVersion, pd.productVersion))
	pd.Record(pd.event(domain.EventProductUpgradeInitiated, "", "product upgrade initiated").
		With("from", pd.previousVersion).
		With("to", pd.productVersion))
	return pd, nil
}

func buildStacks(specs []StackSpec, previous map[string]struct{}) ([]*StackDeployment, error) {
	if len(specs) == 0 {
		return nil, domain.InvalidArgument("at least one stack is required")
	}
	seen := make(map[string]struct{}, len(specs))
	stacks := make([]*StackDeployment, 0, len(specs))
	for i, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, domain.InvalidArgument("stack %d has no name", i)
		}
		if _, ok := seen[name]; ok {
			return nil, domain.InvalidArgument("duplicate stack name %q", name)
		}
		seen[name] = struct{}{}
		stack := &StackDeployment{
			name:    name,
			stackID: spec.StackID,
			order:   i,
			status:  StackPending,
		}
		if previous != nil {
			_, existed := previous[name]
			stack.isNewInUpgrade = !existed
		}
		stacks = append(stacks, stack)
	}
	return stacks, nil
}

func (p *ProductDeployment) ID() ID                              { return p.id }
func (p *ProductDeployment) EnvironmentID() domain.EnvironmentID { return p.environmentID }
func (p *ProductDeployment) ProductGroupID() string              { return p.productGroupID }
func (p *ProductDeployment) ProductID() string                   { return p.productID }
func (p *ProductDeployment) ProductName() string                 { return p.productName }
func (p *ProductDeployment) ProductVersion() string              { return p.productVersion }
func (p *ProductDeployment) DeployedBy() string                  { return p.deployedBy }
func (p *ProductDeployment) Status() Status                      { return p.status }
func (p *ProductDeployment) IsUpgrade() bool                     { return p.isUpgrade }
func (p *ProductDeployment) PreviousVersion() string             { return p.previousVersion }
func (p *ProductDeployment) UpgradeCount() int                   { return p.upgradeCount }
func (p *ProductDeployment) LastUpgradedAt() time.Time           { return p.lastUpgradedAt }
func (p *ProductDeployment) ContinueOnError() bool               { return p.continueOnError }
func (p *ProductDeployment) ErrorMessage() string                { return p.errorMessage }
func (p *ProductDeployment) CreatedAt() time.Time                { return p.createdAt }
func (p *ProductDeployment) CompletedAt() time.Time              { return p.completedAt }
func (p *ProductDeployment) Version() int64                      { return p.version }

// SetVersion is called by repositories after a successful save.
func (p *ProductDeployment) SetVersion(version int64) { p.version = version }

// Variables returns a copy of the shared variables.
func (p *ProductDeployment) Variables() map[string]string {
	return copyVars(p.variables)
}

// PhaseHistory returns a copy of the recorded phases.
func (p *ProductDeployment) PhaseHistory() []PhaseRecord {
	return append([]PhaseRecord(nil), p.phases...)
}

// Stacks returns copies of the child stacks in deploy order.
func (p *ProductDeployment) Stacks() []StackDeployment {
	out := make([]StackDeployment, 0, len(p.stacks))
	for _, stack := range p.GetStacksInDeployOrder() {
		out = append(out, *stack)
	}
	return out
}

// Stack returns a copy of the named stack.
func (p *ProductDeployment) Stack(name string) (StackDeployment, bool) {
	stack := p.find(name)
	if stack == nil {
		return StackDeployment{}, false
	}
	return *stack, true
}

// GetStacksInDeployOrder returns the stacks by ascending Order.
func (p *ProductDeployment) GetStacksInDeployOrder() []*StackDeployment {
	out := make([]*StackDeployment, 0, len(p.stacks))
	for _, stack := range p.stacks {
		out = append(out, stack.clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// GetStacksInRemoveOrder returns the stacks by descending Order.
func (p *ProductDeployment) GetStacksInRemoveOrder() []*StackDeployment {
	out := p.GetStacksInDeployOrder()
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// TotalStacks counts every stack.
func (p *ProductDeployment) TotalStacks() int { return len(p.stacks) }

// CompletedStacks counts stacks that are Running.
func (p *ProductDeployment) CompletedStacks() int { return p.count(StackRunning) }

// FailedStacks counts stacks that are Failed.
func (p *ProductDeployment) FailedStacks() int { return p.count(StackFailed) }

// PendingStacks counts stacks not yet finished: Pending or Deploying.
func (p *ProductDeployment) PendingStacks() int {
	return p.count(StackPending) + p.count(StackDeploying)
}

// ProgressPercentage is the share of stacks that finished, successfully or not.
func (p *ProductDeployment) ProgressPercentage() int {
	if len(p.stacks) == 0 {
		return 0
	}
	return (p.CompletedStacks() + p.FailedStacks()) * 100 / len(p.stacks)
}

// StartStack marks a pending stack as deploying and links its Deployment.
func (p *ProductDeployment) StartStack(name string, deploymentID deployment.ID) error {
	if p.status != StatusDeploying && p.status != StatusUpgrading {
		return fmt.Errorf("%s: cannot start stack %q while %s: %w", entityName, name, p.status, domain.ErrInvalidTransition)
	}
	if err := domain.RequireNonEmpty("deployment id", string(deploymentID)); err != nil {
		return err
	}
	stack, err := p.mustFind(name)
	if err != nil {
		return err
	}
	if stack.status != StackPending {
		return domain.NewTransitionError("product stack "+name, stack.status, StackDeploying)
	}
	stack.status = StackDeploying
	stack.deploymentID = deploymentID
	stack.startedAt = time.Now().UTC()
	stack.errorMessage = ""
	p.Record(p.event(domain.EventProductStackStarted, name, "stack deployment started").
		With("deployment_id", string(deploymentID)))
	return nil
}

// CompleteStack marks a deploying stack as running. When every stack is
// running the product completes automatically.
func (p *ProductDeployment) CompleteStack(name string, serviceCount int) error {
	if serviceCount < 0 {
		return domain.InvalidArgument("service count must be >= 0, got %d", serviceCount)
	}
	stack, err := p.mustFind(name)
	if err != nil {
		return err
	}
	if stack.status != StackDeploying {
		return domain.NewTransitionError("product stack "+name, stack.status, StackRunning)
	}
	stack.status = StackRunning
	stack.serviceCount = serviceCount
	stack.completedAt = time.Now().UTC()
	p.Record(p.event(domain.EventProductStackCompleted, name, fmt.Sprintf("stack running with %d services", serviceCount)))
	if p.CompletedStacks() == len(p.stacks) {
		p.complete()
	}
	return nil
}

// FailStack records a failed stack. The product status is unchanged.
func (p *ProductDeployment) FailStack(name, message string) error {
	stack, err := p.mustFind(name)
	if err != nil {
		return err
	}
	if stack.status != StackDeploying && stack.status != StackPending {
		return domain.NewTransitionError("product stack "+name, stack.status, StackFailed)
	}
	if strings.TrimSpace(message) == "" {
		message = "Stack deployment failed"
	}
	stack.status = StackFailed
	stack.errorMessage = message
	stack.completedAt = time.Now().UTC()
	p.Record(p.event(domain.EventProductStackFailed, name, message))
	return nil
}

func (p *ProductDeployment) complete() {
	now := time.Now().UTC()
	wasUpgrade := p.status == StatusUpgrading
	p.status = StatusRunning
	p.errorMessage = ""
	p.completedAt = now
	if wasUpgrade {
		p.upgradeCount++
		p.lastUpgradedAt = now
		p.recordPhase("UpgradeCompleted", fmt.Sprintf("Upgraded to %s", p.productVersion))
		p.Record(p.event(domain.EventProductUpgradeCompleted, "", "product upgrade completed"))
		return
	}
	p.recordPhase("Completed", "All stacks running")
	p.Record(p.event(domain.EventProductDeploymentCompleted, "", "product deployment completed"))
}

// MarkAsPartiallyRunning records a mixed outcome. At least one stack must be
// running and at least one failed or still pending.
func (p *ProductDeployment) MarkAsPartiallyRunning(reason string) error {
	if !p.status.CanTransitionTo(StatusPartiallyRunning) {
		return domain.NewTransitionError(entityName, p.status, StatusPartiallyRunning)
	}
	if p.CompletedStacks() == 0 {
		return domain.InvalidArgument("partially running requires at least one running stack")
	}
	if p.FailedStacks() == 0 && p.PendingStacks() == 0 {
		return domain.InvalidArgument("partially running requires at least one failed or pending stack")
	}
	if strings.TrimSpace(reason) == "" {
		reason = fmt.Sprintf("%d of %d stacks running", p.CompletedStacks(), len(p.stacks))
	}
	p.status = StatusPartiallyRunning
	p.errorMessage = reason
	p.completedAt = time.Now().UTC()
	p.recordPhase("PartiallyRunning", reason)
	p.Record(p.event(domain.EventProductPartiallyRunning, "", reason))
	return nil
}

// MarkAsFailed records a failed deployment, upgrade or reconciliation.
func (p *ProductDeployment) MarkAsFailed(message string) error {
	if !p.status.CanTransitionTo(StatusFailed) {
		return domain.NewTransitionError(entityName, p.status, StatusFailed)
	}
	if strings.TrimSpace(message) == "" {
		message = "Product deployment failed"
	}
	p.status = StatusFailed
	p.errorMessage = message
	p.completedAt = time.Now().UTC()
	p.recordPhase("Failed", message)
	p.Record(p.event(domain.EventProductDeploymentFailed, "", message))
	return nil
}

// StartRemoval moves the product into Removing. Calling it again while
// Removing restarts the pass and resets unfinished stacks to Pending.
func (p *ProductDeployment) StartRemoval() error {
	if p.status == StatusRemoving {
		for _, stack := range p.stacks {
			if stack.status != StackRemoved {
				stack.ResetToPending()
			}
		}
		p.recordPhase("Removing", "Removal restarted")
		return nil
	}
	if !p.status.CanTransitionTo(StatusRemoving) {
		return domain.NewTransitionError(entityName, p.status, StatusRemoving)
	}
	p.status = StatusRemoving
	p.completedAt = time.Time{}
	p.recordPhase("Removing", "Removing all stacks")
	p.Record(p.event(domain.EventProductRemovalStarted, "", "product removal started"))
	return nil
}

// Supersede retires the deployment once the upgrade by has replaced it. Stacks
// named in kept now belong to the replacement and are settled as Removed. The
// product enters Removing so the remaining stacks can be removed, or becomes
// Removed at once when nothing is left.
func (p *ProductDeployment) Supersede(by ID, kept []string) error {
	if err := domain.RequireNonEmpty("replacement id", string(by)); err != nil {
		return err
	}
	if by == p.id {
		return domain.InvalidArgument("product deployment %s cannot supersede itself", p.id)
	}
	if !p.status.CanTransitionTo(StatusRemoving) {
		return domain.NewTransitionError(entityName, p.status, StatusRemoving)
	}
	handover := make(map[string]struct{}, len(kept))
	for _, name := range kept {
		handover[name] = struct{}{}
	}
	now := time.Now().UTC()
	for _, stack := range p.stacks {
		if _, ok := handover[stack.name]; ok {
			stack.status = StackRemoved
			stack.errorMessage = ""
			stack.completedAt = now
		}
	}
	p.status = StatusRemoving
	p.errorMessage = ""
	p.completedAt = time.Time{}
	p.recordPhase("Superseded", fmt.Sprintf("Replaced by %s", by))
	p.Record(p.event(domain.EventProductSuperseded, "", "product deployment superseded").
		With("replaced_by", string(by)))
	if p.count(StackRemoved) == len(p.stacks) {
		p.status = StatusRemoved
		p.completedAt = now
		p.recordPhase("Removed", "All stacks handed over")
		p.Record(p.event(domain.EventProductRemoved, "", "product removed"))
	}
	return nil
}

// StartStackRemoval marks a stack as being removed.
func (p *ProductDeployment) StartStackRemoval(name string) error {
	if p.status != StatusRemoving {
		return fmt.Errorf("%s: cannot remove stack %q while %s: %w", entityName, name, p.status, domain.ErrInvalidTransition)
	}
	stack, err := p.mustFind(name)
	if err != nil {
		return err
	}
	if stack.status == StackRemoved {
		return domain.NewTransitionError("product stack "+name, stack.status, StackRemoving)
	}
	stack.status = StackRemoving
	return nil
}

// MarkStackRemoved records a removed stack. When every stack is removed the
// product becomes Removed.
func (p *ProductDeployment) MarkStackRemoved(name string) error {
	if p.status != StatusRemoving {
		return fmt.Errorf("%s: cannot remove stack %q while %s: %w", entityName, name, p.status, domain.ErrInvalidTransition)
	}
	stack, err := p.mustFind(name)
	if err != nil {
		return err
	}
	if stack.status == StackRemoved {
		return nil
	}
	stack.status = StackRemoved
	stack.errorMessage = ""
	stack.completedAt = time.Now().UTC()
	p.Record(p.event(domain.EventProductStackRemoved, name, "stack removed"))
	if p.count(StackRemoved) == len(p.stacks) {
		p.status = StatusRemoved
		p.completedAt = time.Now().UTC()
		p.recordPhase("Removed", "All stacks removed")
		p.Record(p.event(domain.EventProductRemoved, "", "product removed"))
	}
	return nil
}

// FailStackRemoval records that a stack could not be removed. The product
// stays in Removing so the removal can be restarted.
func (p *ProductDeployment) FailStackRemoval(name, message string) error {
	if p.status != StatusRemoving {
		return fmt.Errorf("%s: cannot fail removal of %q while %s: %w", entityName, name, p.status, domain.ErrInvalidTransition)
	}
	stack, err := p.mustFind(name)
	if err != nil {
		return err
	}
	if stack.status == StackRemoved {
		return domain.NewTransitionError("product stack "+name, stack.status, StackFailed)
	}
	stack.status = StackFailed
	stack.errorMessage = message
	p.errorMessage = fmt.Sprintf("removal of %s failed: %s", name, message)
	return nil
}

// SyncStackHealth reconciles one stack against the live state of its
// Deployment. It is skipped unless the product is Running or PartiallyRunning.
func (p *ProductDeployment) SyncStackHealth(name string, live StackStatus, message string) (SyncResult, error) {
	if !p.status.IsOperational() {
		return SyncSkipped, nil
	}
	if live != StackRunning && live != StackFailed {
		return SyncSkipped, domain.InvalidArgument("live stack status must be Running or Failed, got %s", live)
	}
	stack, err := p.mustFind(name)
	if err != nil {
		return SyncSkipped, err
	}
	if stack.status == live && (live != StackFailed || stack.errorMessage == message) {
		return SyncUnchanged, nil
	}
	stack.status = live
	if live == StackFailed {
		stack.errorMessage = message
	} else {
		stack.errorMessage = ""
	}
	return SyncChanged, nil
}

// RecalculateProductStatus derives the product status from its stacks. It is
// skipped unless the product is Running or PartiallyRunning.
func (p *ProductDeployment) RecalculateProductStatus() SyncResult {
	if !p.status.IsOperational() {
		return SyncSkipped
	}
	running := p.CompletedStacks()
	var next Status
	switch {
	case running == len(p.stacks):
		next = StatusRunning
	case running == 0:
		next = StatusFailed
	default:
		next = StatusPartiallyRunning
	}
	if next == p.status {
		return SyncUnchanged
	}
	previous := p.status
	p.status = next
	switch next {
	case StatusRunning:
		p.errorMessage = ""
	case StatusFailed:
		p.errorMessage = "No stacks running"
	default:
		p.errorMessage = fmt.Sprintf("%d of %d stacks running", running, len(p.stacks))
	}
	p.recordPhase(string(next), fmt.Sprintf("Reconciled from %s", previous))
	p.Record(p.event(domain.EventProductStatusReconciled, "", fmt.Sprintf("status %s -> %s", previous, next)).
		With("from", string(previous)).
		With("to", string(next)))
	return SyncChanged
}

func (p *ProductDeployment) find(name string) *StackDeployment {
	for _, stack := range p.stacks {
		if stack.name == name {
			return stack
		}
	}
	return nil
}

func (p *ProductDeployment) mustFind(name string) (*StackDeployment, error) {
	stack := p.find(name)
	if stack == nil {
		return nil, fmt.Errorf("%s %s: stack %q: %w", entityName, p.id, name, domain.ErrNotFound)
	}
	return stack, nil
}

func (p *ProductDeployment) count(status StackStatus) int {
	n := 0
	for _, stack := range p.stacks {
		if stack.status == status {
			n++
		}
	}
	return n
}

func (p *ProductDeployment) recordPhase(phase, message string) {
	p.phases = append(p.phases, PhaseRecord{Phase: phase, Message: message, At: time.Now().UTC()})
}

func (p *ProductDeployment) event(eventType domain.EventType, stack, message string) domain.Event {
	return domain.NewEvent(eventType, string(p.id), stack, message).
		With("product", p.productName).
		With("environment_id", string(p.environmentID))
}

func copyVars(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}
