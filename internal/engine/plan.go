package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/readystackgo/rsgo/internal/config"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/manifest"
)

// Environment variables injected into every context.
const (
	EnvOrganizationID        = "RSGO_ORG_ID"
	EnvOrganizationName      = "RSGO_ORG_NAME"
	EnvStackVersion          = "RSGO_STACK_VERSION"
	EnvFeaturePrefix         = "RSGO_FEATURE_"
	EnvConnectionTransport   = "RSGO_CONNECTION_TRANSPORT"
	EnvConnectionPersistence = "RSGO_CONNECTION_PERSISTENCE"
	EnvConnectionEventStore  = "RSGO_CONNECTION_EVENTSTORE"
)

// Step is one container to create, with everything resolved.
type Step struct {
	ContextName   string
	Image         string
	ContainerName string
	Version       string
	Internal      bool
	Env           map[string]string
	Ports         []string
	Volumes       []string
	Networks      []string
	DependsOn     []string
	Order         int
}

// Plan is an ordered list of steps for one stack. Plans are not persisted.
type Plan struct {
	StackName      string
	StackVersion   string
	EnvironmentID  domain.EnvironmentID
	GatewayContext string
	Networks       map[string]manifest.Network
	Steps          []Step
	// Fallback is set when dependencies could not be resolved and the
	// remaining steps were appended in manifest order.
	Fallback bool
}

// StepNames returns the context names in execution order.
func (p *Plan) StepNames() []string {
	names := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		names = append(names, step.ContextName)
	}
	return names
}

// PlanRequest describes what to plan.
type PlanRequest struct {
	Manifest      *manifest.ReleaseManifest
	StackName     string
	EnvironmentID domain.EnvironmentID
	// Variables are operator-supplied values overriding global variables.
	Variables map[string]string
}

// GeneratePlan builds a dependency-ordered plan from a manifest.
func (e *Engine) GeneratePlan(ctx context.Context, req PlanRequest) (*Plan, error) {
	if req.Manifest == nil {
		return nil, domain.InvalidArgument("manifest is required")
	}
	if err := domain.RequireNonEmpty("stack name", req.StackName); err != nil {
		return nil, err
	}
	if err := req.Manifest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	system, err := e.store.System(ctx)
	if err != nil {
		return nil, fmt.Errorf("load system config: %w", err)
	}
	features, err := e.store.Features(ctx)
	if err != nil {
		return nil, fmt.Errorf("load feature config: %w", err)
	}
	connections, err := e.store.Contexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load context config: %w", err)
	}

	global := globalEnv(system, req.Manifest.StackVersion, req.Variables)
	flags := featureEnv(req.Manifest.Features, features.Features)

	steps := make([]Step, 0, len(req.Manifest.Contexts))
	for _, c := range req.Manifest.Contexts {
		env := make(map[string]string, len(global)+len(flags)+len(c.Env)+3)
		mergeInto(env, global)
		mergeInto(env, flags)
		mergeInto(env, connectionEnv(connections.For(c.Name)))
		mergeInto(env, c.Env)

		networks := append([]string(nil), c.Networks...)
		if len(networks) == 0 {
			networks = []string{system.Network()}
		}
		containerName := c.ContainerName
		if containerName == "" {
			containerName = req.StackName + "-" + c.Name
		}

		steps = append(steps, Step{
			ContextName:   c.Name,
			Image:         withVersion(c.Image, c.Version),
			ContainerName: containerName,
			Version:       c.Version,
			Internal:      c.Internal,
			Env:           env,
			Ports:         append([]string(nil), c.Ports...),
			Volumes:       append([]string(nil), c.Volumes...),
			Networks:      networks,
			DependsOn:     append([]string(nil), c.DependsOn...),
		})
	}

	gateway := req.Manifest.GatewayContext()
	ordered, unresolved := orderSteps(steps, gateway)
	if len(unresolved) > 0 {
		if e.strict {
			return nil, fmt.Errorf("%w: circular or missing dependencies for %v", domain.ErrInvalidArgument, unresolved)
		}
		e.logger.Warn().
			Str("stack", req.StackName).
			Strs("contexts", unresolved).
			Msg("circular or missing dependencies, deploying remaining contexts in manifest order")
	}

	networks := make(map[string]manifest.Network, len(req.Manifest.Networks))
	for name, n := range req.Manifest.Networks {
		networks[name] = n
	}

	return &Plan{
		StackName:      req.StackName,
		StackVersion:   req.Manifest.StackVersion,
		EnvironmentID:  req.EnvironmentID,
		GatewayContext: gateway,
		Networks:       networks,
		Steps:          ordered,
		Fallback:       len(unresolved) > 0,
	}, nil
}

func globalEnv(system config.SystemConfig, stackVersion string, vars map[string]string) map[string]string {
	env := map[string]string{
		EnvOrganizationID:   system.OrganizationID,
		EnvOrganizationName: system.OrganizationName,
		EnvStackVersion:     stackVersion,
	}
	mergeInto(env, vars)
	return env
}

// featureEnv resolves flags from stored config, filling gaps with manifest defaults.
func featureEnv(declared map[string]manifest.Feature, stored map[string]bool) map[string]string {
	env := make(map[string]string, len(declared)+len(stored))
	for name, feature := range declared {
		env[EnvFeaturePrefix+name] = strconv.FormatBool(feature.Default)
	}
	for name, enabled := range stored {
		env[EnvFeaturePrefix+name] = strconv.FormatBool(enabled)
	}
	return env
}

func connectionEnv(c config.Connections) map[string]string {
	env := map[string]string{}
	if c.Transport != "" {
		env[EnvConnectionTransport] = c.Transport
	}
	if c.Persistence != "" {
		env[EnvConnectionPersistence] = c.Persistence
	}
	if c.EventStore != "" {
		env[EnvConnectionEventStore] = c.EventStore
	}
	return env
}

func mergeInto(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}

// orderSteps sorts steps so each follows its dependencies, gateway last. Steps
// that can never be scheduled are appended in input order and reported.
func orderSteps(steps []Step, gateway string) ([]Step, []string) {
	ordered := make([]Step, 0, len(steps))
	placed := make(map[string]bool, len(steps))
	var gatewayStep *Step
	remaining := make([]Step, 0, len(steps))
	for i := range steps {
		if gateway != "" && steps[i].ContextName == gateway {
			gatewayStep = &steps[i]
			continue
		}
		remaining = append(remaining, steps[i])
	}

	var unresolved []string
	for len(remaining) > 0 {
		var ready, blocked []Step
		for _, step := range remaining {
			if dependenciesPlaced(step, placed) {
				ready = append(ready, step)
			} else {
				blocked = append(blocked, step)
			}
		}
		if len(ready) == 0 {
			for _, step := range blocked {
				unresolved = append(unresolved, step.ContextName)
			}
			ready, blocked = blocked, nil
		}
		for _, step := range ready {
			placed[step.ContextName] = true
			ordered = append(ordered, step)
		}
		remaining = blocked
	}

	if gatewayStep != nil {
		ordered = append(ordered, *gatewayStep)
	}
	for i := range ordered {
		ordered[i].Order = i + 1
	}
	sort.Strings(unresolved)
	return ordered, unresolved
}

func dependenciesPlaced(step Step, placed map[string]bool) bool {
	for _, dep := range step.DependsOn {
		if !placed[dep] {
			return false
		}
	}
	return true
}

var errNilPlan = errors.New("plan is required")
