package deployment

import (
	"errors"
	"testing"

	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPending(t *testing.T) *Deployment {
	t.Helper()
	d, err := Start("dep-1", "env-1", "shop", "shop-prod", "alice", WithStackVersion("1.0.0"))
	require.NoError(t, err)
	return d
}

func newRunning(t *testing.T) *Deployment {
	t.Helper()
	d := newPending(t)
	require.NoError(t, d.MarkAsInstalling())
	require.NoError(t, d.MarkAsRunning([]DeployedService{{Name: "api"}}))
	return d
}

func TestStart_Validation(t *testing.T) {
	cases := []struct {
		name           string
		id             ID
		env            domain.EnvironmentID
		stack, project string
	}{
		{name: "missing id", env: "env", stack: "s", project: "p"},
		{name: "missing env", id: "id", stack: "s", project: "p"},
		{name: "missing stack", id: "id", env: "env", project: "p"},
		{name: "missing project", id: "id", env: "env", stack: "s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Start(tc.id, tc.env, tc.stack, tc.project, "bob")
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestStart_PendingWithInitialPhase(t *testing.T) {
	d := newPending(t)

	assert.Equal(t, StatusPending, d.Status())
	assert.Equal(t, health.ModeNormal, d.OperationMode())
	assert.Equal(t, PhaseInitializing, d.CurrentPhase())
	assert.Len(t, d.PhaseHistory(), 1)
	assert.Equal(t, "1.0.0", d.StackVersion())

	events := d.PullEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventDeploymentStarted, events[0].Type)
	assert.Equal(t, "dep-1", events[0].AggregateID)
}

func TestLifecycle_InstallToRunning(t *testing.T) {
	d := newPending(t)
	require.NoError(t, d.MarkAsInstalling())
	require.NoError(t, d.UpdateProgress(PhaseInstalling, 50, "pulling images"))
	assert.Equal(t, StatusInstalling, d.Status())
	assert.Equal(t, 50, d.Progress())

	require.NoError(t, d.MarkAsRunning([]DeployedService{{Name: "svcA"}, {Name: "svcB"}}))

	assert.Equal(t, StatusRunning, d.Status())
	assert.Len(t, d.Services(), 2)
	assert.Empty(t, d.ErrorMessage())
	assert.Equal(t, 100, d.Progress())
	assert.False(t, d.CompletedAt().IsZero())
}

func TestUpdateProgress_AnyNonTerminalState(t *testing.T) {
	d := newPending(t)
	require.NoError(t, d.UpdateProgress(PhasePullingImages, 10, "pulling"))
	assert.Equal(t, StatusPending, d.Status())

	assert.ErrorIs(t, d.UpdateProgress(PhasePullingImages, 101, "too far"), domain.ErrInvalidArgument)

	require.NoError(t, d.MarkAsInstalling())
	require.NoError(t, d.MarkAsRunning(nil))
	require.NoError(t, d.UpdateProgress(PhaseHealthCheck, 100, "health check passed"))
	assert.Equal(t, StatusRunning, d.Status())

	require.NoError(t, d.MarkAsStopped())
	require.NoError(t, d.UpdateProgress(PhaseHealthCheck, 0, "stopped"))
	assert.Equal(t, StatusStopped, d.Status())

	require.NoError(t, d.MarkAsFailed("crashed"))
	require.NoError(t, d.UpdateProgress(PhaseHealthCheck, 0, "failed"))
	assert.Equal(t, StatusFailed, d.Status())

	require.NoError(t, d.MarkAsRemoved())
	assert.ErrorIs(t, d.UpdateProgress(PhaseHealthCheck, 100, "late"), domain.ErrInvalidTransition)
	assert.Equal(t, StatusRemoved, d.Status())
}

func TestMarkAsRunning_InvalidFromPending(t *testing.T) {
	d := newPending(t)
	err := d.MarkAsRunning(nil)

	var transitionErr *domain.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, "Pending", transitionErr.From)
	assert.Equal(t, "Running", transitionErr.To)
	assert.Equal(t, StatusPending, d.Status())
}

func TestMarkAsFailed(t *testing.T) {
	d := newPending(t)
	require.NoError(t, d.MarkAsInstalling())
	require.NoError(t, d.MarkAsFailed("image pull failed"))

	assert.Equal(t, StatusFailed, d.Status())
	assert.Equal(t, "image pull failed", d.ErrorMessage())
	assert.Equal(t, health.ModeFailed, d.OperationMode())

	assert.ErrorIs(t, d.MarkAsFailed("again"), domain.ErrInvalidTransition)
}

func TestMarkAsStopped_OnlyFromRunning(t *testing.T) {
	d := newPending(t)
	assert.ErrorIs(t, d.MarkAsStopped(), domain.ErrInvalidTransition)

	d = newRunning(t)
	require.NoError(t, d.MarkAsStopped())
	assert.Equal(t, StatusStopped, d.Status())
	assert.Equal(t, health.ModeStopped, d.OperationMode())

	require.NoError(t, d.MarkAsRunning(d.Services()))
	assert.Equal(t, StatusRunning, d.Status())
	assert.Equal(t, health.ModeNormal, d.OperationMode())
}

func TestRestart(t *testing.T) {
	d := newRunning(t)
	assert.ErrorIs(t, d.Restart(), domain.ErrInvalidTransition)

	require.NoError(t, d.MarkAsFailed("crashed"))
	require.NoError(t, d.Restart())
	assert.Equal(t, StatusInstalling, d.Status())
	assert.Empty(t, d.ErrorMessage())
	assert.Equal(t, health.ModeNormal, d.OperationMode())
}

func TestRequestCancellation(t *testing.T) {
	d := newPending(t)
	require.NoError(t, d.MarkAsInstalling())
	d.PullEvents()

	require.NoError(t, d.RequestCancellation(""))
	assert.True(t, d.IsCancellationRequested())
	assert.Equal(t, DefaultCancellationReason, d.CancellationReason())
	assert.Equal(t, StatusInstalling, d.Status())

	require.NoError(t, d.RequestCancellation("second"))
	assert.Equal(t, DefaultCancellationReason, d.CancellationReason())
	assert.Len(t, d.PullEvents(), 1)

	running := newRunning(t)
	assert.ErrorIs(t, running.RequestCancellation("late"), domain.ErrInvalidTransition)
}

func TestMarkAsRemoved_Terminal(t *testing.T) {
	d := newRunning(t)
	require.NoError(t, d.MarkAsRemoved())
	assert.Equal(t, StatusRemoved, d.Status())
	assert.Empty(t, d.GetValidNextStates())
	assert.ErrorIs(t, d.MarkAsRemoved(), domain.ErrInvalidTransition)
	assert.ErrorIs(t, d.MarkAsFailed("x"), domain.ErrInvalidTransition)
}

func TestStartUpgrade(t *testing.T) {
	d := newRunning(t)
	require.NoError(t, d.StartUpgrade("2.0.0"))

	assert.Equal(t, StatusUpgrading, d.Status())
	assert.Equal(t, health.ModeMigrating, d.OperationMode())
	assert.Equal(t, "1.0.0", d.PreviousVersion())
	assert.Equal(t, "2.0.0", d.TargetVersion())

	require.NoError(t, d.MarkAsRunning([]DeployedService{{Name: "api"}}))
	assert.Equal(t, "2.0.0", d.StackVersion())
	assert.Equal(t, 1, d.UpgradeCount())
	assert.False(t, d.LastUpgradedAt().IsZero())
	assert.Equal(t, health.ModeNormal, d.OperationMode())
}

func TestGetValidNextStates_NoSelfLoops(t *testing.T) {
	for status := range validTransitions {
		for _, next := range status.ValidNextStates() {
			assert.NotEqual(t, status, next, "status %s lists itself", status)
		}
	}
}

func TestInvalidTransitions_LeaveStatusUnchanged(t *testing.T) {
	all := []Status{StatusPending, StatusInstalling, StatusUpgrading, StatusRunning, StatusStopped, StatusFailed, StatusRemoved}
	for _, from := range all {
		for _, to := range all {
			if from.CanTransitionTo(to) {
				continue
			}
			d := FromState(State{ID: "d", EnvironmentID: "e", StackName: "s", ProjectName: "p", Status: from})
			err := d.transition(to)
			assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "%s -> %s should fail", from, to)
			assert.Equal(t, from, d.Status())
		}
	}
}

func TestChangeOperationMode(t *testing.T) {
	d := newRunning(t)
	require.NoError(t, d.ChangeOperationMode(health.ModeMaintenance))
	assert.Equal(t, health.ModeMaintenance, d.OperationMode())

	assert.ErrorIs(t, d.ChangeOperationMode(health.ModeMigrating), domain.ErrInvalidTransition)
	assert.ErrorIs(t, d.ChangeOperationMode("Bogus"), domain.ErrInvalidArgument)

	require.NoError(t, d.ChangeOperationMode(health.ModeNormal))
}

func TestStateRoundTrip(t *testing.T) {
	d := newRunning(t)
	d.SetVersion(3)
	restored := FromState(d.State())

	assert.Equal(t, d.State(), restored.State())
	assert.Empty(t, restored.PendingEvents())
}
