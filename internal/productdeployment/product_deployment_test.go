package productdeployment

import (
	"testing"

	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeploying(t *testing.T, stacks ...string) *ProductDeployment {
	t.Helper()
	specs := make([]StackSpec, 0, len(stacks))
	for _, name := range stacks {
		specs = append(specs, StackSpec{Name: name, StackID: "shop:" + name})
	}
	pd, err := InitiateDeployment(DeployParams{
		ID:             "pd-1",
		EnvironmentID:  "env-1",
		ProductGroupID: "shop",
		ProductID:      "shop:1.0.0",
		ProductName:    "Shop",
		ProductVersion: "1.0.0",
		DeployedBy:     "alice",
		Stacks:         specs,
		Variables:      map[string]string{"DOMAIN": "shop.local"},
	})
	require.NoError(t, err)
	return pd
}

func deployAll(t *testing.T, pd *ProductDeployment) {
	t.Helper()
	for _, stack := range pd.GetStacksInDeployOrder() {
		require.NoError(t, pd.StartStack(stack.Name(), deployment.ID("dep-"+stack.Name())))
		require.NoError(t, pd.CompleteStack(stack.Name(), 2))
	}
}

func TestInitiateDeployment_Validation(t *testing.T) {
	_, err := InitiateDeployment(DeployParams{ID: "pd", EnvironmentID: "env", ProductGroupID: "g", ProductName: "n", ProductVersion: "1"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = InitiateDeployment(DeployParams{
		ID: "pd", EnvironmentID: "env", ProductGroupID: "g", ProductName: "n", ProductVersion: "1",
		Stacks: []StackSpec{{Name: "a"}, {Name: "a"}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestInitiateDeployment_OrdersStacks(t *testing.T) {
	pd := newDeploying(t, "db", "api", "web")

	assert.Equal(t, StatusDeploying, pd.Status())
	deploy := pd.GetStacksInDeployOrder()
	remove := pd.GetStacksInRemoveOrder()
	require.Len(t, deploy, 3)
	assert.Equal(t, []string{"db", "api", "web"}, names(deploy))
	assert.Equal(t, []string{"web", "api", "db"}, names(remove))
	assert.Equal(t, 3, pd.PendingStacks())
}

func TestCompleteAllStacks_AutoCompletes(t *testing.T) {
	pd := newDeploying(t, "db", "api")
	deployAll(t, pd)

	assert.Equal(t, StatusRunning, pd.Status())
	assert.Equal(t, 2, pd.CompletedStacks())
	assert.Equal(t, 100, pd.ProgressPercentage())
	assert.False(t, pd.CompletedAt().IsZero())

	events := pd.PullEvents()
	assert.Equal(t, domain.EventProductDeploymentCompleted, events[len(events)-1].Type)
}

func TestStartStack_RequiresPending(t *testing.T) {
	pd := newDeploying(t, "db")
	require.NoError(t, pd.StartStack("db", "dep-db"))
	assert.ErrorIs(t, pd.StartStack("db", "dep-db"), domain.ErrInvalidTransition)
	assert.ErrorIs(t, pd.StartStack("missing", "dep"), domain.ErrNotFound)
}

func TestMarkAsPartiallyRunning(t *testing.T) {
	pd := newDeploying(t, "db", "api", "web")
	assert.ErrorIs(t, pd.MarkAsPartiallyRunning(""), domain.ErrInvalidArgument, "no completed stacks")

	require.NoError(t, pd.StartStack("db", "dep-db"))
	require.NoError(t, pd.CompleteStack("db", 1))
	require.NoError(t, pd.StartStack("api", "dep-api"))
	require.NoError(t, pd.FailStack("api", "image not found"))

	require.NoError(t, pd.MarkAsPartiallyRunning(""))
	assert.Equal(t, StatusPartiallyRunning, pd.Status())
	assert.Equal(t, "1 of 3 stacks running", pd.ErrorMessage())

	stack, ok := pd.Stack("api")
	require.True(t, ok)
	assert.Equal(t, StackFailed, stack.Status())
	assert.Equal(t, "image not found", stack.ErrorMessage())
}

func TestMarkAsPartiallyRunning_RejectedWhenAllSucceeded(t *testing.T) {
	pd := FromState(State{
		ID: "pd", EnvironmentID: "env", ProductGroupID: "g", ProductName: "n", ProductVersion: "1",
		Status: StatusDeploying,
		Stacks: []StackState{{Name: "a", Status: StackRunning}, {Name: "b", Order: 1, Status: StackRunning}},
	})

	err := pd.MarkAsPartiallyRunning("")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, StatusDeploying, pd.Status())
}

func TestMarkAsFailed(t *testing.T) {
	pd := newDeploying(t, "db")
	require.NoError(t, pd.StartStack("db", "dep-db"))
	require.NoError(t, pd.FailStack("db", "boom"))
	require.NoError(t, pd.MarkAsFailed("all stacks failed"))
	assert.Equal(t, StatusFailed, pd.Status())

	err := pd.MarkAsFailed("again")
	var transitionErr *domain.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, "Failed", transitionErr.From)
}

func TestOperationalStatusRejectsOutcomeTransitions(t *testing.T) {
	pd := newDeploying(t, "db", "api")
	deployAll(t, pd)
	require.Equal(t, StatusRunning, pd.Status())
	pd.PullEvents()

	var transitionErr *domain.TransitionError
	err := pd.MarkAsFailed("boom")
	require.ErrorAs(t, err, &transitionErr)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, "Running", transitionErr.From)
	assert.Equal(t, "Failed", transitionErr.To)
	assert.Equal(t, StatusRunning, pd.Status())
	assert.Empty(t, pd.ErrorMessage())

	assert.ErrorIs(t, pd.MarkAsPartiallyRunning("degraded"), domain.ErrInvalidTransition)
	assert.Equal(t, StatusRunning, pd.Status())
	assert.Empty(t, pd.PullEvents())

	partial := FromState(State{
		ID: "pd", EnvironmentID: "env", ProductGroupID: "g", ProductName: "n", ProductVersion: "1",
		Status: StatusPartiallyRunning,
		Stacks: []StackState{{Name: "a", Status: StackRunning}, {Name: "b", Order: 1, Status: StackFailed}},
	})
	assert.ErrorIs(t, partial.MarkAsFailed("boom"), domain.ErrInvalidTransition)
	assert.Equal(t, StatusPartiallyRunning, partial.Status())
}

func TestValidTransitions_Table(t *testing.T) {
	want := map[Status][]Status{
		StatusDeploying:        {StatusRunning, StatusPartiallyRunning, StatusFailed},
		StatusUpgrading:        {StatusRunning, StatusPartiallyRunning, StatusFailed},
		StatusRunning:          {StatusUpgrading, StatusRemoving},
		StatusPartiallyRunning: {StatusUpgrading, StatusRemoving},
		StatusFailed:           {StatusUpgrading, StatusRemoving},
		StatusRemoving:         {StatusRemoved},
		StatusRemoved:          {},
	}
	for from, nexts := range want {
		assert.ElementsMatch(t, nexts, ValidTransitions[from], "from %s", from)
	}
	assert.Len(t, ValidTransitions, len(want))
}

func TestSupersede(t *testing.T) {
	existing := newDeploying(t, "db", "api", "web")
	deployAll(t, existing)
	existing.PullEvents()

	require.NoError(t, existing.Supersede("pd-2", []string{"db", "api"}))
	assert.Equal(t, StatusRemoving, existing.Status())
	db, _ := existing.Stack("db")
	web, _ := existing.Stack("web")
	assert.Equal(t, StackRemoved, db.Status())
	assert.Equal(t, StackRunning, web.Status())
	events := existing.PullEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventProductSuperseded, events[0].Type)

	require.NoError(t, existing.StartStackRemoval("web"))
	require.NoError(t, existing.MarkStackRemoved("web"))
	assert.Equal(t, StatusRemoved, existing.Status())

	assert.ErrorIs(t, existing.Supersede("pd-3", nil), domain.ErrInvalidTransition)
}

func TestSupersede_AllStacksKept(t *testing.T) {
	existing := newDeploying(t, "db")
	deployAll(t, existing)

	require.NoError(t, existing.Supersede("pd-2", []string{"db"}))
	assert.Equal(t, StatusRemoved, existing.Status())
	assert.ErrorIs(t, existing.Supersede("pd-1", nil), domain.ErrInvalidArgument)
}

func TestSupersede_RejectsInProgress(t *testing.T) {
	pd := newDeploying(t, "db")
	assert.ErrorIs(t, pd.Supersede("pd-2", []string{"db"}), domain.ErrInvalidTransition)
	assert.Equal(t, StatusDeploying, pd.Status())
}

func TestInitiateUpgrade(t *testing.T) {
	existing := newDeploying(t, "db", "api")
	deployAll(t, existing)

	upgrade, err := InitiateUpgrade(existing, UpgradeParams{
		ID:             "pd-2",
		ProductVersion: "2.0.0",
		DeployedBy:     "bob",
		Stacks:         []StackSpec{{Name: "db"}, {Name: "api"}, {Name: "worker"}},
		Variables:      map[string]string{"WORKERS": "4"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusUpgrading, upgrade.Status())
	assert.Equal(t, "1.0.0", upgrade.PreviousVersion())
	assert.Equal(t, "shop.local", upgrade.Variables()["DOMAIN"])
	assert.Equal(t, "4", upgrade.Variables()["WORKERS"])
	worker, _ := upgrade.Stack("worker")
	db, _ := upgrade.Stack("db")
	assert.True(t, worker.IsNewInUpgrade())
	assert.False(t, db.IsNewInUpgrade())

	deployAll(t, upgrade)
	assert.Equal(t, StatusRunning, upgrade.Status())
	assert.Equal(t, 1, upgrade.UpgradeCount())
	assert.False(t, upgrade.LastUpgradedAt().IsZero())
}

func TestInitiateUpgrade_RejectsInProgress(t *testing.T) {
	existing := newDeploying(t, "db")
	_, err := InitiateUpgrade(existing, UpgradeParams{ID: "pd-2", ProductVersion: "2.0.0", Stacks: []StackSpec{{Name: "db"}}})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestRemoval(t *testing.T) {
	pd := newDeploying(t, "db", "api")
	deployAll(t, pd)

	require.NoError(t, pd.StartRemoval())
	assert.Equal(t, StatusRemoving, pd.Status())

	require.NoError(t, pd.StartStackRemoval("api"))
	require.NoError(t, pd.MarkStackRemoved("api"))
	require.NoError(t, pd.FailStackRemoval("db", "container stuck"))
	assert.Equal(t, StatusRemoving, pd.Status())

	require.NoError(t, pd.StartRemoval())
	db, _ := pd.Stack("db")
	api, _ := pd.Stack("api")
	assert.Equal(t, StackPending, db.Status())
	assert.Equal(t, StackRemoved, api.Status())

	require.NoError(t, pd.MarkStackRemoved("db"))
	assert.Equal(t, StatusRemoved, pd.Status())
	assert.ErrorIs(t, pd.StartRemoval(), domain.ErrInvalidTransition)
}

func TestSyncStackHealth_SkippedWhenNotOperational(t *testing.T) {
	pd := newDeploying(t, "db")
	result, err := pd.SyncStackHealth("db", StackFailed, "down")
	require.NoError(t, err)
	assert.Equal(t, SyncSkipped, result)
	assert.Equal(t, SyncSkipped, pd.RecalculateProductStatus())
}

func TestSyncStackHealth_Reconciles(t *testing.T) {
	pd := newDeploying(t, "db", "api")
	deployAll(t, pd)
	pd.PullEvents()

	result, err := pd.SyncStackHealth("db", StackRunning, "")
	require.NoError(t, err)
	assert.Equal(t, SyncUnchanged, result)
	assert.Equal(t, SyncUnchanged, pd.RecalculateProductStatus())

	result, err = pd.SyncStackHealth("api", StackFailed, "container exited")
	require.NoError(t, err)
	assert.Equal(t, SyncChanged, result)
	assert.Equal(t, SyncChanged, pd.RecalculateProductStatus())
	assert.Equal(t, StatusPartiallyRunning, pd.Status())

	result, err = pd.SyncStackHealth("db", StackFailed, "container exited")
	require.NoError(t, err)
	assert.Equal(t, SyncChanged, result)
	assert.Equal(t, SyncChanged, pd.RecalculateProductStatus())
	assert.Equal(t, StatusFailed, pd.Status())

	_, err = pd.SyncStackHealth("db", StackRunning, "")
	require.NoError(t, err)
	assert.Equal(t, SyncSkipped, pd.RecalculateProductStatus(), "failed products are not reconciled")

	events := pd.PullEvents()
	assert.Len(t, events, 2)
}

func TestValidTransitions_NoSelfLoops(t *testing.T) {
	for status, nexts := range ValidTransitions {
		for _, next := range nexts {
			assert.NotEqual(t, status, next)
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	pd := newDeploying(t, "db", "api")
	require.NoError(t, pd.StartStack("db", "dep-db"))
	pd.SetVersion(7)

	restored := FromState(pd.State())
	assert.Equal(t, pd.State(), restored.State())
}

func names(stacks []*StackDeployment) []string {
	out := make([]string, 0, len(stacks))
	for _, s := range stacks {
		out = append(out, s.Name())
	}
	return out
}
