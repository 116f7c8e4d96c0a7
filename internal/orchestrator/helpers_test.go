package orchestrator

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/readystackgo/rsgo/internal/catalog"
	"github.com/readystackgo/rsgo/internal/config"
	"github.com/readystackgo/rsgo/internal/deployment"
	"github.com/readystackgo/rsgo/internal/docker/dockertest"
	"github.com/readystackgo/rsgo/internal/domain"
	"github.com/readystackgo/rsgo/internal/engine"
	"github.com/readystackgo/rsgo/internal/manifest"
	"github.com/readystackgo/rsgo/internal/metrics"
	"github.com/readystackgo/rsgo/internal/productdeployment"
	"github.com/readystackgo/rsgo/internal/store/boltstore"
	"github.com/rs/zerolog"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, events []domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
	return nil
}

func (n *recordingNotifier) types() []domain.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

func (n *recordingNotifier) has(t domain.EventType) bool {
	for _, got := range n.types() {
		if got == t {
			return true
		}
	}
	return false
}

type harness struct {
	fake        *dockertest.Fake
	deployments deployment.Repository
	products    productdeployment.Repository
	catalog     *catalog.ProductCache
	notifier    *recordingNotifier
	metrics     *metrics.Metrics
	stacks      *StackService
	product     *ProductService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := boltstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.NewFileStore(t.TempDir(), zerolog.Nop())
	if err := cfg.SaveSystem(context.Background(), config.SystemConfig{OrganizationID: "org-1", OrganizationName: "Acme"}); err != nil {
		t.Fatalf("save system: %v", err)
	}

	h := &harness{
		fake:        dockertest.NewFake(),
		deployments: boltstore.NewDeploymentRepository(store),
		products:    boltstore.NewProductDeploymentRepository(store),
		catalog:     catalog.NewProductCache(),
		notifier:    &recordingNotifier{},
		metrics:     metrics.New(),
	}
	eng := engine.New(h.fake, cfg, zerolog.Nop())
	opts := []Option{WithNotifier(h.notifier), WithMetrics(h.metrics)}
	h.stacks = NewStackService(eng, h.deployments, zerolog.Nop(), opts...)
	h.product = NewProductService(h.stacks, h.products, h.catalog, zerolog.Nop(), opts...)
	return h
}

func (h *harness) scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func (h *harness) addProduct(t *testing.T, group, version string, stacks ...catalog.StackDefinition) {
	t.Helper()
	if err := h.catalog.Set(catalog.ProductDefinition{
		GroupID:        group,
		Name:           strings.ToUpper(group[:1]) + group[1:],
		ProductVersion: version,
		Stacks:         stacks,
	}); err != nil {
		t.Fatalf("catalog set: %v", err)
	}
}

func stackManifest(version string, contexts ...manifest.Context) *manifest.ReleaseManifest {
	return &manifest.ReleaseManifest{
		ManifestVersion: "1",
		StackVersion:    version,
		Contexts:        contexts,
	}
}
