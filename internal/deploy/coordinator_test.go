package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Concierge/internal/catalog"
	"github.com/shaiso/Concierge/internal/domain"
	"github.com/shaiso/Concierge/internal/engineapi"
	"github.com/shaiso/Concierge/internal/repo"
)

// fakeWorkflowStore keeps workflow records in memory.
type fakeWorkflowStore struct {
	mu        sync.Mutex
	workflows map[uuid.UUID]*domain.Workflow
}

func newFakeWorkflowStore() *fakeWorkflowStore {
	return &fakeWorkflowStore{workflows: make(map[uuid.UUID]*domain.Workflow)}
}

func (s *fakeWorkflowStore) Create(ctx context.Context, wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *wf
	s.workflows[wf.ID] = &copied
	return nil
}

func (s *fakeWorkflowStore) UpdateStatus(ctx context.Context, wf *domain.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.workflows[wf.ID]
	if !ok {
		return repo.ErrNotFound
	}
	stored.DeploymentStatus = wf.DeploymentStatus
	stored.EngineWorkflowID = wf.EngineWorkflowID
	stored.UpdatedAt = wf.UpdatedAt
	return nil
}

func (s *fakeWorkflowStore) GetByTenant(ctx context.Context, tenantID string) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.Workflow
	for _, wf := range s.workflows {
		if wf.TenantID != tenantID {
			continue
		}
		if latest == nil || wf.CreatedAt.After(latest.CreatedAt) {
			latest = wf
		}
	}
	if latest == nil {
		return nil, repo.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *fakeWorkflowStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

// flakyEngine fails the first failCreates CreateWorkflow calls with a
// transient error, then succeeds.
type flakyEngine struct {
	mu          sync.Mutex
	failCreates int
	rejectAll   bool
	creates     int
	activations int
	deletions   []string
}

func (e *flakyEngine) CreateWorkflow(ctx context.Context, def *engineapi.WorkflowDefinition) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.creates++
	if e.rejectAll {
		return "", fmt.Errorf("%w: HTTP 422: invalid nodes", engineapi.ErrRejected)
	}
	if e.creates <= e.failCreates {
		return "", fmt.Errorf("%w: HTTP 502", engineapi.ErrTransient)
	}
	return fmt.Sprintf("engine-wf-%d", e.creates), nil
}

func (e *flakyEngine) ActivateWorkflow(ctx context.Context, engineID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activations++
	return nil
}

func (e *flakyEngine) DeactivateWorkflow(ctx context.Context, engineID string) error {
	return nil
}

func (e *flakyEngine) DeleteWorkflow(ctx context.Context, engineID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deletions = append(e.deletions, engineID)
	return nil
}

// fakeReleaser records slot releases.
type fakeReleaser struct {
	mu       sync.Mutex
	released []string
}

func (r *fakeReleaser) Release(ctx context.Context, tenantID string) (*domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, tenantID)
	return &domain.Slot{ID: "p01s01", Status: domain.SlotStatusAvailable}, nil
}

func testScope() *domain.ScopeDraft {
	return &domain.ScopeDraft{
		Trigger: "every morning at 9am",
		Actions: []string{"summarize new orders into a report"},
		Outputs: []string{"send the report by email"},
	}
}

func newTestCoordinator(store *fakeWorkflowStore, engine *flakyEngine, releaser *fakeReleaser) *Coordinator {
	return New(Config{
		Store:     store,
		Engine:    engine,
		Releaser:  releaser,
		Validator: catalog.NewValidator(catalog.Default()),
		Retry:     engineapi.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond},
	})
}

func TestDeployRetriesTransientFailures(t *testing.T) {
	store := newFakeWorkflowStore()
	engine := &flakyEngine{failCreates: 2}
	coord := newTestCoordinator(store, engine, &fakeReleaser{})

	wf, err := coord.Deploy(context.Background(), "tenant-a", "p01s01", testScope())
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if wf.DeploymentStatus != domain.DeploymentDeployed {
		t.Errorf("status = %s, want DEPLOYED", wf.DeploymentStatus)
	}
	if wf.EngineWorkflowID == "" {
		t.Error("engine workflow id not recorded")
	}
	// Two transient failures plus the success.
	if engine.creates != 3 {
		t.Errorf("engine create calls = %d, want 3", engine.creates)
	}

	stored, err := store.GetByTenant(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("GetByTenant: %v", err)
	}
	if stored.DeploymentStatus != domain.DeploymentDeployed {
		t.Errorf("stored status = %s, want DEPLOYED", stored.DeploymentStatus)
	}
}

func TestDeployRejectionIsNotRetried(t *testing.T) {
	store := newFakeWorkflowStore()
	engine := &flakyEngine{rejectAll: true}
	coord := newTestCoordinator(store, engine, &fakeReleaser{})

	wf, err := coord.Deploy(context.Background(), "tenant-a", "p01s01", testScope())
	if !errors.Is(err, engineapi.ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if engine.creates != 1 {
		t.Errorf("engine create calls = %d, want 1 (no retries on rejection)", engine.creates)
	}
	if wf.DeploymentStatus != domain.DeploymentFailed {
		t.Errorf("status = %s, want FAILED", wf.DeploymentStatus)
	}
}

func TestDeployExhaustsRetries(t *testing.T) {
	store := newFakeWorkflowStore()
	engine := &flakyEngine{failCreates: 100}
	coord := newTestCoordinator(store, engine, &fakeReleaser{})

	wf, err := coord.Deploy(context.Background(), "tenant-a", "p01s01", testScope())
	if !errors.Is(err, engineapi.ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
	if engine.creates != 3 {
		t.Errorf("engine create calls = %d, want 3", engine.creates)
	}
	if wf.DeploymentStatus != domain.DeploymentFailed {
		t.Errorf("status = %s, want FAILED", wf.DeploymentStatus)
	}
}

func TestDeployTagsAndChainsNodes(t *testing.T) {
	def, err := Compile("tenant-a", "p02s03", testScope(), catalog.NewValidator(catalog.Default()))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	wantTags := map[string]bool{"slot:p02s03": true, "tenant:tenant-a": true}
	for _, tag := range def.Tags {
		delete(wantTags, tag)
	}
	if len(wantTags) > 0 {
		t.Errorf("definition missing tags: %v (got %v)", wantTags, def.Tags)
	}

	// trigger + action + output make a linear chain.
	if len(def.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(def.Nodes))
	}
	if def.Nodes[0].Type != "schedule-trigger" {
		t.Errorf("first node type = %s, want schedule-trigger", def.Nodes[0].Type)
	}
	for i := 0; i < len(def.Nodes)-1; i++ {
		next := def.Connections[def.Nodes[i].Name]
		if len(next) != 1 || next[0] != def.Nodes[i+1].Name {
			t.Errorf("node %s connects to %v, want [%s]", def.Nodes[i].Name, next, def.Nodes[i+1].Name)
		}
	}

	if def.Name != "tenant-a-every-morning-at-9am" {
		t.Errorf("workflow name = %q", def.Name)
	}
}

func TestTeardownRemovesWorkflowAndReleasesSlot(t *testing.T) {
	store := newFakeWorkflowStore()
	engine := &flakyEngine{}
	releaser := &fakeReleaser{}
	coord := newTestCoordinator(store, engine, releaser)
	ctx := context.Background()

	wf, err := coord.Deploy(ctx, "tenant-a", "p01s01", testScope())
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	if err := coord.Teardown(ctx, "tenant-a"); err != nil {
		t.Fatalf("Teardown: %v", err)
	}

	if len(engine.deletions) != 1 || engine.deletions[0] != wf.EngineWorkflowID {
		t.Errorf("engine deletions = %v, want [%s]", engine.deletions, wf.EngineWorkflowID)
	}
	if _, err := store.GetByTenant(ctx, "tenant-a"); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("workflow record still present: %v", err)
	}
	if len(releaser.released) != 1 || releaser.released[0] != "tenant-a" {
		t.Errorf("released = %v, want [tenant-a]", releaser.released)
	}
}

func TestTeardownWithoutWorkflow(t *testing.T) {
	coord := newTestCoordinator(newFakeWorkflowStore(), &flakyEngine{}, &fakeReleaser{})

	err := coord.Teardown(context.Background(), "tenant-a")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
