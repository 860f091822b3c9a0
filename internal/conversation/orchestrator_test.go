package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Concierge/internal/allocator"
	"github.com/shaiso/Concierge/internal/catalog"
	"github.com/shaiso/Concierge/internal/domain"
	"github.com/shaiso/Concierge/internal/engineapi"
	"github.com/shaiso/Concierge/internal/repo"
)

// fakeSessions keeps sessions in memory, keyed by (tenant, id).
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*domain.ConversationSession
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]*domain.ConversationSession)}
}

func sessionKey(tenantID string, id uuid.UUID) string {
	return tenantID + "/" + id.String()
}

func (s *fakeSessions) Create(ctx context.Context, session *domain.ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[sessionKey(session.TenantID, session.ID)] = &copied
	return nil
}

func (s *fakeSessions) Get(ctx context.Context, tenantID string, id uuid.UUID) (*domain.ConversationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionKey(tenantID, id)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *fakeSessions) Update(ctx context.Context, session *domain.ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionKey(session.TenantID, session.ID)]; !ok {
		return repo.ErrNotFound
	}
	copied := *session
	s.sessions[sessionKey(session.TenantID, session.ID)] = &copied
	return nil
}

func (s *fakeSessions) ListIdle(ctx context.Context, cutoff time.Time, limit int) ([]domain.ConversationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idle []domain.ConversationSession
	for _, session := range s.sessions {
		if session.Phase.IsTerminal() {
			continue
		}
		if session.UpdatedAt.Before(cutoff) {
			idle = append(idle, *session)
		}
		if len(idle) == limit {
			break
		}
	}
	return idle, nil
}

// fakeSlots hands out a single slot or reports exhaustion.
type fakeSlots struct {
	mu        sync.Mutex
	exhausted bool
	acquired  []string
	released  []string
}

func (s *fakeSlots) Acquire(ctx context.Context, tenantID string) (*domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exhausted {
		return nil, allocator.ErrCapacityExceeded
	}
	s.acquired = append(s.acquired, tenantID)
	return &domain.Slot{
		ID:               "p01s01",
		ProjectNumber:    1,
		UserSlot:         1,
		Status:           domain.SlotStatusActive,
		AssignedTenantID: tenantID,
	}, nil
}

func (s *fakeSlots) Release(ctx context.Context, tenantID string) (*domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, tenantID)
	return &domain.Slot{ID: "p01s01", Status: domain.SlotStatusAvailable}, nil
}

// fakeDeployer succeeds or fails with a fixed error.
type fakeDeployer struct {
	mu      sync.Mutex
	failErr error
	calls   int
}

func (d *fakeDeployer) Deploy(ctx context.Context, tenantID, slotID string, scope *domain.ScopeDraft) (*domain.Workflow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failErr != nil {
		return nil, d.failErr
	}
	return &domain.Workflow{
		ID:               uuid.New(),
		TenantID:         tenantID,
		SlotID:           slotID,
		Name:             tenantID + "-automation",
		DeploymentStatus: domain.DeploymentDeployed,
		EngineWorkflowID: "engine-wf-1",
	}, nil
}

func newTestOrchestrator(sessions *fakeSessions, slots *fakeSlots, deployer *fakeDeployer) *Orchestrator {
	return New(Config{
		Sessions:    sessions,
		Catalog:     catalog.Default(),
		Slots:       slots,
		Deployer:    deployer,
		IdleTimeout: 24 * time.Hour,
	})
}

func lastAgentReply(t *testing.T, session *domain.ConversationSession) string {
	t.Helper()
	if len(session.Turns) == 0 {
		t.Fatal("session has no turns")
	}
	last := session.Turns[len(session.Turns)-1]
	if last.Role != domain.RoleAgent {
		t.Fatalf("last turn role = %s, want agent", last.Role)
	}
	return last.Content
}

const fullRequest = "Every morning at 9, summarize new orders from the database and email me a report"

func TestAdvanceFullFirstMessageSkipsScopingQuestions(t *testing.T) {
	orch := newTestOrchestrator(newFakeSessions(), &fakeSlots{}, &fakeDeployer{})

	// A message carrying trigger, action and output at once goes straight
	// to the confirmation summary without a single follow-up question.
	session, err := orch.Advance(context.Background(), "tenant-a", uuid.New(), fullRequest)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if session.Phase != domain.PhaseValidating {
		t.Fatalf("phase = %s, want VALIDATING", session.Phase)
	}

	if session.Scope.Trigger != "schedule-trigger" {
		t.Errorf("trigger = %q, want schedule-trigger", session.Scope.Trigger)
	}
	if len(session.Scope.Actions) == 0 {
		t.Error("no actions extracted")
	}
	if len(session.Scope.Outputs) == 0 {
		t.Error("no outputs extracted")
	}

	reply := lastAgentReply(t, session)
	if !strings.Contains(reply, "confirm") {
		t.Errorf("reply does not ask for confirmation: %q", reply)
	}
}

func TestAdvanceAsksOnlyForMissingFields(t *testing.T) {
	orch := newTestOrchestrator(newFakeSessions(), &fakeSlots{}, &fakeDeployer{})
	sessionID := uuid.New()
	ctx := context.Background()

	// Action and output are present, the trigger is not.
	session, err := orch.Advance(ctx, "tenant-a", sessionID,
		"Summarize our sales report and post it to the slack channel")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if session.Phase != domain.PhaseScoping {
		t.Fatalf("phase = %s, want SCOPING", session.Phase)
	}

	reply := lastAgentReply(t, session)
	if !strings.Contains(reply, "trigger") {
		t.Errorf("reply does not ask about the trigger: %q", reply)
	}
	if strings.Contains(reply, "deliver") {
		t.Errorf("reply asks about an already-known field: %q", reply)
	}

	// Supplying the trigger completes the scope.
	session, err = orch.Advance(ctx, "tenant-a", sessionID, "run it every monday morning")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if session.Phase != domain.PhaseValidating {
		t.Errorf("phase = %s, want VALIDATING", session.Phase)
	}
}

func TestAdvanceRedirectsOffTopicMessage(t *testing.T) {
	orch := newTestOrchestrator(newFakeSessions(), &fakeSlots{}, &fakeDeployer{})

	session, err := orch.Advance(context.Background(), "tenant-a", uuid.New(),
		"What's the weather going to be tomorrow?")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if session.Phase != domain.PhaseGreeting {
		t.Errorf("phase = %s, want GREETING (off-topic keeps the phase)", session.Phase)
	}
	if reply := lastAgentReply(t, session); !strings.Contains(reply, "automat") {
		t.Errorf("reply does not redirect to automations: %q", reply)
	}
}

func TestAdvanceInfeasibleTriggerOffersAlternatives(t *testing.T) {
	orch := newTestOrchestrator(newFakeSessions(), &fakeSlots{}, &fakeDeployer{})
	sessionID := uuid.New()
	ctx := context.Background()

	if _, err := orch.Advance(ctx, "tenant-a", sessionID,
		"Summarize our sales report and post it to the slack channel"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// The answer to the trigger question names something the engine
	// cannot do.
	session, err := orch.Advance(ctx, "tenant-a", sessionID,
		"whenever someone mentions us on twitter")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if session.Phase != domain.PhaseScoping {
		t.Errorf("phase = %s, want SCOPING after infeasible scope", session.Phase)
	}
	if session.Scope.Trigger != "" {
		t.Errorf("infeasible trigger kept in scope: %q", session.Scope.Trigger)
	}

	reply := lastAgentReply(t, session)
	if !strings.Contains(reply, "not something the engine supports") {
		t.Errorf("reply does not explain infeasibility: %q", reply)
	}
	if !strings.Contains(reply, "Closest supported options") {
		t.Errorf("reply offers no alternatives: %q", reply)
	}
}

func TestAdvanceConfirmationDeploysAndCompletes(t *testing.T) {
	slots := &fakeSlots{}
	deployer := &fakeDeployer{}
	orch := newTestOrchestrator(newFakeSessions(), slots, deployer)
	sessionID := uuid.New()
	ctx := context.Background()

	if _, err := orch.Advance(ctx, "tenant-a", sessionID, fullRequest); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	session, err := orch.Advance(ctx, "tenant-a", sessionID, "confirm")
	if err != nil {
		t.Fatalf("Advance(confirm): %v", err)
	}
	if session.Phase != domain.PhaseCompleted {
		t.Fatalf("phase = %s, want COMPLETED", session.Phase)
	}
	if len(slots.acquired) != 1 {
		t.Errorf("slots acquired = %d, want 1", len(slots.acquired))
	}
	if deployer.calls != 1 {
		t.Errorf("deploy calls = %d, want 1", deployer.calls)
	}
	if reply := lastAgentReply(t, session); !strings.Contains(reply, "tenant-a-automation") {
		t.Errorf("reply does not name the workflow: %q", reply)
	}

	// Completed sessions accept no further messages.
	if _, err := orch.Advance(ctx, "tenant-a", sessionID, "one more thing"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
}

func TestAdvanceCapacityExceededKeepsConfirmation(t *testing.T) {
	slots := &fakeSlots{exhausted: true}
	deployer := &fakeDeployer{}
	orch := newTestOrchestrator(newFakeSessions(), slots, deployer)
	sessionID := uuid.New()
	ctx := context.Background()

	if _, err := orch.Advance(ctx, "tenant-a", sessionID, fullRequest); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	session, err := orch.Advance(ctx, "tenant-a", sessionID, "confirm")
	if err != nil {
		t.Fatalf("Advance(confirm): %v", err)
	}
	if session.Phase != domain.PhaseValidating {
		t.Errorf("phase = %s, want VALIDATING (retryable later)", session.Phase)
	}
	if deployer.calls != 0 {
		t.Errorf("deploy calls = %d, want 0", deployer.calls)
	}

	// Capacity frees up, the same confirmation goes through.
	slots.exhausted = false
	session, err = orch.Advance(ctx, "tenant-a", sessionID, "confirm")
	if err != nil {
		t.Fatalf("Advance(retry confirm): %v", err)
	}
	if session.Phase != domain.PhaseCompleted {
		t.Errorf("phase = %s, want COMPLETED", session.Phase)
	}
}

func TestAdvanceDeployFailureReleasesSlot(t *testing.T) {
	slots := &fakeSlots{}
	deployer := &fakeDeployer{failErr: engineapi.ErrTransient}
	orch := newTestOrchestrator(newFakeSessions(), slots, deployer)
	sessionID := uuid.New()
	ctx := context.Background()

	if _, err := orch.Advance(ctx, "tenant-a", sessionID, fullRequest); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	session, err := orch.Advance(ctx, "tenant-a", sessionID, "confirm")
	if err != nil {
		t.Fatalf("Advance(confirm): %v", err)
	}
	if session.Phase != domain.PhaseFailed {
		t.Errorf("phase = %s, want FAILED", session.Phase)
	}
	if len(slots.released) != 1 {
		t.Errorf("slots released = %d, want 1", len(slots.released))
	}

	// The failed session resumes into scoping on the next message.
	session, err = orch.Advance(ctx, "tenant-a", sessionID, "let's try the same design again")
	if err != nil {
		t.Fatalf("Advance after failure: %v", err)
	}
	if session.Phase == domain.PhaseFailed {
		t.Errorf("phase still FAILED after a new message")
	}
}

func TestAdvanceCancellation(t *testing.T) {
	orch := newTestOrchestrator(newFakeSessions(), &fakeSlots{}, &fakeDeployer{})
	sessionID := uuid.New()
	ctx := context.Background()

	if _, err := orch.Advance(ctx, "tenant-a", sessionID, fullRequest); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	session, err := orch.Advance(ctx, "tenant-a", sessionID, "cancel")
	if err != nil {
		t.Fatalf("Advance(cancel): %v", err)
	}
	if session.Phase != domain.PhaseCancelled {
		t.Errorf("phase = %s, want CANCELLED", session.Phase)
	}
}

func TestSessionLocksAreEvicted(t *testing.T) {
	orch := newTestOrchestrator(newFakeSessions(), &fakeSlots{}, &fakeDeployer{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sessionID := uuid.New()
			if _, err := orch.Advance(ctx, "tenant-a", sessionID, fullRequest); err != nil {
				t.Errorf("Advance: %v", err)
			}
			if _, err := orch.Advance(ctx, "tenant-a", sessionID, "cancel"); err != nil {
				t.Errorf("Advance(cancel): %v", err)
			}
		}()
	}
	wg.Wait()

	// The lock map holds only in-flight sessions; once all turns are
	// processed it must be empty again, terminal or not.
	orch.mu.Lock()
	remaining := len(orch.locks)
	orch.mu.Unlock()
	if remaining != 0 {
		t.Errorf("lock map holds %d entries after all turns finished, want 0", remaining)
	}
}

func TestCancelIdleSweep(t *testing.T) {
	sessions := newFakeSessions()
	orch := newTestOrchestrator(sessions, &fakeSlots{}, &fakeDeployer{})
	ctx := context.Background()

	stale := domain.NewSession(uuid.New(), "tenant-a")
	stale.Phase = domain.PhaseScoping
	stale.UpdatedAt = time.Now().Add(-48 * time.Hour)
	if err := sessions.Create(ctx, stale); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	fresh := domain.NewSession(uuid.New(), "tenant-b")
	fresh.Phase = domain.PhaseScoping
	if err := sessions.Create(ctx, fresh); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	cancelled, err := orch.CancelIdle(ctx, time.Now())
	if err != nil {
		t.Fatalf("CancelIdle: %v", err)
	}
	if cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", cancelled)
	}

	got, _ := sessions.Get(ctx, "tenant-a", stale.ID)
	if got.Phase != domain.PhaseCancelled {
		t.Errorf("stale session phase = %s, want CANCELLED", got.Phase)
	}
	got, _ = sessions.Get(ctx, "tenant-b", fresh.ID)
	if got.Phase != domain.PhaseScoping {
		t.Errorf("fresh session phase = %s, want SCOPING", got.Phase)
	}
}
