package allocator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Concierge/internal/domain"
	"github.com/shaiso/Concierge/internal/engineapi"
	"github.com/shaiso/Concierge/internal/repo"
)

// fakeStore is an in-memory SlotStore/ReconcileStore. A single mutex
// stands in for the row-level locks of the real repository, so
// concurrent Assign calls race the same way they do against Postgres.
type fakeStore struct {
	mu       sync.Mutex
	slots    map[string]*domain.Slot
	metadata map[string][]domain.SlotMetadata
	audit    map[string][]domain.AuditEntry
	seq      int64
}

func newFakeStore(projects, perProject int) *fakeStore {
	s := &fakeStore{
		slots:    make(map[string]*domain.Slot),
		metadata: make(map[string][]domain.SlotMetadata),
		audit:    make(map[string][]domain.AuditEntry),
	}
	for p := 1; p <= projects; p++ {
		for u := 1; u <= perProject; u++ {
			id := domain.SlotID(p, u)
			s.slots[id] = &domain.Slot{
				ID:            id,
				ProjectNumber: p,
				UserSlot:      u,
				Status:        domain.SlotStatusAvailable,
			}
		}
	}
	return s
}

func (s *fakeStore) Candidates(ctx context.Context) ([]domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activePerProject := make(map[int]int)
	for _, slot := range s.slots {
		if slot.Status == domain.SlotStatusActive {
			activePerProject[slot.ProjectNumber]++
		}
	}

	var out []domain.Slot
	for _, slot := range s.slots {
		if slot.Status == domain.SlotStatusAvailable {
			out = append(out, *slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := activePerProject[out[i].ProjectNumber], activePerProject[out[j].ProjectNumber]
		if ai != aj {
			return ai < aj
		}
		if out[i].ProjectNumber != out[j].ProjectNumber {
			return out[i].ProjectNumber < out[j].ProjectNumber
		}
		return out[i].UserSlot < out[j].UserSlot
	})
	return out, nil
}

func (s *fakeStore) ActiveByTenant(ctx context.Context, tenantID string) (*domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, slot := range s.slots {
		if slot.Status == domain.SlotStatusActive && slot.AssignedTenantID == tenantID {
			copied := *slot
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *fakeStore) Get(ctx context.Context, id string) (*domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *slot
	return &copied, nil
}

func (s *fakeStore) Assign(ctx context.Context, slotID, tenantID string) (*domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if slot.Status != domain.SlotStatusAvailable {
		return nil, fmt.Errorf("%w: slot %s is %s", repo.ErrAllocationConflict, slotID, slot.Status)
	}

	now := time.Now()
	slot.Status = domain.SlotStatusActive
	slot.AssignedTenantID = tenantID
	slot.AssignedAt = &now

	s.metadata[slotID] = append(s.metadata[slotID], domain.SlotMetadata{
		SlotID:     slotID,
		TenantHash: domain.MetadataHash(tenantID, now),
		CreatedAt:  now,
	})
	s.appendAuditLocked(slotID, tenantID, domain.AuditAssigned, "slot assigned")

	copied := *slot
	return &copied, nil
}

func (s *fakeStore) Release(ctx context.Context, tenantID string) (*domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range s.slots {
		if slot.Status != domain.SlotStatusActive || slot.AssignedTenantID != tenantID {
			continue
		}
		slot.Status = domain.SlotStatusAvailable
		slot.AssignedTenantID = ""
		slot.AssignedAt = nil
		for i := range s.metadata[slot.ID] {
			s.metadata[slot.ID][i].Archived = true
		}
		s.appendAuditLocked(slot.ID, tenantID, domain.AuditUnassigned, "slot released")
		copied := *slot
		return &copied, nil
	}
	return nil, repo.ErrNotFound
}

func (s *fakeStore) MarkActive(ctx context.Context, slotID, tenantID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[slotID]
	if !ok {
		return repo.ErrNotFound
	}
	if slot.Status != domain.SlotStatusAvailable {
		return repo.ErrInvalidState
	}
	now := time.Now()
	slot.Status = domain.SlotStatusActive
	slot.AssignedTenantID = tenantID
	slot.AssignedAt = &now
	s.appendAuditLocked(slotID, tenantID, domain.AuditVerified, note)
	return nil
}

func (s *fakeStore) ListAvailable(ctx context.Context) ([]domain.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Slot
	for _, slot := range s.slots {
		if slot.Status == domain.SlotStatusAvailable {
			out = append(out, *slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) CountActive(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, slot := range s.slots {
		if slot.Status == domain.SlotStatusActive {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) LatestOpenMetadata(ctx context.Context, slotID string) (*domain.SlotMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.metadata[slotID]
	for i := len(records) - 1; i >= 0; i-- {
		if !records[i].Archived {
			copied := records[i]
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *fakeStore) LatestAssignmentAudit(ctx context.Context, slotID string) (*domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.audit[slotID]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Action == domain.AuditAssigned || entries[i].Action == domain.AuditUnassigned {
			copied := entries[i]
			return &copied, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *fakeStore) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendAuditLocked(entry.SlotID, entry.TenantID, entry.Action, entry.Details)
	return nil
}

func (s *fakeStore) appendAuditLocked(slotID, tenantID string, action domain.AuditAction, details string) {
	s.seq++
	s.audit[slotID] = append(s.audit[slotID], domain.AuditEntry{
		ID:        s.seq,
		SlotID:    slotID,
		TenantID:  tenantID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now(),
	})
}

func (s *fakeStore) auditCount(slotID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audit[slotID])
}

func (s *fakeStore) lastAudit(slotID string) domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.audit[slotID]
	return entries[len(entries)-1]
}

func (s *fakeStore) auditCountByAction(slotID string, action domain.AuditAction) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.audit[slotID] {
		if e.Action == action {
			count++
		}
	}
	return count
}

// fakeEngine serves canned workflow lists per tag.
type fakeEngine struct {
	mu        sync.Mutex
	workflows map[string][]engineapi.EngineWorkflow
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{workflows: make(map[string][]engineapi.EngineWorkflow)}
}

func (e *fakeEngine) ListWorkflowsByTag(ctx context.Context, tag string) ([]engineapi.EngineWorkflow, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workflows[tag], nil
}

func (e *fakeEngine) addWorkflow(slotID string, tags ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tag := engineapi.SlotTag(slotID)
	e.workflows[tag] = append(e.workflows[tag], engineapi.EngineWorkflow{
		ID:   fmt.Sprintf("wf-%s-%d", slotID, len(e.workflows[tag])+1),
		Tags: append([]string{tag}, tags...),
	})
}

func newTestAllocator(store *fakeStore, engine *fakeEngine) *Allocator {
	return New(Config{
		Store:      store,
		Engine:     engine,
		StaleGrace: 30 * 24 * time.Hour,
	})
}

func TestAcquireAssignsCleanSlot(t *testing.T) {
	store := newFakeStore(2, 2)
	alloc := newTestAllocator(store, newFakeEngine())

	slot, err := alloc.Acquire(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if slot.Status != domain.SlotStatusActive {
		t.Errorf("slot status = %s, want ACTIVE", slot.Status)
	}
	if slot.AssignedTenantID != "tenant-a" {
		t.Errorf("assigned tenant = %q, want tenant-a", slot.AssignedTenantID)
	}

	last := store.lastAudit(slot.ID)
	if last.Action != domain.AuditAssigned {
		t.Errorf("last audit action = %s, want ASSIGNED", last.Action)
	}
	meta, err := store.LatestOpenMetadata(context.Background(), slot.ID)
	if err != nil {
		t.Fatalf("expected an open metadata record: %v", err)
	}
	if meta.TenantHash == "" {
		t.Error("metadata record has empty tenant hash")
	}
}

func TestAcquireIsIdempotent(t *testing.T) {
	store := newFakeStore(2, 2)
	alloc := newTestAllocator(store, newFakeEngine())
	ctx := context.Background()

	first, err := alloc.Acquire(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	auditBefore := store.auditCount(first.ID)

	// A retried acquire must return the same slot and leave no trace.
	second, err := alloc.Acquire(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second Acquire returned %s, want %s", second.ID, first.ID)
	}
	if got := store.auditCount(first.ID); got != auditBefore {
		t.Errorf("audit entries = %d after retry, want %d", got, auditBefore)
	}
}

func TestAcquireBalancesAcrossProjects(t *testing.T) {
	store := newFakeStore(3, 3)
	alloc := newTestAllocator(store, newFakeEngine())
	ctx := context.Background()

	perProject := make(map[int]int)
	for i := 0; i < 6; i++ {
		slot, err := alloc.Acquire(ctx, fmt.Sprintf("tenant-%d", i))
		if err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
		perProject[slot.ProjectNumber]++
	}

	minCount, maxCount := 6, 0
	for p := 1; p <= 3; p++ {
		if perProject[p] < minCount {
			minCount = perProject[p]
		}
		if perProject[p] > maxCount {
			maxCount = perProject[p]
		}
	}
	if maxCount-minCount > 1 {
		t.Errorf("project load spread = %d (%v), want <= 1", maxCount-minCount, perProject)
	}
}

func TestAcquireSkipsSlotWithResidualWorkflows(t *testing.T) {
	store := newFakeStore(1, 2)
	engine := newFakeEngine()
	// p01s01 would be the first candidate, but the engine still holds
	// a workflow tagged with it.
	engine.addWorkflow("p01s01")
	alloc := newTestAllocator(store, engine)

	slot, err := alloc.Acquire(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if slot.ID != "p01s02" {
		t.Errorf("assigned slot = %s, want p01s02", slot.ID)
	}

	// The tainted candidate keeps its AVAILABLE status but gains a warning.
	tainted, _ := store.Get(context.Background(), "p01s01")
	if tainted.Status != domain.SlotStatusAvailable {
		t.Errorf("tainted slot status = %s, want AVAILABLE", tainted.Status)
	}
	last := store.lastAudit("p01s01")
	if last.Action != domain.AuditWarning {
		t.Errorf("tainted slot last audit = %s, want WARNING", last.Action)
	}
}

func TestAcquireSkipsSlotWithFreshMetadata(t *testing.T) {
	store := newFakeStore(1, 2)
	store.metadata["p01s01"] = []domain.SlotMetadata{{
		SlotID:     "p01s01",
		TenantHash: "deadbeef",
		CreatedAt:  time.Now().Add(-time.Hour),
	}}
	alloc := newTestAllocator(store, newFakeEngine())

	slot, err := alloc.Acquire(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if slot.ID != "p01s02" {
		t.Errorf("assigned slot = %s, want p01s02", slot.ID)
	}
}

func TestAcquireAllowsStaleMetadata(t *testing.T) {
	store := newFakeStore(1, 1)
	// Leftover record well past the grace period should not block the
	// only slot in the pool.
	store.metadata["p01s01"] = []domain.SlotMetadata{{
		SlotID:     "p01s01",
		TenantHash: "deadbeef",
		CreatedAt:  time.Now().Add(-60 * 24 * time.Hour),
	}}
	alloc := newTestAllocator(store, newFakeEngine())

	slot, err := alloc.Acquire(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if slot.ID != "p01s01" {
		t.Errorf("assigned slot = %s, want p01s01", slot.ID)
	}
	// Proceeding past stale metadata still leaves a trace in the journal.
	if got := store.auditCountByAction("p01s01", domain.AuditWarning); got != 1 {
		t.Errorf("warning audit entries = %d, want 1", got)
	}
	if got := store.auditCountByAction("p01s01", domain.AuditAssigned); got != 1 {
		t.Errorf("assigned audit entries = %d, want 1", got)
	}
}

func TestAcquireSkipsSlotWithDanglingAssignment(t *testing.T) {
	store := newFakeStore(1, 2)
	// Audit trail says p01s01 was assigned and never released.
	store.appendAuditLocked("p01s01", "ghost", domain.AuditAssigned, "slot assigned")
	alloc := newTestAllocator(store, newFakeEngine())

	slot, err := alloc.Acquire(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if slot.ID != "p01s02" {
		t.Errorf("assigned slot = %s, want p01s02", slot.ID)
	}
}

func TestAcquireCapacityExceeded(t *testing.T) {
	store := newFakeStore(1, 2)
	alloc := newTestAllocator(store, newFakeEngine())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := alloc.Acquire(ctx, fmt.Sprintf("tenant-%d", i)); err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
	}

	_, err := alloc.Acquire(ctx, "tenant-late")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestAcquireConcurrentRaceForLastSlot(t *testing.T) {
	store := newFakeStore(1, 1)
	alloc := newTestAllocator(store, newFakeEngine())
	ctx := context.Background()

	const contenders = 8
	results := make(chan error, contenders)
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < contenders; i++ {
		go func(n int) {
			start.Wait()
			_, err := alloc.Acquire(ctx, fmt.Sprintf("tenant-%d", n))
			results <- err
		}(i)
	}
	start.Done()

	won, lost := 0, 0
	for i := 0; i < contenders; i++ {
		switch err := <-results; {
		case err == nil:
			won++
		case errors.Is(err, ErrCapacityExceeded):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Errorf("winners = %d, want exactly 1", won)
	}
	if lost != contenders-1 {
		t.Errorf("capacity-exceeded losers = %d, want %d", lost, contenders-1)
	}

	// Exactly one ASSIGNED entry despite the contention.
	assigned := 0
	store.mu.Lock()
	for _, entry := range store.audit["p01s01"] {
		if entry.Action == domain.AuditAssigned {
			assigned++
		}
	}
	store.mu.Unlock()
	if assigned != 1 {
		t.Errorf("ASSIGNED audit entries = %d, want 1", assigned)
	}
}

func TestReleaseFreesSlotAndArchivesMetadata(t *testing.T) {
	store := newFakeStore(1, 1)
	alloc := newTestAllocator(store, newFakeEngine())
	ctx := context.Background()

	acquired, err := alloc.Acquire(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	released, err := alloc.Release(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.ID != acquired.ID {
		t.Errorf("released slot = %s, want %s", released.ID, acquired.ID)
	}

	slot, _ := store.Get(ctx, acquired.ID)
	if slot.Status != domain.SlotStatusAvailable {
		t.Errorf("slot status = %s, want AVAILABLE", slot.Status)
	}
	if _, err := store.LatestOpenMetadata(ctx, acquired.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected all metadata archived, got %v", err)
	}
	if last := store.lastAudit(acquired.ID); last.Action != domain.AuditUnassigned {
		t.Errorf("last audit = %s, want UNASSIGNED", last.Action)
	}

	// The slot is immediately reusable.
	again, err := alloc.Acquire(ctx, "tenant-b")
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	if again.ID != acquired.ID {
		t.Errorf("reused slot = %s, want %s", again.ID, acquired.ID)
	}
}

func TestReleaseWithoutActiveSlot(t *testing.T) {
	store := newFakeStore(1, 1)
	alloc := newTestAllocator(store, newFakeEngine())

	_, err := alloc.Release(context.Background(), "tenant-a")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
