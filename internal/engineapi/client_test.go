package engineapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	return client, srv
}

func TestCreateWorkflow_Success(t *testing.T) {
	var gotKey string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Engine-Api-Key")
		w.Write([]byte(`{"id":"wf-123","name":"acme-daily-report","active":false}`))
	})

	id, err := client.CreateWorkflow(context.Background(), &WorkflowDefinition{Name: "acme-daily-report"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "wf-123" {
		t.Errorf("id = %q, want wf-123", id)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q, want test-key", gotKey)
	}
}

func TestDo_ServerErrorIsTransient(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.CreateWorkflow(context.Background(), &WorkflowDefinition{Name: "x"})
	if !errors.Is(err, ErrTransient) {
		t.Errorf("err = %v, want ErrTransient", err)
	}
}

func TestDo_ClientErrorIsRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown node type", http.StatusUnprocessableEntity)
	})

	_, err := client.CreateWorkflow(context.Background(), &WorkflowDefinition{Name: "x"})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
	if errors.Is(err, ErrTransient) {
		t.Error("rejected error must not be transient")
	}
}

func TestDeleteWorkflow_NotFoundIsSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	if err := client.DeleteWorkflow(context.Background(), "wf-gone"); err != nil {
		t.Errorf("deleting an already-deleted workflow should succeed, got %v", err)
	}
}

func TestListWorkflowsByTag(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("tag"); got != "slot:p03s02" {
			t.Errorf("tag = %q, want slot:p03s02", got)
		}
		w.Write([]byte(`{"data":[{"id":"wf-1","name":"left-behind","tags":["slot:p03s02","tenant:acme"]}]}`))
	})

	wfs, err := client.ListWorkflowsByTag(context.Background(), SlotTag("p03s02"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wfs) != 1 || wfs[0].ID != "wf-1" {
		t.Fatalf("workflows = %+v, want one wf-1", wfs)
	}
	if got := TenantFromTags(wfs[0].Tags); got != "acme" {
		t.Errorf("TenantFromTags = %q, want acme", got)
	}
}

func TestRetryPolicy_TransientThenSuccess(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return ErrTransient
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPolicy_RejectedNotRetried(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return ErrRejected
	})

	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on rejection)", calls)
	}
}

func TestRetryPolicy_Exhaustion(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	err := policy.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return ErrTransient
	})

	if !errors.Is(err, ErrTransient) {
		t.Errorf("err = %v, want ErrTransient", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
