package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ab-caller/internal/calls"
)

func TestService_AppendRequiresKnownType(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.Append(context.Background(), Event{Type: "call_scheduled"}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if err := NewService(nil).Append(context.Background(), Event{Type: EventTypeCallDispatched}); !errors.Is(err, ErrNoRepository) {
		t.Fatalf("expected ErrNoRepository, got %v", err)
	}
}

func TestService_LogCallFillsIdentity(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	req := calls.Request{DestinationNumber: "1", DerivationID: "d", OriginNumber: "o", Group: calls.GroupA, TestID: "t1", LeadID: "l1"}
	res := calls.Result{Success: true, CallID: "c1", Metadata: calls.MetadataFor(req, time.Now())}
	if err := svc.LogCall(context.Background(), Actor{UserID: "u", Role: "operator", IP: "1.2.3.4"}, req, res); err != nil {
		t.Fatalf("log: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
	if e.Type != EventTypeCallDispatched || e.CallID != "c1" || e.Group != calls.GroupA || e.IPAddress != "1.2.3.4" {
		t.Fatalf("unexpected event: %+v", e)
	}
	if !strings.Contains(e.Metadata, `"derivationId":"d"`) {
		t.Fatalf("expected metadata json, got %q", e.Metadata)
	}
}

func TestService_LogBatch(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	reqs := []calls.Request{{Group: calls.GroupA, TestID: "t"}, {Group: calls.GroupB, TestID: "t"}}
	results := []calls.Result{{Success: true}, calls.Failed("busy")}
	if err := svc.LogBatch(context.Background(), Actor{UserID: "u"}, reqs, results); err != nil {
		t.Fatalf("log batch: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evs))
	}
	if evs[1].Message != "busy" || evs[1].Success {
		t.Fatalf("expected failed item event, got %+v", evs[1])
	}
	if evs[2].Type != EventTypeBatchDispatched || evs[2].Success {
		t.Fatalf("unexpected summary: %+v", evs[2])
	}

	if err := svc.LogBatch(context.Background(), Actor{}, reqs, results[:1]); !errors.Is(err, ErrBatchMismatch) {
		t.Fatalf("expected ErrBatchMismatch, got %v", err)
	}
}

func TestMemoryRepo_ListFilters(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_ = svc.LogCall(ctx, Actor{}, calls.Request{TestID: "t1", Group: calls.GroupA}, calls.Result{Success: true})
	_ = svc.LogCall(ctx, Actor{}, calls.Request{TestID: "t2", Group: calls.GroupA}, calls.Result{Success: true})
	_ = svc.LogConnectionTest(ctx, Actor{}, "login", "webhook_connected", true, map[string]any{"x": 1})

	got, err := svc.List(ctx, Filter{Type: EventTypeCallDispatched, TestID: "t1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].TestID != "t1" {
		t.Fatalf("unexpected events: %+v", got)
	}

	got, _ = svc.List(ctx, Filter{Limit: 2})
	if len(got) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(got))
	}
}
