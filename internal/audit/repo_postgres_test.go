package audit

import (
	"strings"
	"testing"
	"time"
)

func TestListQuery_NoFilter(t *testing.T) {
	q, args := listQuery(Filter{})
	if strings.Contains(q, "WHERE") || len(args) != 0 {
		t.Fatalf("unexpected query %q args %v", q, args)
	}
	if !strings.HasSuffix(q, "ORDER BY created_at ASC") {
		t.Fatalf("expected ordering, got %q", q)
	}
}

func TestListQuery_NumbersPlaceholders(t *testing.T) {
	since := time.Unix(1700000000, 0).UTC()
	q, args := listQuery(Filter{Type: EventTypeCallDispatched, TestID: "t1", Since: since, Limit: 10})

	for _, want := range []string{"type = $1", "test_id = $2", "created_at >= $3", "LIMIT $4"} {
		if !strings.Contains(q, want) {
			t.Fatalf("expected %q in %q", want, q)
		}
	}
	if len(args) != 4 || args[0] != "call_dispatched" || args[1] != "t1" || args[3] != 10 {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestSchema_IsAppendOnlyTable(t *testing.T) {
	if !strings.Contains(Schema, "CREATE TABLE IF NOT EXISTS audit_events") {
		t.Fatalf("expected audit_events table in schema")
	}
}
