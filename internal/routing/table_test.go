package routing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ab-caller/internal/calls"
)

func TestDefaultTable_ResolvesGroups(t *testing.T) {
	tbl := DefaultTable()

	a, err := tbl.Resolve(calls.GroupA)
	if err != nil {
		t.Fatalf("resolve A: %v", err)
	}
	if a.DerivationID != "mobile-derivation-001" || a.OriginNumber != "34604579589" {
		t.Fatalf("unexpected route for A: %+v", a)
	}

	b, err := tbl.Resolve(calls.GroupB)
	if err != nil {
		t.Fatalf("resolve B: %v", err)
	}
	if b.DerivationID != "landline-derivation-002" {
		t.Fatalf("unexpected route for B: %+v", b)
	}
}

func TestResolve_UnknownGroup(t *testing.T) {
	if _, err := DefaultTable().Resolve("C"); !errors.Is(err, ErrUnknownGroup) {
		t.Fatalf("expected ErrUnknownGroup, got %v", err)
	}
}

func TestRouteApply(t *testing.T) {
	r := Route{Group: calls.GroupA, DerivationID: "d", OriginNumber: "o"}
	req := r.Apply("dest", "t1", "l1")
	if req.DestinationNumber != "dest" || req.DerivationID != "d" || req.OriginNumber != "o" || req.Group != calls.GroupA {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.TestID != "t1" || req.LeadID != "l1" {
		t.Fatalf("expected test and lead ids")
	}
}

func TestParseTable(t *testing.T) {
	doc := []byte(`
groups:
  - group: A
    derivationId: custom-a
    originNumber: "111"
  - group: B
    derivationId: custom-b
    originNumber: "222"
    strategy: landline-focused
`)
	tbl, err := ParseTable(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	r, err := tbl.Resolve(calls.GroupB)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.DerivationID != "custom-b" || r.OriginNumber != "222" || r.Strategy != "landline-focused" {
		t.Fatalf("unexpected route: %+v", r)
	}
	if len(tbl.Groups()) != 2 {
		t.Fatalf("expected 2 groups")
	}
}

func TestParseTable_RejectsDuplicatesAndGaps(t *testing.T) {
	cases := map[string]string{
		"empty":     "groups: []",
		"duplicate": "groups:\n  - {group: A, derivationId: x, originNumber: '1'}\n  - {group: A, derivationId: y, originNumber: '2'}",
		"no origin": "groups:\n  - {group: A, derivationId: x}",
		"bad yaml":  "groups: [",
	}
	for name, doc := range cases {
		if _, err := ParseTable([]byte(doc)); !errors.Is(err, ErrInvalidTable) {
			t.Fatalf("%s: expected ErrInvalidTable, got %v", name, err)
		}
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	if err := os.WriteFile(path, []byte("groups:\n  - {group: A, derivationId: x, originNumber: '1'}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	tbl, err := LoadTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := tbl.Resolve(calls.GroupA); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := LoadTable(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestComplete_FillsOnlyMissingFields(t *testing.T) {
	tbl := DefaultTable()

	got := tbl.Complete(calls.Request{Group: calls.GroupB, DestinationNumber: "1"})
	if got.DerivationID != "landline-derivation-002" || got.OriginNumber != "34604579589" {
		t.Fatalf("unexpected %+v", got)
	}

	got = tbl.Complete(calls.Request{Group: calls.GroupA, DerivationID: "custom"})
	if got.DerivationID != "custom" || got.OriginNumber != "34604579589" {
		t.Fatalf("unexpected %+v", got)
	}

	in := calls.Request{Group: "Z"}
	if got := tbl.Complete(in); got != in {
		t.Fatalf("unknown group should pass through, got %+v", got)
	}
	var none *Table
	if got := none.Complete(calls.Request{Group: calls.GroupA}); got.DerivationID != "" {
		t.Fatalf("nil table should not fill, got %+v", got)
	}
}

func TestGroups_NilTable(t *testing.T) {
	var none *Table
	if got := none.Groups(); len(got) != 0 {
		t.Fatalf("expected no groups, got %v", got)
	}
	if got := DefaultTable().Groups(); len(got) != 2 {
		t.Fatalf("expected 2 groups, got %v", got)
	}
}
