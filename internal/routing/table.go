package routing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"ab-caller/internal/calls"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownGroup = errors.New("routing: unknown group")
	ErrInvalidTable = errors.New("routing: invalid table")
)

// Table resolves group labels to routes. It is read-only after construction
// and safe for concurrent use.
type Table struct {
	routes map[calls.Group]Route
}

// DefaultTable returns the built-in A/B configuration.
func DefaultTable() *Table {
	t, _ := NewTable([]Route{
		{Group: calls.GroupA, DerivationID: "mobile-derivation-001", OriginNumber: "34604579589", Strategy: "mobile-first"},
		{Group: calls.GroupB, DerivationID: "landline-derivation-002", OriginNumber: "34604579589", Strategy: "landline-focused"},
	})
	return t
}

// NewTable validates routes and indexes them by group.
func NewTable(routes []Route) (*Table, error) {
	if len(routes) == 0 {
		return nil, fmt.Errorf("%w: no routes", ErrInvalidTable)
	}
	m := make(map[calls.Group]Route, len(routes))
	for i, r := range routes {
		r.Group = calls.Group(strings.TrimSpace(string(r.Group)))
		switch {
		case r.Group == "":
			return nil, fmt.Errorf("%w: route %d has no group", ErrInvalidTable, i)
		case strings.TrimSpace(r.DerivationID) == "":
			return nil, fmt.Errorf("%w: group %s has no derivationId", ErrInvalidTable, r.Group)
		case strings.TrimSpace(r.OriginNumber) == "":
			return nil, fmt.Errorf("%w: group %s has no originNumber", ErrInvalidTable, r.Group)
		}
		if _, dup := m[r.Group]; dup {
			return nil, fmt.Errorf("%w: duplicate group %s", ErrInvalidTable, r.Group)
		}
		m[r.Group] = r
	}
	return &Table{routes: m}, nil
}

type tableFile struct {
	Groups []Route `yaml:"groups"`
}

// ParseTable decodes a YAML document of the form:
//
//	groups:
//	  - group: A
//	    derivationId: mobile-derivation-001
//	    originNumber: "34604579589"
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return NewTable(f.Groups)
}

// LoadTable reads a YAML table from path.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routing: read table: %w", err)
	}
	return ParseTable(data)
}

// Resolve returns the route for group.
func (t *Table) Resolve(group calls.Group) (Route, error) {
	if t == nil {
		return Route{}, ErrUnknownGroup
	}
	r, ok := t.routes[group]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownGroup, group)
	}
	return r, nil
}

// Groups lists configured group labels.
func (t *Table) Groups() []calls.Group {
	if t == nil {
		return nil
	}
	out := make([]calls.Group, 0, len(t.routes))
	for g := range t.routes {
		out = append(out, g)
	}
	return out
}

// Complete fills a missing derivationId or originNumber from the route for
// r.Group. Values already set are kept; unknown groups are returned as is.
func (t *Table) Complete(r calls.Request) calls.Request {
	if r.Group == "" || (r.DerivationID != "" && r.OriginNumber != "") {
		return r
	}
	route, err := t.Resolve(r.Group)
	if err != nil {
		return r
	}
	if r.DerivationID == "" {
		r.DerivationID = route.DerivationID
	}
	if r.OriginNumber == "" {
		r.OriginNumber = route.OriginNumber
	}
	return r
}
