package reporting

import (
	"context"
	"errors"
	"sort"
	"strings"

	"ab-caller/internal/audit"
	"ab-caller/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// EventLister is the read side of the audit log.
type EventLister interface {
	List(ctx context.Context, f audit.Filter) ([]audit.Event, error)
}

type Service struct {
	events EventLister
}

func NewService(events EventLister) *Service { return &Service{events: events} }

// TestStatistics aggregates call_dispatched events for testID by group.
// Groups A and B are always reported, even with zero attempts.
func (s *Service) TestStatistics(ctx context.Context, testID string) (TestStats, error) {
	testID = strings.TrimSpace(testID)
	if testID == "" {
		return TestStats{}, ErrInvalidRequest
	}
	if s.events == nil {
		return TestStats{}, errors.New("reporting: event source not configured")
	}

	evs, err := s.events.List(ctx, audit.Filter{Type: audit.EventTypeCallDispatched, TestID: testID})
	if err != nil {
		return TestStats{}, err
	}

	byGroup := map[calls.Group]*GroupStats{
		calls.GroupA: {Group: calls.GroupA},
		calls.GroupB: {Group: calls.GroupB},
	}
	for _, e := range evs {
		g, ok := byGroup[e.Group]
		if !ok {
			g = &GroupStats{Group: e.Group}
			byGroup[e.Group] = g
		}
		g.Attempted++
		if e.Success {
			g.Succeeded++
		} else {
			g.Failed++
		}
	}

	out := TestStats{TestID: testID, Total: len(evs)}
	for _, g := range byGroup {
		if g.Attempted > 0 {
			g.SuccessRate = float64(g.Succeeded) / float64(g.Attempted)
		}
		out.Groups = append(out.Groups, *g)
	}
	sort.Slice(out.Groups, func(i, j int) bool { return out.Groups[i].Group < out.Groups[j].Group })
	return out, nil
}
