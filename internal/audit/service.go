package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ab-caller/internal/calls"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only; there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, events ...Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}

// Service records dispatch activity. It is internal-only.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var (
	ErrInvalidEvent  = errors.New("audit: invalid event")
	ErrNoRepository  = errors.New("audit: repository not configured")
	ErrBatchMismatch = errors.New("audit: requests and results differ in length")
)

// Append validates events, assigns ids and timestamps, and stores them together.
func (s *Service) Append(ctx context.Context, events ...Event) error {
	if s.repo == nil {
		return ErrNoRepository
	}
	now := s.clock().UTC()
	for i := range events {
		if !events[i].Type.Valid() {
			return fmt.Errorf("%w: type %q", ErrInvalidEvent, events[i].Type)
		}
		if events[i].ID == "" {
			events[i].ID = uuid.NewString()
		}
		if events[i].CreatedAt.IsZero() {
			events[i].CreatedAt = now
		}
	}
	return s.repo.Append(ctx, events...)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	return s.repo.List(ctx, f)
}

// LogCall records a single dispatch.
func (s *Service) LogCall(ctx context.Context, actor Actor, req calls.Request, res calls.Result) error {
	return s.Append(ctx, callEvent(actor, req, res))
}

// LogBatch records each dispatch of a batch plus one summary event.
func (s *Service) LogBatch(ctx context.Context, actor Actor, reqs []calls.Request, results []calls.Result) error {
	if len(reqs) != len(results) {
		return ErrBatchMismatch
	}
	events := make([]Event, 0, len(reqs)+1)
	succeeded := 0
	for i := range reqs {
		events = append(events, callEvent(actor, reqs[i], results[i]))
		if results[i].Success {
			succeeded++
		}
	}
	events = append(events, Event{
		Type:        EventTypeBatchDispatched,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		Success:     succeeded == len(reqs),
		Message:     fmt.Sprintf("batch of %d calls, %d succeeded", len(reqs), succeeded),
		Metadata:    mustJSON(map[string]int{"total": len(reqs), "succeeded": succeeded}),
	})
	return s.Append(ctx, events...)
}

// LogConnectionTest records a connection probe.
func (s *Service) LogConnectionTest(ctx context.Context, actor Actor, testType, status string, success bool, details map[string]any) error {
	return s.Append(ctx, Event{
		Type:        EventTypeConnectionTest,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		Success:     success,
		Message:     testType + ": " + status,
		Metadata:    mustJSON(details),
	})
}

func callEvent(actor Actor, req calls.Request, res calls.Result) Event {
	msg := "call dispatched"
	if !res.Success {
		msg = res.Error
	}
	e := Event{
		Type:        EventTypeCallDispatched,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		TestID:      req.TestID,
		LeadID:      req.LeadID,
		Group:       req.Group,
		CallID:      res.CallID,
		Success:     res.Success,
		Message:     msg,
	}
	if res.Metadata != nil {
		e.Metadata = mustJSON(res.Metadata)
	}
	return e
}

func mustJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
