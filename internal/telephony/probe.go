package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ab-caller/internal/calls"
)

// ProbeKind selects how far a connection test goes.
type ProbeKind string

const (
	ProbeLogin    ProbeKind = "login"
	ProbeWebhook  ProbeKind = "webhook"
	ProbeFullCall ProbeKind = "full_call"
)

// DefaultProbeDestination is dialed when a probe names no destination.
const DefaultProbeDestination = "34661216995"

var ErrUnknownProbe = errors.New("telephony: unknown probe kind")

type ProbeParams struct {
	DerivationID      string
	OriginNumber      string
	DestinationNumber string
}

// ProbeResult is the outcome of a connection test.
type ProbeResult struct {
	Success   bool           `json:"success"`
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	Timestamp string         `json:"timestamp"`
}

// Probe runs a connection test of the given kind against d.
func Probe(ctx context.Context, d Dispatcher, kind ProbeKind, p ProbeParams, now func() time.Time) (ProbeResult, error) {
	if now == nil {
		now = time.Now
	}
	switch kind {
	case ProbeLogin:
		return probeLogin(ctx, d, now), nil
	case ProbeWebhook:
		return probeCall(ctx, d, p.request("connection_test", "test_lead"), "webhook_working", "webhook_failed", "Webhook test", now), nil
	case ProbeFullCall:
		return probeCall(ctx, d, p.request("full_connection_test", "test_lead_full"), "full_call_success", "full_call_failed", "Full call test", now), nil
	default:
		return ProbeResult{}, fmt.Errorf("%w: %q", ErrUnknownProbe, kind)
	}
}

func (p ProbeParams) request(testID, leadID string) calls.Request {
	dest := p.DestinationNumber
	if dest == "" {
		dest = DefaultProbeDestination
	}
	return calls.Request{
		DestinationNumber: dest,
		DerivationID:      p.DerivationID,
		OriginNumber:      p.OriginNumber,
		Group:             calls.GroupA,
		TestID:            testID,
		LeadID:            leadID,
	}
}

func probeLogin(ctx context.Context, d Dispatcher, now func() time.Time) ProbeResult {
	start := now()
	res := d.Login(ctx)
	ts := calls.FormatTimestamp(now())
	if !res.Success {
		return ProbeResult{
			Status:    "webhook_login_failed",
			Message:   "Login failed: " + res.Error,
			Details:   map[string]any{"error": res.Error},
			Timestamp: ts,
		}
	}
	return ProbeResult{
		Success: true,
		Status:  "webhook_connected",
		Message: "Webhook login successful",
		Details: map[string]any{
			"login_time":  ts,
			"duration_ms": now().Sub(start).Milliseconds(),
		},
		Timestamp: ts,
	}
}

func probeCall(ctx context.Context, d Dispatcher, req calls.Request, okStatus, failStatus, label string, now func() time.Time) ProbeResult {
	res := d.MakeCall(ctx, req)
	ts := calls.FormatTimestamp(now())
	if !res.Success {
		return ProbeResult{
			Status:    failStatus,
			Message:   fmt.Sprintf("%s failed: %s", label, res.Error),
			Details:   map[string]any{"error": res.Error},
			Timestamp: ts,
		}
	}
	details := map[string]any{"call_id": res.CallID}
	if res.Metadata != nil {
		details["metadata"] = res.Metadata
	}
	return ProbeResult{
		Success:   true,
		Status:    okStatus,
		Message:   label + " successful",
		Details:   details,
		Timestamp: ts,
	}
}
