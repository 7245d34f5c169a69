package telephony

import (
	"context"
	"errors"
	"testing"

	"ab-caller/internal/calls"
)

type fakeDispatcher struct {
	login   LoginResult
	result  calls.Result
	lastReq calls.Request
	calls   int
}

func (f *fakeDispatcher) Name() string { return "fake" }

func (f *fakeDispatcher) Login(ctx context.Context) LoginResult { return f.login }

func (f *fakeDispatcher) MakeCall(ctx context.Context, req calls.Request) calls.Result {
	f.calls++
	f.lastReq = req
	return f.result
}

func (f *fakeDispatcher) MakeBatchCalls(ctx context.Context, reqs []calls.Request) []calls.Result {
	out := make([]calls.Result, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, f.MakeCall(ctx, r))
	}
	return out
}

func TestProbeLogin(t *testing.T) {
	d := &fakeDispatcher{login: LoginResult{Success: true}}
	res, err := Probe(context.Background(), d, ProbeLogin, ProbeParams{}, nil)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !res.Success || res.Status != "webhook_connected" {
		t.Fatalf("unexpected result: %+v", res)
	}

	d.login = LoginResult{Error: "401 Unauthorized"}
	res, _ = Probe(context.Background(), d, ProbeLogin, ProbeParams{}, nil)
	if res.Success || res.Status != "webhook_login_failed" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestProbeWebhook_DefaultsDestination(t *testing.T) {
	d := &fakeDispatcher{result: calls.Result{Success: true, CallID: "c1"}}
	res, err := Probe(context.Background(), d, ProbeWebhook, ProbeParams{DerivationID: "d", OriginNumber: "o"}, nil)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !res.Success || res.Status != "webhook_working" || res.Details["call_id"] != "c1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if d.lastReq.DestinationNumber != DefaultProbeDestination || d.lastReq.TestID != "connection_test" {
		t.Fatalf("unexpected request: %+v", d.lastReq)
	}
}

func TestProbeFullCall_Failure(t *testing.T) {
	d := &fakeDispatcher{result: calls.Failed("boom")}
	res, _ := Probe(context.Background(), d, ProbeFullCall, ProbeParams{DestinationNumber: "1"}, nil)
	if res.Success || res.Status != "full_call_failed" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if d.lastReq.TestID != "full_connection_test" || d.lastReq.DestinationNumber != "1" {
		t.Fatalf("unexpected request: %+v", d.lastReq)
	}
}

func TestProbe_UnknownKind(t *testing.T) {
	if _, err := Probe(context.Background(), &fakeDispatcher{}, "ping", ProbeParams{}, nil); !errors.Is(err, ErrUnknownProbe) {
		t.Fatalf("expected ErrUnknownProbe, got %v", err)
	}
}
