package telephony

import (
	"context"
	"net/http"

	"ab-caller/internal/calls"
)

// Dispatcher defines the provider-agnostic interface used by handlers and the CLI.
//
// Rules:
//   - Operations never return errors or panic; every failure is folded into
//     the returned result with a human-readable message.
//   - No session is kept between operations; each one authenticates again.
//   - Batch dispatch is sequential and preserves input order.
type Dispatcher interface {
	Name() string

	Login(ctx context.Context) LoginResult
	MakeCall(ctx context.Context, req calls.Request) calls.Result
	MakeBatchCalls(ctx context.Context, reqs []calls.Request) []calls.Result
}

// LoginResult reports whether the webhook accepted our credentials.
type LoginResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HTTPClient is the subset of *http.Client the webhook dispatcher needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
