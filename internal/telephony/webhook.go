package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ab-caller/internal/calls"
	"ab-caller/pkg/logger"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	contentTypeJSON     = "application/json"

	// maxResponseBytes caps how much of a webhook reply we read.
	maxResponseBytes = 1 << 20
)

var (
	ErrBaseURLRequired = errors.New("telephony: webhook base url is required")
	ErrAPIKeyRequired  = errors.New("telephony: webhook api key is required")
	ErrWebhookStatus   = errors.New("telephony: webhook returned non-success status")
)

// WebhookOptions configures a WebhookDispatcher.
type WebhookOptions struct {
	// BaseURL is the workflow webhook. Login goes to BaseURL + "/login".
	BaseURL string
	APIKey  string

	// Client defaults to an *http.Client with Timeout.
	Client  HTTPClient
	Timeout time.Duration

	// StrictSuccess treats a reply without a "success" field as a failure.
	// By default a missing field means success.
	StrictSuccess bool

	Now func() time.Time
}

// WebhookDispatcher places calls through an external workflow webhook
// (for example an n8n flow that drives the telephony provider).
type WebhookDispatcher struct {
	callURL  string
	loginURL string
	apiKey   string
	client   HTTPClient
	strict   bool
	now      func() time.Time
}

func NewWebhookDispatcher(opts WebhookOptions) (*WebhookDispatcher, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, ErrBaseURLRequired
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("telephony: invalid webhook base url %q", base)
	}
	if opts.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	base = strings.TrimRight(base, "/")
	return &WebhookDispatcher{
		callURL:  base,
		loginURL: base + "/login",
		apiKey:   opts.APIKey,
		client:   client,
		strict:   opts.StrictSuccess,
		now:      now,
	}, nil
}

func (d *WebhookDispatcher) Name() string { return "webhook" }

// Login authenticates against the webhook. It never fails past its boundary.
func (d *WebhookDispatcher) Login(ctx context.Context) (res LoginResult) {
	defer func() {
		if p := recover(); p != nil {
			logger.From(ctx).Error("webhook login panicked", "panic", p)
			res = LoginResult{Error: fmt.Sprintf("login panicked: %v", p)}
		}
	}()

	body := loginPayload{Action: "login", Timestamp: calls.FormatTimestamp(d.now())}

	var out webhookResponse
	if err := d.post(ctx, d.loginURL, body, &out); err != nil {
		logger.From(ctx).Warn("webhook login failed", "err", err)
		return LoginResult{Error: err.Error()}
	}
	if !d.succeeded(out) {
		return LoginResult{Error: out.errorOr("login rejected by webhook")}
	}
	return LoginResult{Success: true}
}

// MakeCall authenticates, then posts one call request to the webhook.
// The webhook is never contacted when login fails.
func (d *WebhookDispatcher) MakeCall(ctx context.Context, req calls.Request) (res calls.Result) {
	defer func() {
		if p := recover(); p != nil {
			logger.From(ctx).Error("webhook call panicked", "panic", p, "group", req.Group)
			res = calls.Failed(fmt.Sprintf("call panicked: %v", p))
		}
	}()

	if err := req.Validate(); err != nil {
		return calls.Failed(err.Error())
	}

	login := d.Login(ctx)
	if !login.Success {
		return loginFailed(login)
	}
	return d.send(ctx, req)
}

// MakeBatchCalls logs in once up front, then dispatches each request in
// order through MakeCall. A failed login fails every item with the same
// message.
func (d *WebhookDispatcher) MakeBatchCalls(ctx context.Context, reqs []calls.Request) []calls.Result {
	out := make([]calls.Result, 0, len(reqs))

	login := d.Login(ctx)
	if !login.Success {
		for range reqs {
			out = append(out, loginFailed(login))
		}
		return out
	}

	for _, r := range reqs {
		out = append(out, d.MakeCall(ctx, r))
	}
	return out
}

func (d *WebhookDispatcher) send(ctx context.Context, req calls.Request) calls.Result {
	log := logger.From(ctx)
	payload := newCallPayload(req, calls.FormatTimestamp(d.now()))

	var out webhookResponse
	if err := d.post(ctx, d.callURL, payload, &out); err != nil {
		log.Warn("webhook call failed", "group", req.Group, "derivation_id", req.DerivationID, "err", err)
		return calls.Failed(err.Error())
	}

	res := calls.Result{
		Success:  d.succeeded(out),
		CallID:   out.callID(),
		Metadata: calls.MetadataFor(req, d.now()),
	}
	if !res.Success {
		res.Error = out.errorOr("webhook reported failure")
	}
	log.Info("webhook call dispatched", "group", req.Group, "call_id", res.CallID, "success", res.Success)
	return res
}

func (d *WebhookDispatcher) succeeded(r webhookResponse) bool {
	v, ok := r.success()
	if !ok {
		return !d.strict
	}
	return v
}

// post sends body as JSON and decodes a JSON reply into out.
// An empty reply body leaves out untouched.
func (d *WebhookDispatcher) post(ctx context.Context, target string, body any, out *webhookResponse) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAuthorization, "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s", ErrWebhookStatus, resp.Status)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	r, err := decodeWebhookResponse(data)
	if err != nil {
		return fmt.Errorf("decode webhook response: %w", err)
	}
	*out = r
	return nil
}

func loginFailed(l LoginResult) calls.Result {
	return calls.Failed("Login failed: " + l.Error)
}
