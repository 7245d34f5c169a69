package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ab-caller/internal/auth"
	"ab-caller/internal/calls"
	"ab-caller/internal/config"
	"ab-caller/internal/rbac"
	"ab-caller/internal/routing"
	"ab-caller/internal/telephony"
	"ab-caller/pkg/logger"
	"ab-caller/pkg/tracing"

	"gopkg.in/yaml.v3"
)

var (
	errCallFailed  = errors.New("abcall: call failed")
	errLoginFailed = errors.New("abcall: login failed")
)

// CallCmd resolves a group through the routing table and dispatches one call.
type CallCmd struct {
	WebhookFlags
	RouteFlags

	Destination string `long:"destination" required:"true" description:"number to dial"`
	Group       string `long:"group" required:"true" description:"A/B group label"`
	TestID      string `long:"test-id" description:"experiment id"`
	LeadID      string `long:"lead-id" description:"lead id"`

	out io.Writer
}

func (c *CallCmd) Execute(_ []string) error {
	ctx, stop := commandContext(c.LogEnv)
	defer stop()

	routes, err := c.table()
	if err != nil {
		return err
	}
	route, err := routes.Resolve(calls.Group(c.Group))
	if err != nil {
		return err
	}
	d, err := c.dispatcher()
	if err != nil {
		return err
	}

	res := d.MakeCall(ctx, route.Apply(c.Destination, c.TestID, c.LeadID))
	if err := printJSON(c.out, res); err != nil {
		return err
	}
	if !res.Success {
		return errCallFailed
	}
	return nil
}

// BatchCmd dispatches a YAML list of call requests sequentially after a
// single login.
type BatchCmd struct {
	WebhookFlags
	RouteFlags

	File string `long:"file" required:"true" description:"YAML list of call requests"`

	out io.Writer
}

func (c *BatchCmd) Execute(_ []string) error {
	ctx, stop := commandContext(c.LogEnv)
	defer stop()

	reqs, err := readBatchFile(c.File)
	if err != nil {
		return err
	}
	routes, err := c.table()
	if err != nil {
		return err
	}
	for i := range reqs {
		reqs[i] = routes.Complete(reqs[i])
	}
	d, err := c.dispatcher()
	if err != nil {
		return err
	}

	results := d.MakeBatchCalls(ctx, reqs)
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	logger.From(ctx).Info("batch finished", "total", len(results), "failed", failed)
	return printJSON(c.out, results)
}

// LoginCmd runs the login connection test.
type LoginCmd struct {
	WebhookFlags

	out io.Writer
}

func (c *LoginCmd) Execute(_ []string) error {
	ctx, stop := commandContext(c.LogEnv)
	defer stop()

	d, err := c.dispatcher()
	if err != nil {
		return err
	}
	res, err := telephony.Probe(ctx, d, telephony.ProbeLogin, telephony.ProbeParams{}, time.Now)
	if err != nil {
		return err
	}
	if err := printJSON(c.out, res); err != nil {
		return err
	}
	if !res.Success {
		return errLoginFailed
	}
	return nil
}

// TokenCmd mints an access token accepted by the API.
type TokenCmd struct {
	User     string        `long:"user" required:"true" description:"user id placed in the token"`
	Role     string        `long:"role" default:"operator" description:"operator, analyst or admin"`
	Secret   string        `long:"secret" env:"JWT_SECRET" description:"HS256 signing secret"`
	Issuer   string        `long:"issuer" env:"JWT_ISSUER"`
	Audience string        `long:"audience" env:"JWT_AUDIENCE"`
	TTL      time.Duration `long:"ttl" env:"JWT_ACCESS_TTL" default:"15m"`

	out io.Writer
	now func() time.Time
}

func (c *TokenCmd) Execute(_ []string) error {
	if !rbac.IsKnown(c.Role) {
		return fmt.Errorf("abcall: unknown role %q", c.Role)
	}
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:      c.Secret,
		JWTIssuer:      c.Issuer,
		JWTAudience:    c.Audience,
		AccessTokenTTL: c.TTL,
	})
	if err != nil {
		return err
	}
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	issuedAt := now()
	tok, err := m.Issue(issuedAt, c.User, c.Role)
	if err != nil {
		return err
	}
	return printJSON(c.out, map[string]string{
		"accessToken": tok,
		"tokenType":   "Bearer",
		"expiresAt":   calls.FormatTimestamp(issuedAt.Add(c.TTL)),
	})
}

func (w WebhookFlags) dispatcher() (telephony.Dispatcher, error) {
	return telephony.NewWebhookDispatcher(telephony.WebhookOptions{
		BaseURL:       w.BaseURL,
		APIKey:        w.APIKey,
		Client:        tracing.HTTPClient(false, w.Timeout),
		StrictSuccess: w.StrictSuccess,
	})
}

func (r RouteFlags) table() (*routing.Table, error) {
	if r.RoutesPath == "" {
		return routing.DefaultTable(), nil
	}
	return routing.LoadTable(r.RoutesPath)
}

// commandContext cancels on SIGINT/SIGTERM and carries a stderr logger.
func commandContext(env string) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return logger.With(ctx, logger.NewWithWriter(env, os.Stderr)), stop
}

// readBatchFile accepts either a bare YAML list or a document with a
// top-level "requests" list.
func readBatchFile(path string) ([]calls.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("abcall: read batch file: %w", err)
	}
	var list []calls.Request
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc struct {
		Requests []calls.Request `yaml:"requests"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("abcall: parse batch file: %w", err)
	}
	return doc.Requests, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
