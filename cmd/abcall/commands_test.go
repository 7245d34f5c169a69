package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ab-caller/internal/auth"
	"ab-caller/internal/calls"
	"ab-caller/internal/config"
)

type recordedWebhook struct {
	mu     sync.Mutex
	logins int
	calls  []map[string]any
}

func newWebhook(t *testing.T, loginOK bool) (*recordedWebhook, string) {
	t.Helper()
	rec := &recordedWebhook{}
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/ab-test-call/login", func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.logins++
		rec.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"success": loginOK})
	})
	mux.HandleFunc("/webhook/ab-test-call", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec.mu.Lock()
		rec.calls = append(rec.calls, body)
		n := len(rec.calls)
		rec.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "callId": "call-" + string(rune('0'+n))})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return rec, srv.URL + "/webhook/ab-test-call"
}

func TestRun_CallResolvesGroup(t *testing.T) {
	rec, url := newWebhook(t, true)
	var out bytes.Buffer

	err := run([]string{"call", "--webhook-url", url, "--api-key", "k",
		"--destination", "34661216995", "--group", "B", "--test-id", "t1", "--lead-id", "l1"}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.logins != 1 || len(rec.calls) != 1 {
		t.Fatalf("expected one login and one call, got %d/%d", rec.logins, len(rec.calls))
	}
	if rec.calls[0]["derivationId"] != "landline-derivation-002" || rec.calls[0]["originNumber"] != "34604579589" {
		t.Fatalf("unexpected payload %v", rec.calls[0])
	}

	var res calls.Result
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if !res.Success || res.CallID != "call-1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRun_CallFailsWhenLoginRejected(t *testing.T) {
	rec, url := newWebhook(t, false)
	var out bytes.Buffer

	err := run([]string{"call", "--webhook-url", url, "--api-key", "k", "--destination", "1", "--group", "A"}, &out)
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(rec.calls) != 0 {
		t.Fatalf("webhook must not be called after failed login")
	}
	if !strings.Contains(out.String(), "Login failed") {
		t.Fatalf("expected login failure in output, got %q", out.String())
	}
}

func TestRun_CallRejectsUnknownGroup(t *testing.T) {
	_, url := newWebhook(t, true)
	if err := run([]string{"call", "--webhook-url", url, "--api-key", "k", "--destination", "1", "--group", "C"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown group")
	}
}

func TestRun_BatchCompletesRoutesAndKeepsOrder(t *testing.T) {
	rec, url := newWebhook(t, true)
	path := filepath.Join(t.TempDir(), "batch.yaml")
	doc := `
- destinationNumber: "111"
  group: A
  testId: exp
  leadId: a
- destinationNumber: "222"
  group: B
  testId: exp
  leadId: b
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out bytes.Buffer

	if err := run([]string{"batch", "--webhook-url", url, "--api-key", "k", "--file", path}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	// One login up front, then one per dispatched call.
	if rec.logins != 3 {
		t.Fatalf("expected 3 logins, got %d", rec.logins)
	}
	if len(rec.calls) != 2 || rec.calls[0]["destinationNumber"] != "111" || rec.calls[1]["derivationId"] != "landline-derivation-002" {
		t.Fatalf("unexpected calls %v", rec.calls)
	}

	var results []calls.Result
	if err := json.Unmarshal(out.Bytes(), &results); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(results) != 2 || results[0].CallID != "call-1" || results[1].CallID != "call-2" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestReadBatchFile_AcceptsRequestsDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	doc := "requests:\n  - {destinationNumber: '1', group: A}\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	reqs, err := readBatchFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(reqs) != 1 || reqs[0].Group != calls.GroupA {
		t.Fatalf("unexpected requests %+v", reqs)
	}
}

func TestRun_LoginChecksWebhook(t *testing.T) {
	_, url := newWebhook(t, true)
	var out bytes.Buffer

	if err := run([]string{"login", "--webhook-url", url, "--api-key", "k"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "webhook_connected") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRun_TokenIsAcceptedByManager(t *testing.T) {
	var out bytes.Buffer

	err := run([]string{"token", "--user", "u1", "--role", "analyst", "--secret", "s3cret", "--ttl", "1h"}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "s3cret"})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	claims, err := m.Verify(got["accessToken"], time.Now())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u1" || claims.Role != "analyst" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestRun_TokenRejectsUnknownRole(t *testing.T) {
	if err := run([]string{"token", "--user", "u1", "--role", "root", "--secret", "s"}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
