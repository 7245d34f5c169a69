package telephony

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"ab-caller/internal/calls"
)

type loginPayload struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

// callPayload is the body the workflow webhook expects. Field names are part
// of the external contract; do not rename.
type callPayload struct {
	DestinationNumber string      `json:"destinationNumber"`
	DerivationID      string      `json:"derivationId"`
	OriginNumber      string      `json:"originNumber"`
	Group             calls.Group `json:"group"`
	TestID            *string     `json:"testId"`
	LeadID            *string     `json:"leadId"`
	Timestamp         string      `json:"timestamp"`
}

func newCallPayload(r calls.Request, timestamp string) callPayload {
	return callPayload{
		DestinationNumber: r.DestinationNumber,
		DerivationID:      r.DerivationID,
		OriginNumber:      r.OriginNumber,
		Group:             r.Group,
		TestID:            optional(r.TestID),
		LeadID:            optional(r.LeadID),
		Timestamp:         timestamp,
	}
}

// optional maps "" to JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// webhookResponse is the subset of the webhook's JSON reply we map. Fields
// are kept raw so a loosely typed reply still yields its call id.
type webhookResponse struct {
	Success json.RawMessage `json:"success"`
	CallID  json.RawMessage `json:"callId"`
	Error   json.RawMessage `json:"error"`
	Message json.RawMessage `json:"message"`
}

// decodeWebhookResponse maps a reply body. A one-element array is unwrapped
// and an empty array counts as an empty body.
func decodeWebhookResponse(data []byte) (webhookResponse, error) {
	var out webhookResponse
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return out, err
		}
		if len(items) == 0 {
			return out, nil
		}
		data = items[0]
	}
	err := json.Unmarshal(data, &out)
	return out, err
}

// success reports the success flag by truthiness. ok is false when the
// field is absent, null or of an unusable type.
func (r webhookResponse) success() (v bool, ok bool) {
	raw := bytes.TrimSpace(r.Success)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		f, err := n.Float64()
		return err == nil && f != 0, err == nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if b, err := strconv.ParseBool(s); err == nil {
			return b, true
		}
		return s != "", true
	}
	return false, false
}

// callID accepts both string and numeric ids.
func (r webhookResponse) callID() string {
	return text(r.CallID)
}

func (r webhookResponse) errorOr(fallback string) string {
	if msg := text(r.Error); msg != "" {
		return msg
	}
	if msg := text(r.Message); msg != "" {
		return msg
	}
	return fallback
}

// text renders a raw JSON scalar: strings unquoted, anything else verbatim.
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}
