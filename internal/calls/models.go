package calls

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Group is the A/B bucket a call is dispatched under.
type Group string

const (
	GroupA Group = "A"
	GroupB Group = "B"
)

func (g Group) Valid() bool {
	return g == GroupA || g == GroupB
}

// TimestampLayout is the ISO-8601 form (millisecond precision, UTC "Z")
// used on the wire and in result metadata.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Request describes one outbound call to dispatch.
//
// Values are immutable once constructed; pass by value.
type Request struct {
	DestinationNumber string `json:"destinationNumber" yaml:"destinationNumber"`
	DerivationID      string `json:"derivationId" yaml:"derivationId"`
	OriginNumber      string `json:"originNumber" yaml:"originNumber"`
	Group             Group  `json:"group" yaml:"group"`
	TestID            string `json:"testId,omitempty" yaml:"testId,omitempty"`
	LeadID            string `json:"leadId,omitempty" yaml:"leadId,omitempty"`
}

var ErrMissingField = errors.New("calls: missing required field")

// Validate reports the first missing required field, wrapping ErrMissingField.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.DestinationNumber) == "":
		return fmt.Errorf("%w: destinationNumber", ErrMissingField)
	case strings.TrimSpace(r.DerivationID) == "":
		return fmt.Errorf("%w: derivationId", ErrMissingField)
	case strings.TrimSpace(r.OriginNumber) == "":
		return fmt.Errorf("%w: originNumber", ErrMissingField)
	case strings.TrimSpace(string(r.Group)) == "":
		return fmt.Errorf("%w: group", ErrMissingField)
	}
	return nil
}

// Result is produced exactly once per Request and never mutated afterwards.
type Result struct {
	Success  bool      `json:"success"`
	CallID   string    `json:"callId,omitempty"`
	Error    string    `json:"error,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

type Metadata struct {
	Group             Group  `json:"group"`
	DerivationID      string `json:"derivationId"`
	DestinationNumber string `json:"destinationNumber"`
	OriginNumber      string `json:"originNumber"`
	Timestamp         string `json:"timestamp"`
}

// Failed builds an unsuccessful result carrying msg.
func Failed(msg string) Result {
	return Result{Success: false, Error: msg}
}

// MetadataFor snapshots the request fields that accompany a result.
func MetadataFor(r Request, at time.Time) *Metadata {
	return &Metadata{
		Group:             r.Group,
		DerivationID:      r.DerivationID,
		DestinationNumber: r.DestinationNumber,
		OriginNumber:      r.OriginNumber,
		Timestamp:         FormatTimestamp(at),
	}
}
