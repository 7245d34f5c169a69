package routing

import "ab-caller/internal/calls"

// Route is the provider-agnostic dialing configuration for one A/B group.
//
// It carries only what the dispatcher needs to build a call request:
// which derivation the webhook should use and which number to present.
type Route struct {
	Group        calls.Group `json:"group" yaml:"group"`
	DerivationID string      `json:"derivationId" yaml:"derivationId"`
	OriginNumber string      `json:"originNumber" yaml:"originNumber"`

	// Strategy is informational only (e.g. "mobile-first").
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

// Apply builds a call request for destination under this route.
func (r Route) Apply(destination, testID, leadID string) calls.Request {
	return calls.Request{
		DestinationNumber: destination,
		DerivationID:      r.DerivationID,
		OriginNumber:      r.OriginNumber,
		Group:             r.Group,
		TestID:            testID,
		LeadID:            leadID,
	}
}
