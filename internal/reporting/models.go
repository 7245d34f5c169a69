package reporting

import "ab-caller/internal/calls"

// GroupStats summarizes dispatches for one A/B group.
type GroupStats struct {
	Group       calls.Group `json:"group"`
	Attempted   int         `json:"attempted"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	SuccessRate float64     `json:"successRate"`
}

// TestStats summarizes dispatches for one test across its groups.
type TestStats struct {
	TestID string       `json:"testId"`
	Total  int          `json:"total"`
	Groups []GroupStats `json:"groups"`
}
