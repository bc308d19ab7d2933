// Package audit captures an append-only trail of compliance decisions,
// settlement notifications and registry mutations. Events are emitted from
// domain logic and fanned out to a store plus an optional kafka topic; the
// decision path never blocks on a sink.
package audit

import (
	"time"

	"custos/pkg/domain"
)

// Kind classifies audit events.
type Kind string

const (
	// KindDecision records compliance and verification decisions. These carry
	// regulatory significance and are retained long-term.
	KindDecision Kind = "decision"

	// KindSettlement records transferred/created/destroyed notifications.
	KindSettlement Kind = "settlement"

	// KindAdmin records role-gated registry and policy mutations.
	KindAdmin Kind = "admin"
)

// Event is one audit trail entry. Keep it transport-agnostic so stores and
// sinks can fan out.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	Action    string         `json:"action"`
	Actor     domain.Address `json:"actor"`
	Subject   domain.Address `json:"subject"`
	Outcome   string         `json:"outcome,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
