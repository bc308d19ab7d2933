package sentinel

import "errors"

// Sentinel errors for infrastructure and precondition facts. Stores and
// services return these (optionally wrapped) so transport can translate them
// into status codes without string matching.
//
// These represent factual states, not policy outcomes:
// - ErrNotFound: target entity does not exist
// - ErrExists: target entity already exists
// - ErrUnauthorized: caller lacks the role or key purpose the operation needs
// - ErrInvalidSignature: signature malformed or recovers to an unauthorized signer
// - ErrInvalidArgument: zero or mismatched argument where a nonzero is required
// - ErrUnavailable: backing service temporarily unavailable
//
// Compliance policy results are boolean decisions, never errors (the ledger
// acts on them); see internal/compliance.
var (
	ErrNotFound         = errors.New("not found")
	ErrExists           = errors.New("already exists")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnavailable      = errors.New("unavailable")
)
