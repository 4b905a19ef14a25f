package types

import "time"

// TerminationReason describes why a session reached a terminal state.
type TerminationReason string

const (
	// ReasonBudgetExhausted means the configured turn budget was consumed.
	// This is an expected end state, not a fault.
	ReasonBudgetExhausted TerminationReason = "BudgetExhausted"
	// ReasonMarkerReached means an utterance contained a configured
	// termination marker.
	ReasonMarkerReached TerminationReason = "MarkerReached"
	// ReasonFailed means orchestration could not proceed (generation retry
	// ceiling exceeded, no eligible speaker, or cancellation).
	ReasonFailed TerminationReason = "Failed"
)

// TurnEvent is one successfully completed turn, emitted in order to the
// presentation layer.
type TurnEvent struct {
	Speaker   string    `json:"speaker"`
	Content   string    `json:"content"`
	Seq       int       `json:"sequence_number"`
	Timestamp time.Time `json:"timestamp"`
}

// TerminationEvent is the single final event of every session stream,
// emitted exactly once even on fatal failure.
type TerminationEvent struct {
	Reason         TerminationReason `json:"reason"`
	FinalTurnCount int               `json:"final_turn_count"`
	// Detail carries the failure classification when Reason is Failed.
	Detail string `json:"detail,omitempty"`
}
