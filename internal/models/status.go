package models

// Status is the booking lifecycle state. Values outside the three known
// constants can appear when decoding untrusted storage; such records are
// displayed defensively and never transition.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no automatic transition leaves this state.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// CanTransitionTo encodes the state machine: pending may become confirmed or
// cancelled, confirmed may still be cancelled, cancelled is final. A status
// never reverts to pending and unknown statuses never move.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() || next == StatusPending {
		return false
	}
	switch s {
	case StatusPending:
		return true
	case StatusConfirmed:
		return next == StatusCancelled
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}
