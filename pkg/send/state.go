package send

import (
	"errors"
	"fmt"
)

// State is a step of the send flow.
type State string

const (
	StateIdle                    State = "idle"
	StateCheckingAllowance       State = "checking_allowance"
	StateApproving               State = "approving"
	StateAwaitingApprovalConfirm State = "awaiting_approval_confirm"
	StateRelaying                State = "relaying"
	StateSubmitted               State = "submitted"
	StateFailed                  State = "failed"
)

// Label is the text shown to users for the state.
func (s State) Label() string {
	switch s {
	case StateIdle:
		return "Ready"
	case StateCheckingAllowance:
		return "Checking allowance"
	case StateApproving:
		return "Approving"
	case StateAwaitingApprovalConfirm:
		return "Waiting for approval"
	case StateRelaying:
		return "Depositing"
	case StateSubmitted:
		return "Submitted"
	case StateFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// Terminal states are where a send rests; a new send starts from them as
// it would from idle.
func (s State) Terminal() bool {
	return s == StateIdle || s == StateSubmitted || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:                    {StateCheckingAllowance, StateRelaying, StateFailed},
	StateCheckingAllowance:       {StateApproving, StateRelaying, StateFailed},
	StateApproving:               {StateAwaitingApprovalConfirm, StateFailed},
	StateAwaitingApprovalConfirm: {StateRelaying, StateFailed},
	StateRelaying:                {StateSubmitted, StateFailed},
}

// CanTransition reports whether the flow may move from one state to another.
func CanTransition(from, to State) bool {
	if from == StateSubmitted || from == StateFailed {
		from = StateIdle
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ErrNoSigner          = errors.New("no wallet connected")
	ErrApprovalReverted  = errors.New("approval transaction reverted")
	ErrInvalidAmount     = errors.New("amount must be positive")
	errInvalidTransition = errors.New("invalid send state transition")
)

// SendError is a failed send. Stage is the state the flow was in when it
// failed; transactions submitted before that stay submitted.
type SendError struct {
	Stage State
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed while %s: %v", e.Stage.Label(), e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
