package tlm

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/arloliu/go-tlm/logger"
	"github.com/arloliu/go-tlm/sim"
)

// ErrProtocolViolation is matched by every fatal protocol error.
var ErrProtocolViolation = errors.New("protocol violation")

var (
	// ErrIllegalPhase indicates a phase that is not legal for the receiver's current state or call direction.
	ErrIllegalPhase = fmt.Errorf("%w: illegal phase", ErrProtocolViolation)

	// ErrExclusion indicates a broken request-side or response-side exclusion rule.
	ErrExclusion = fmt.Errorf("%w: exclusion rule violated", ErrProtocolViolation)

	// ErrRefCount indicates a release that would drive the reference count below zero.
	ErrRefCount = fmt.Errorf("%w: reference count below zero", ErrProtocolViolation)

	// ErrUseAfterFree indicates use of a transaction that was already returned to its pool.
	ErrUseAfterFree = fmt.Errorf("%w: transaction used after release to pool", ErrProtocolViolation)

	// ErrRoutingMismatch indicates a backward call arriving on a port other than the one recorded at admission.
	ErrRoutingMismatch = fmt.Errorf("%w: routing mismatch", ErrProtocolViolation)

	// ErrPolicyInconsistent indicates that a target received a call its configured policy cannot handle.
	ErrPolicyInconsistent = fmt.Errorf("%w: inconsistent target policy", ErrProtocolViolation)

	// ErrUnbound indicates a transport call through a socket that has not been bound.
	ErrUnbound = fmt.Errorf("%w: socket not bound", ErrProtocolViolation)

	// ErrIncompleteResponse indicates a transaction that finished without a response status.
	ErrIncompleteResponse = fmt.Errorf("%w: incomplete response status", ErrProtocolViolation)

	// ErrTimingOrder indicates phases of one transaction annotated to occur earlier than a previous phase.
	ErrTimingOrder = fmt.Errorf("%w: annotated time went backwards", ErrProtocolViolation)

	// ErrDeprecatedTransition indicates COMPLETED returned in response to BEGIN_RESP.
	ErrDeprecatedTransition = fmt.Errorf("%w: deprecated transition", ErrProtocolViolation)
)

var (
	// ErrAlreadyBound indicates that a socket was bound twice.
	ErrAlreadyBound = errors.New("socket already bound")

	// ErrNilPort indicates that a nil port was passed to Bind.
	ErrNilPort = errors.New("port is nil")

	// ErrResponse is matched by every transport/response error reported by an initiator.
	ErrResponse = errors.New("transaction returned with error response")
)

// ProtocolError carries the full context of a fatal protocol violation.
type ProtocolError struct {
	// Participant is the name of the component that detected the violation.
	Participant string
	// Phase is the phase being processed when the violation was detected.
	Phase Phase
	// Time is the simulated time of detection.
	Time sim.Time
	// TxnID identifies the transaction, or is uuid.Nil when not applicable.
	TxnID uuid.UUID
	// Err is one of the protocol sentinel errors.
	Err error
	// Detail is a human readable description.
	Detail string
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("%s @%s [%s]: %v", e.Participant, e.Time, e.Phase, e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.TxnID != uuid.Nil {
		msg += " (txn " + e.TxnID.String() + ")"
	}

	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ResponseError is a transport error observed by an initiator through the response status.
type ResponseError struct {
	Participant string
	Time        sim.Time
	TxnID       uuid.UUID
	Command     Command
	Address     uint64
	Status      ResponseStatus
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s @%s: %s 0x%08x: %s (txn %s)",
		e.Participant, e.Time, e.Command, e.Address, e.Status, e.TxnID)
}

func (e *ResponseError) Unwrap() error { return ErrResponse }

// NewResponseError builds a ResponseError from the current state of trans.
func NewResponseError(participant string, now sim.Time, trans *Transaction) *ResponseError {
	return &ResponseError{
		Participant: participant,
		Time:        now,
		TxnID:       trans.ID(),
		Command:     trans.Command(),
		Address:     trans.Address(),
		Status:      trans.ResponseStatus(),
	}
}

// Fatal logs a protocol violation and halts the simulation.
//
// trans may be nil. Fatal never returns.
func Fatal(l logger.Logger, participant string, now sim.Time, trans *Transaction, phase Phase, err error, detail string) {
	perr := &ProtocolError{
		Participant: participant,
		Phase:       phase,
		Time:        now,
		Err:         err,
		Detail:      detail,
	}
	if trans != nil {
		perr.TxnID = trans.ID()
	}

	if l == nil {
		l = logger.GetLogger()
	}
	l.Error("protocol violation",
		"participant", participant, "time", now, "phase", phase, "txn", perr.TxnID,
		"error", err, "detail", detail,
	)

	sim.Halt(perr)
}
