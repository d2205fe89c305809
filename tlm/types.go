package tlm

import (
	"fmt"
	"strings"
)

// Command is the operation requested by a transaction.
type Command uint8

const (
	// ReadCommand copies target data into the transaction data buffer.
	ReadCommand Command = iota
	// WriteCommand copies the transaction data buffer into the target.
	WriteCommand
)

// String returns string representation of the command.
func (c Command) String() string {
	switch c {
	case ReadCommand:
		return "READ"
	case WriteCommand:
		return "WRITE"
	default:
		return "unknown"
	}
}

// ParseCommand parses "read" or "write", case-insensitively.
func ParseCommand(name string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "read":
		return ReadCommand, nil
	case "write":
		return WriteCommand, nil
	default:
		return ReadCommand, fmt.Errorf("unknown command %q", name)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Command) UnmarshalText(text []byte) error {
	cmd, err := ParseCommand(string(text))
	if err != nil {
		return err
	}
	*c = cmd

	return nil
}

// ResponseStatus is the outcome of a transaction, set exactly once by the executing target.
type ResponseStatus int8

const (
	// IncompleteResponse is the initial status of every transaction.
	IncompleteResponse ResponseStatus = iota
	// OKResponse indicates successful execution.
	OKResponse
	// AddressErrorResponse indicates that the address is not mapped or out of range.
	AddressErrorResponse
	// BurstErrorResponse indicates an unsupported data length or streaming width.
	BurstErrorResponse
	// ByteEnableErrorResponse indicates that byte enables are not supported.
	ByteEnableErrorResponse
)

// IsOK returns if the status is OKResponse.
func (s ResponseStatus) IsOK() bool { return s == OKResponse }

// IsIncomplete returns if the status is IncompleteResponse.
func (s ResponseStatus) IsIncomplete() bool { return s == IncompleteResponse }

// IsError returns if the status is one of the error responses.
func (s ResponseStatus) IsError() bool { return s != OKResponse && s != IncompleteResponse }

// String returns string representation of the status.
func (s ResponseStatus) String() string {
	switch s {
	case IncompleteResponse:
		return "INCOMPLETE_RESPONSE"
	case OKResponse:
		return "OK_RESPONSE"
	case AddressErrorResponse:
		return "ADDRESS_ERROR_RESPONSE"
	case BurstErrorResponse:
		return "BURST_ERROR_RESPONSE"
	case ByteEnableErrorResponse:
		return "BYTE_ENABLE_ERROR_RESPONSE"
	default:
		return "unknown"
	}
}

// Phase is a step of the four-phase request/response handshake.
type Phase uint8

const (
	// UninitializedPhase is the zero value and is never legal in a transport call.
	UninitializedPhase Phase = iota
	// BeginReq starts the request half of the handshake (forward path).
	BeginReq
	// EndReq ends the request half (backward path), allowing the initiator to issue the next request.
	EndReq
	// BeginResp starts the response half (backward path).
	BeginResp
	// EndResp ends the response half and the transaction (forward path).
	EndResp
	// InternalPhase is private to a target, which uses it to schedule its own execution.
	// It never appears in a transport call.
	InternalPhase
)

// IsForward returns if the phase is legal on the forward path.
func (p Phase) IsForward() bool { return p == BeginReq || p == EndResp }

// IsBackward returns if the phase is legal on the backward path.
func (p Phase) IsBackward() bool { return p == EndReq || p == BeginResp }

// String returns string representation of the phase.
func (p Phase) String() string {
	switch p {
	case UninitializedPhase:
		return "UNINITIALIZED_PHASE"
	case BeginReq:
		return "BEGIN_REQ"
	case EndReq:
		return "END_REQ"
	case BeginResp:
		return "BEGIN_RESP"
	case EndResp:
		return "END_RESP"
	case InternalPhase:
		return "INTERNAL"
	default:
		return "unknown"
	}
}

// SyncResult is returned by every non-blocking transport call.
type SyncResult uint8

const (
	// Accepted means the callee queued the call; a matching call in the opposite direction will follow.
	Accepted SyncResult = iota
	// Updated means the callee advanced the phase and delay; the caller must act on the returned phase.
	Updated
	// Completed means the transaction finished synchronously; no further phase transitions occur.
	Completed
)

// String returns string representation of the result.
func (r SyncResult) String() string {
	switch r {
	case Accepted:
		return "ACCEPTED"
	case Updated:
		return "UPDATED"
	case Completed:
		return "COMPLETED"
	default:
		return "unknown"
	}
}
