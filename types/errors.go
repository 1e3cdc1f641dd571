package types

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrTransport         = errors.New("transport error")
	ErrUnsupportedMethod = errors.New("unsupported method")
	ErrTimeout           = errors.New("timeout")
	ErrStateUnavailable  = errors.New("historical state unavailable")

	ErrNotFound            = errors.New("not found")
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrEventNotFound       = fmt.Errorf("MessagePassed event %w", ErrNotFound)
	ErrGameNotFound        = fmt.Errorf("dispute game %w", ErrNotFound)

	ErrIntegrity          = errors.New("integrity check failed")
	ErrOutputRootMismatch = fmt.Errorf("output root mismatch: %w", ErrIntegrity)

	ErrNoCoveringGame      = errors.New("no dispute game covers the withdrawal block")
	ErrAlreadyProven       = errors.New("withdrawal already proven")
	ErrProofUnavailable    = errors.New("storage proof unavailable")
	ErrProofRejected       = errors.New("proof rejected")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrChainMismatch       = errors.New("chain id mismatch")
)

// JSON-RPC error code for a method the node does not expose.
const methodNotFoundCode = -32601

// RPCError is a failed remote call. Kind is one of ErrTransport,
// ErrUnsupportedMethod, ErrStateUnavailable, ErrTimeout or ErrNotFound.
type RPCError struct {
	Method string
	Kind   error
	Err    error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Method, e.Kind, e.Err)
}

func (e *RPCError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// ClassifyRPCError wraps err into an *RPCError for method. A nil err stays
// nil, and errors that are already classified or integrity failures pass
// through unchanged.
func ClassifyRPCError(method string, err error) error {
	if err == nil {
		return nil
	}
	var already *RPCError
	if errors.As(err, &already) || errors.Is(err, ErrIntegrity) {
		return err
	}
	return &RPCError{Method: method, Kind: rpcErrorKind(err), Err: err}
}

func rpcErrorKind(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, ethereum.NotFound):
		return ErrNotFound
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == methodNotFoundCode {
		return ErrUnsupportedMethod
	}
	msg := strings.ToLower(err.Error())
	// Pruned nodes serve the method but not the block asked for.
	for _, s := range []string{"missing trie node", "header not found", "historical state", "state not available", "state is not available"} {
		if strings.Contains(msg, s) {
			return ErrStateUnavailable
		}
	}
	for _, s := range []string{"method not found", "not supported", "does not exist", "not available"} {
		if strings.Contains(msg, s) {
			return ErrUnsupportedMethod
		}
	}
	return ErrTransport
}

// Stage names a pipeline step.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageLocate   Stage = "locate"
	StageVerify   Stage = "verify"
	StageAssemble Stage = "assemble"
	StageSubmit   Stage = "submit"
)

// StageError records which pipeline step failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RevertError is a simulation or broadcast the portal reverted.
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: execution reverted", ErrProofRejected)
	}
	return fmt.Sprintf("%v: execution reverted: %s", ErrProofRejected, e.Reason)
}

func (e *RevertError) Unwrap() error {
	return ErrProofRejected
}

// IsTransient reports whether err is an infrastructure failure that a later
// attempt may not hit.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrTimeout)
}

// IsExpectedOutcome reports whether err is a result the caller acts on
// rather than a failure.
func IsExpectedOutcome(err error) bool {
	return errors.Is(err, ErrAlreadyProven) || errors.Is(err, ErrNoCoveringGame)
}
