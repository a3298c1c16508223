package rpc

import (
	"errors"

	"github.com/klingon-exchange/klingon-escrow/internal/escrow"
	"github.com/klingon-exchange/klingon-escrow/internal/faucet"
)

// Standard JSON-RPC error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Application error codes.
const (
	Unauthorized        = -32001
	InsufficientBalance = -32002
	NotFound            = -32003
	AddressInUse        = -32004
	InvalidAccount      = -32005
	FaucetDisabled      = -32010
	FaucetLimit         = -32011
)

var (
	errInvalidParams  = errors.New("invalid params")
	errFaucetDisabled = errors.New("faucet is disabled")
)

// errorCode maps a handler error to its JSON-RPC code and a short reason
// placed in the error data.
func errorCode(err error) (int, interface{}) {
	switch {
	case errors.Is(err, errInvalidParams), errors.Is(err, escrow.ErrInvalidInstruction),
		errors.Is(err, faucet.ErrInvalidOwner):
		return InvalidParams, nil
	case errors.Is(err, errFaucetDisabled):
		return FaucetDisabled, nil
	case errors.Is(err, faucet.ErrLimitExceeded):
		return FaucetLimit, nil
	}

	for _, c := range escrowCodes {
		if errors.Is(err, c.target) {
			return c.code, escrow.Reason(err)
		}
	}
	return InternalError, nil
}

var escrowCodes = []struct {
	target error
	code   int
}{
	{escrow.ErrUnauthorized, Unauthorized},
	{escrow.ErrInsufficientBalance, InsufficientBalance},
	{escrow.ErrNotFound, NotFound},
	{escrow.ErrAddressInUse, AddressInUse},
	{escrow.ErrInvalidAccount, InvalidAccount},
}
