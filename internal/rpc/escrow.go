package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klingon-exchange/klingon-escrow/internal/escrow"
	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
)

// ========================================
// Escrow handlers
// ========================================

// DeriveParams is the parameters for escrow_derive.
type DeriveParams struct {
	Maker pubkey.PublicKey `json:"maker"`
	Seed  uint64           `json:"seed"`
	MintA pubkey.PublicKey `json:"mint_a"`
}

func (s *Server) escrowDerive(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p DeriveParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Maker.IsZero() || p.MintA.IsZero() {
		return nil, fmt.Errorf("%w: maker and mint_a are required", errInvalidParams)
	}

	addrs, err := s.program.Derive(p.Maker, p.Seed, p.MintA)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

// SubmitParams is the parameters for escrow_submit: a transaction signed by
// the client. The signature covers the id, signer and instruction.
type SubmitParams struct {
	Transaction *escrow.Transaction `json:"transaction"`
}

func (s *Server) escrowSubmit(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p SubmitParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Transaction == nil {
		return nil, fmt.Errorf("%w: transaction is required", errInvalidParams)
	}

	return s.program.Execute(ctx, p.Transaction)
}

// EscrowParams names one escrow.
type EscrowParams struct {
	Escrow pubkey.PublicKey `json:"escrow"`
}

// EscrowResult is the response for escrow_get.
type EscrowResult struct {
	*escrow.Escrow
	Vault       pubkey.PublicKey `json:"vault"`
	VaultAmount uint64           `json:"vault_amount"`
}

func (s *Server) escrowGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p EscrowParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	rec, vault, err := s.program.GetWithVault(ctx, p.Escrow)
	if err != nil {
		return nil, err
	}
	return &EscrowResult{Escrow: rec, Vault: vault.Address, VaultAmount: vault.Amount}, nil
}

// ListParams is the parameters for escrow_list. An empty maker lists all.
type ListParams struct {
	Maker pubkey.PublicKey `json:"maker"`
}

// ListResult is the response for escrow_list.
type ListResult struct {
	Escrows []*escrow.Escrow `json:"escrows"`
	Count   int              `json:"count"`
}

func (s *Server) escrowList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p ListParams
	if len(params) > 0 {
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
	}

	var (
		list []*escrow.Escrow
		err  error
	)
	if p.Maker.IsZero() {
		list, err = s.program.List(ctx)
	} else {
		list, err = s.program.ListByMaker(ctx, p.Maker)
	}
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*escrow.Escrow{}
	}
	return &ListResult{Escrows: list, Count: len(list)}, nil
}

// HistoryResult is the response for escrow_history.
type HistoryResult struct {
	Receipts []*escrow.Receipt `json:"receipts"`
	Count    int               `json:"count"`
}

func (s *Server) escrowHistory(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p EscrowParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	receipts, err := s.program.History(ctx, p.Escrow)
	if err != nil {
		return nil, err
	}
	if receipts == nil {
		receipts = []*escrow.Receipt{}
	}
	return &HistoryResult{Receipts: receipts, Count: len(receipts)}, nil
}
