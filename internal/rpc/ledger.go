package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klingon-exchange/klingon-escrow/internal/escrow"
	"github.com/klingon-exchange/klingon-escrow/internal/ledger"
	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
	"github.com/klingon-exchange/klingon-escrow/internal/storage"
	"github.com/klingon-exchange/klingon-escrow/pkg/helpers"
)

// ========================================
// Ledger queries
// ========================================

// AccountParams names one ledger account.
type AccountParams struct {
	Address pubkey.PublicKey `json:"address"`
}

func (s *Server) ledgerGetAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p AccountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	var acct *storage.Account
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		var err error
		acct, err = tx.Account(p.Address)
		return err
	})
	if err != nil {
		return nil, notFound(err)
	}
	return acct, nil
}

// BalanceParams is the parameters for ledger_getBalance. Without a mint the
// native lamport balance is returned.
type BalanceParams struct {
	Wallet pubkey.PublicKey `json:"wallet"`
	Mint   pubkey.PublicKey `json:"mint"`
}

// BalanceResult is the response for ledger_getBalance.
type BalanceResult struct {
	Wallet    pubkey.PublicKey `json:"wallet"`
	Mint      pubkey.PublicKey `json:"mint"`
	Amount    uint64           `json:"amount"`
	Decimals  uint8            `json:"decimals"`
	Formatted string           `json:"formatted"`
}

func (s *Server) ledgerGetBalance(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p BalanceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Wallet.IsZero() {
		return nil, fmt.Errorf("%w: wallet is required", errInvalidParams)
	}

	result := &BalanceResult{Wallet: p.Wallet, Mint: p.Mint}
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		if p.Mint.IsZero() {
			result.Decimals = helpers.LamportDecimals
			n, err := tx.Lamports(p.Wallet)
			result.Amount = n
			return err
		}
		m, err := tx.Mint(p.Mint)
		if err != nil {
			return err
		}
		result.Decimals = m.Decimals
		result.Amount, err = tx.Balance(p.Wallet, p.Mint)
		return err
	})
	if err != nil {
		return nil, notFound(err)
	}
	result.Formatted = helpers.FormatAmount(result.Amount, result.Decimals)
	return result, nil
}

func (s *Server) ledgerGetTokenAccount(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p AccountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	var ta *storage.TokenAccount
	err := s.ledger.View(ctx, func(tx *ledger.Tx) error {
		var err error
		ta, err = tx.TokenAccount(p.Address)
		return err
	})
	if err != nil {
		return nil, notFound(err)
	}
	return ta, nil
}

// notFound reports missing ledger accounts with the not-found code.
func notFound(err error) error {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return fmt.Errorf("%w: %w", escrow.ErrNotFound, err)
	}
	return err
}
