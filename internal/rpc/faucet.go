package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
)

// ========================================
// Faucet handlers
// ========================================

// AirdropParams is the parameters for faucet_airdrop.
type AirdropParams struct {
	To       pubkey.PublicKey `json:"to"`
	Lamports uint64           `json:"lamports"`
}

func (s *Server) faucetAirdrop(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.faucet == nil {
		return nil, errFaucetDisabled
	}
	var p AirdropParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.To.IsZero() || p.Lamports == 0 {
		return nil, fmt.Errorf("%w: to and lamports are required", errInvalidParams)
	}

	if err := s.faucet.Airdrop(ctx, p.To, p.Lamports); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":  true,
		"to":       p.To,
		"lamports": p.Lamports,
	}, nil
}

// CreateMintParams is the parameters for faucet_createMint.
type CreateMintParams struct {
	Decimals uint8 `json:"decimals"`
}

func (s *Server) faucetCreateMint(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.faucet == nil {
		return nil, errFaucetDisabled
	}
	var p CreateMintParams
	if len(params) > 0 {
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
	}

	mint, err := s.faucet.CreateMint(ctx, p.Decimals)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"mint":      mint,
		"decimals":  p.Decimals,
		"authority": s.faucet.Authority(),
	}, nil
}

// MintToParams is the parameters for faucet_mintTo.
type MintToParams struct {
	Mint   pubkey.PublicKey `json:"mint"`
	Owner  pubkey.PublicKey `json:"owner"`
	Amount uint64           `json:"amount"`
}

func (s *Server) faucetMintTo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	if s.faucet == nil {
		return nil, errFaucetDisabled
	}
	var p MintToParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Mint.IsZero() || p.Owner.IsZero() {
		return nil, fmt.Errorf("%w: mint and owner are required", errInvalidParams)
	}

	ata, err := s.faucet.MintTo(ctx, p.Mint, p.Owner, p.Amount)
	if err != nil {
		return nil, notFound(err)
	}
	return map[string]interface{}{
		"token_account": ata,
		"mint":          p.Mint,
		"owner":         p.Owner,
		"amount":        p.Amount,
	}, nil
}
