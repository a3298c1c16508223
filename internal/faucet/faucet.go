// Package faucet issues development funds: native lamports and tokens of
// mints it controls. It is disabled unless configured.
package faucet

import (
	"context"
	"errors"
	"fmt"

	"github.com/klingon-exchange/klingon-escrow/internal/config"
	"github.com/klingon-exchange/klingon-escrow/internal/ledger"
	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
	"github.com/klingon-exchange/klingon-escrow/pkg/logging"
)

var (
	// ErrLimitExceeded is returned for airdrops above the configured cap.
	ErrLimitExceeded = errors.New("faucet: airdrop limit exceeded")

	// ErrInvalidOwner is returned when tokens would go to an address that
	// is not a user wallet, such as a program-derived escrow record.
	ErrInvalidOwner = errors.New("faucet: owner is not a wallet")
)

// Faucet signs with a single authority key that owns every mint it creates.
type Faucet struct {
	ledger    *ledger.Ledger
	authority *pubkey.Keypair
	limit     uint64
	log       *logging.Logger
}

// Config holds faucet configuration.
type Config struct {
	Ledger       *ledger.Ledger
	Authority    *pubkey.Keypair
	AirdropLimit uint64
}

// New creates a faucet.
func New(cfg *Config) *Faucet {
	limit := cfg.AirdropLimit
	if limit == 0 {
		limit = config.DefaultAirdropLimit
	}
	return &Faucet{
		ledger:    cfg.Ledger,
		authority: cfg.Authority,
		limit:     limit,
		log:       logging.GetDefault().Component("faucet"),
	}
}

// Authority returns the faucet's public key, the mint authority of its
// mints.
func (f *Faucet) Authority() pubkey.PublicKey {
	return f.authority.PublicKey()
}

// Airdrop credits lamports to a wallet.
func (f *Faucet) Airdrop(ctx context.Context, to pubkey.PublicKey, lamports uint64) error {
	if lamports == 0 {
		return fmt.Errorf("airdrop amount must be positive")
	}
	if lamports > f.limit {
		return fmt.Errorf("%w: %d > %d", ErrLimitExceeded, lamports, f.limit)
	}
	err := f.ledger.Update(ctx, nil, func(tx *ledger.Tx) error {
		return tx.Airdrop(to, lamports)
	})
	if err != nil {
		return err
	}
	f.log.Info("Airdrop", "to", to, "lamports", lamports)
	return nil
}

// CreateMint creates a new mint whose authority is the faucet.
func (f *Faucet) CreateMint(ctx context.Context, decimals uint8) (pubkey.PublicKey, error) {
	mint, err := pubkey.NewKeypair()
	if err != nil {
		return pubkey.Zero, err
	}
	auth := f.Authority()
	signers := []pubkey.PublicKey{auth, mint.PublicKey()}

	err = f.ledger.Update(ctx, signers, func(tx *ledger.Tx) error {
		if err := f.topUp(tx, config.MintAccountSize); err != nil {
			return err
		}
		_, err := tx.CreateMint(tx.Signer(auth), tx.Signer(mint.PublicKey()), decimals, auth)
		return err
	})
	if err != nil {
		return pubkey.Zero, err
	}
	f.log.Info("Mint created", "mint", mint.PublicKey(), "decimals", decimals)
	return mint.PublicKey(), nil
}

// MintTo issues amount of mint into the associated token account of owner,
// creating it if needed, and returns that account.
func (f *Faucet) MintTo(ctx context.Context, mint, owner pubkey.PublicKey, amount uint64) (pubkey.PublicKey, error) {
	auth := f.Authority()
	var ata pubkey.PublicKey
	if !owner.IsOnCurve() {
		return pubkey.Zero, fmt.Errorf("%w: %s is a derived address", ErrInvalidOwner, owner)
	}
	err := f.ledger.Update(ctx, []pubkey.PublicKey{auth}, func(tx *ledger.Tx) error {
		acct, err := tx.Account(owner)
		switch {
		case errors.Is(err, ledger.ErrAccountNotFound):
		case err != nil:
			return err
		case acct.Owner != tx.Programs().System:
			return fmt.Errorf("%w: %s is owned by program %s", ErrInvalidOwner, owner, acct.Owner)
		}
		if err := f.topUp(tx, config.TokenAccountSize); err != nil {
			return err
		}
		if ata, err = tx.EnsureAssociatedTokenAccount(tx.Signer(auth), owner, mint); err != nil {
			return err
		}
		return tx.MintTo(mint, ata, amount, tx.Signer(auth))
	})
	if err != nil {
		return pubkey.Zero, err
	}
	f.log.Info("Minted", "mint", mint, "owner", owner, "amount", amount)
	return ata, nil
}

// topUp makes sure the faucet can pay the rent of one more account.
func (f *Faucet) topUp(tx *ledger.Tx, space int) error {
	need := tx.Rent().MinimumBalance(space)
	have, err := tx.Lamports(f.Authority())
	if err != nil {
		return err
	}
	if have >= need {
		return nil
	}
	return tx.Airdrop(f.Authority(), need-have)
}
