package escrow

import (
	"context"

	"github.com/klingon-exchange/klingon-escrow/internal/ledger"
	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
	"github.com/klingon-exchange/klingon-escrow/internal/storage"
)

// Addresses are the derived accounts of an offer.
type Addresses struct {
	Escrow pubkey.PublicKey `json:"escrow"`
	Bump   uint8            `json:"bump"`
	Vault  pubkey.PublicKey `json:"vault"`
}

// Derive computes where maker's offer number seed would live.
func (p *Program) Derive(maker pubkey.PublicKey, seed uint64, mintA pubkey.PublicKey) (*Addresses, error) {
	addr, bump, err := DeriveRecord(p.id, maker, seed)
	if err != nil {
		return nil, err
	}
	vault, err := DeriveHolding(addr, mintA)
	if err != nil {
		return nil, err
	}
	return &Addresses{Escrow: addr, Bump: bump, Vault: vault}, nil
}

// Get returns the open escrow at addr.
func (p *Program) Get(ctx context.Context, addr pubkey.PublicKey) (*Escrow, error) {
	var rec *Escrow
	err := p.ledger.View(ctx, func(lt *ledger.Tx) error {
		var err error
		rec, err = p.load(lt, addr)
		return err
	})
	return rec, err
}

// List returns every open escrow.
func (p *Program) List(ctx context.Context) ([]*Escrow, error) {
	return p.list(ctx, func(*Escrow) bool { return true })
}

// ListByMaker returns the open escrows of one maker.
func (p *Program) ListByMaker(ctx context.Context, maker pubkey.PublicKey) ([]*Escrow, error) {
	return p.list(ctx, func(e *Escrow) bool { return e.Maker == maker })
}

func (p *Program) list(ctx context.Context, keep func(*Escrow) bool) ([]*Escrow, error) {
	var out []*Escrow
	err := p.ledger.View(ctx, func(lt *ledger.Tx) error {
		accounts, err := lt.AccountsOwnedBy(p.id)
		if err != nil {
			return err
		}
		for _, acct := range accounts {
			rec := &Escrow{Address: acct.Address}
			if err := rec.UnmarshalBinary(acct.Data); err != nil {
				p.log.Debug("Skipping non-escrow account", "address", acct.Address, "error", err)
				continue
			}
			if keep(rec) {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}

// Vault returns the holding account of the escrow at addr.
func (p *Program) Vault(ctx context.Context, addr pubkey.PublicKey) (*storage.TokenAccount, error) {
	_, ta, err := p.GetWithVault(ctx, addr)
	return ta, err
}

// GetWithVault returns the escrow at addr and its holding account, read in
// one ledger snapshot.
func (p *Program) GetWithVault(ctx context.Context, addr pubkey.PublicKey) (*Escrow, *storage.TokenAccount, error) {
	var (
		rec *Escrow
		ta  *storage.TokenAccount
	)
	err := p.ledger.View(ctx, func(lt *ledger.Tx) error {
		var err error
		if rec, err = p.load(lt, addr); err != nil {
			return err
		}
		vault, _, err := p.vault(lt, rec)
		if err != nil {
			return err
		}
		ta, err = lt.TokenAccount(vault)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return rec, ta, nil
}

// History lists the committed transactions of an escrow, oldest first. It
// works for closed escrows too.
func (p *Program) History(ctx context.Context, addr pubkey.PublicKey) ([]*Receipt, error) {
	var out []*Receipt
	err := p.ledger.View(ctx, func(lt *ledger.Tx) error {
		entries, err := lt.JournalFor(addr)
		if err != nil {
			return err
		}
		for _, e := range entries {
			rcpt, err := decodeReceipt(e)
			if err != nil {
				return err
			}
			out = append(out, rcpt)
		}
		return nil
	})
	return out, err
}
