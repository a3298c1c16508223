package ledger

import (
	"errors"
	"fmt"

	"github.com/klingon-exchange/klingon-escrow/internal/config"
	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
	"github.com/klingon-exchange/klingon-escrow/internal/storage"
)

// AssociatedTokenAddress derives the canonical token account of wallet for
// mint.
func AssociatedTokenAddress(p Programs, wallet, mint pubkey.PublicKey) (pubkey.PublicKey, uint8, error) {
	return pubkey.FindProgramAddress([][]byte{wallet.Bytes(), p.Token.Bytes(), mint.Bytes()}, p.AssociatedToken)
}

// Mint loads a mint.
func (t *Tx) Mint(addr pubkey.PublicKey) (*storage.Mint, error) {
	m, err := t.st.GetMint(addr)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// TokenAccount loads a token account.
func (t *Tx) TokenAccount(addr pubkey.PublicKey) (*storage.TokenAccount, error) {
	ta, err := t.st.GetTokenAccount(addr)
	if err != nil {
		return nil, notFound(err)
	}
	return ta, nil
}

// TokenAccountsOf lists the token accounts an authority controls.
func (t *Tx) TokenAccountsOf(authority pubkey.PublicKey) ([]*storage.TokenAccount, error) {
	return t.st.ListTokenAccountsByAuthority(authority)
}

// Balance returns the amount in the associated token account of wallet for
// mint. A missing account holds zero.
func (t *Tx) Balance(wallet, mint pubkey.PublicKey) (uint64, error) {
	ata, _, err := AssociatedTokenAddress(t.l.programs, wallet, mint)
	if err != nil {
		return 0, err
	}
	ta, err := t.st.GetTokenAccount(ata)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ta.Amount, nil
}

// CreateMint creates a new asset definition at the mint address.
func (t *Tx) CreateMint(payer, mint Authority, decimals uint8, mintAuthority pubkey.PublicKey) (*storage.Mint, error) {
	if _, err := t.CreateAccount(payer, mint, t.l.programs.Token, config.MintAccountSize); err != nil {
		return nil, err
	}
	m := &storage.Mint{Address: mint.key, Decimals: decimals, Authority: mintAuthority}
	if err := t.st.InsertMint(m); err != nil {
		return nil, err
	}
	return m, nil
}

// MintTo issues amount new units into a token account of the mint.
func (t *Tx) MintTo(mint, to pubkey.PublicKey, amount uint64, auth Authority) error {
	m, err := t.Mint(mint)
	if err != nil {
		return err
	}
	if err := require(auth, m.Authority); err != nil {
		return err
	}
	ta, err := t.TokenAccount(to)
	if err != nil {
		return err
	}
	if ta.Mint != mint {
		return fmt.Errorf("%w: %s holds %s, not %s", ErrMintMismatch, to, ta.Mint, mint)
	}

	if m.Supply, err = addChecked(m.Supply, amount); err != nil {
		return fmt.Errorf("mint %s supply: %w", mint, err)
	}
	if ta.Amount, err = addChecked(ta.Amount, amount); err != nil {
		return fmt.Errorf("token account %s: %w", to, err)
	}
	if err := t.st.UpdateMintSupply(mint, m.Supply); err != nil {
		return err
	}
	return t.st.UpdateTokenAmount(to, ta.Amount)
}

// CreateAssociatedTokenAccount creates the canonical token account of wallet
// for mint. It fails with ErrAccountInUse if the account exists.
func (t *Tx) CreateAssociatedTokenAccount(payer Authority, wallet, mint pubkey.PublicKey) (pubkey.PublicKey, error) {
	ata, _, err := AssociatedTokenAddress(t.l.programs, wallet, mint)
	if err != nil {
		return pubkey.Zero, err
	}
	if _, err := t.initTokenAccount(payer, ata, mint, wallet); err != nil {
		return pubkey.Zero, err
	}
	return ata, nil
}

// EnsureAssociatedTokenAccount returns the canonical token account of wallet
// for mint, creating it at payer's expense if it does not exist yet.
func (t *Tx) EnsureAssociatedTokenAccount(payer Authority, wallet, mint pubkey.PublicKey) (pubkey.PublicKey, error) {
	ata, _, err := AssociatedTokenAddress(t.l.programs, wallet, mint)
	if err != nil {
		return pubkey.Zero, err
	}
	ta, err := t.st.GetTokenAccount(ata)
	switch {
	case err == nil:
		if ta.Mint != mint || ta.Authority != wallet {
			return pubkey.Zero, fmt.Errorf("%w: associated account %s does not match", ErrInvalidOwner, ata)
		}
		return ata, nil
	case errors.Is(err, storage.ErrNotFound):
		if _, err := t.initTokenAccount(payer, ata, mint, wallet); err != nil {
			return pubkey.Zero, err
		}
		return ata, nil
	default:
		return pubkey.Zero, err
	}
}

// Transfer moves amount of mint between two token accounts. auth must be the
// authority of from.
func (t *Tx) Transfer(mint, from, to pubkey.PublicKey, amount uint64, auth Authority) error {
	src, err := t.TokenAccount(from)
	if err != nil {
		return err
	}
	dst, err := t.TokenAccount(to)
	if err != nil {
		return err
	}
	if src.Mint != mint {
		return fmt.Errorf("%w: %s holds %s, not %s", ErrMintMismatch, from, src.Mint, mint)
	}
	if dst.Mint != mint {
		return fmt.Errorf("%w: %s holds %s, not %s", ErrMintMismatch, to, dst.Mint, mint)
	}
	if err := require(auth, src.Authority); err != nil {
		return err
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, src.Amount, amount)
	}
	if from == to || amount == 0 {
		return nil
	}

	newDst, err := addChecked(dst.Amount, amount)
	if err != nil {
		return fmt.Errorf("token account %s: %w", to, err)
	}
	if err := t.st.UpdateTokenAmount(from, src.Amount-amount); err != nil {
		return err
	}
	return t.st.UpdateTokenAmount(to, newDst)
}

// CloseTokenAccount deletes an empty token account and sends its rent to
// beneficiary. auth must be the account's authority.
func (t *Tx) CloseTokenAccount(addr, beneficiary pubkey.PublicKey, auth Authority) error {
	ta, err := t.TokenAccount(addr)
	if err != nil {
		return err
	}
	if err := require(auth, ta.Authority); err != nil {
		return err
	}
	if ta.Amount != 0 {
		return fmt.Errorf("%w: %s holds %d", ErrNonZeroBalance, addr, ta.Amount)
	}
	a, err := t.Account(addr)
	if err != nil {
		return err
	}
	return t.reclaim(a, beneficiary)
}

func (t *Tx) initTokenAccount(payer Authority, addr, mint, authority pubkey.PublicKey) (*storage.TokenAccount, error) {
	if _, err := t.Mint(mint); err != nil {
		return nil, err
	}
	if _, err := t.allocate(payer, addr, t.l.programs.Token, config.TokenAccountSize); err != nil {
		return nil, err
	}
	ta := &storage.TokenAccount{Address: addr, Mint: mint, Authority: authority}
	if err := t.st.InsertTokenAccount(ta); err != nil {
		return nil, err
	}
	return ta, nil
}
