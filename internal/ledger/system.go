package ledger

import (
	"errors"
	"fmt"

	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
	"github.com/klingon-exchange/klingon-escrow/internal/storage"
)

// Account loads any account.
func (t *Tx) Account(addr pubkey.PublicKey) (*storage.Account, error) {
	a, err := t.st.GetAccount(addr)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// Exists reports whether addr is an allocated account.
func (t *Tx) Exists(addr pubkey.PublicKey) (bool, error) {
	_, err := t.st.GetAccount(addr)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Lamports returns the native balance of addr. A missing account holds zero.
func (t *Tx) Lamports(addr pubkey.PublicKey) (uint64, error) {
	a, err := t.st.GetAccount(addr)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.Lamports, nil
}

// Airdrop credits lamports to a wallet out of thin air. It is only reachable
// through the development faucet.
func (t *Tx) Airdrop(to pubkey.PublicKey, lamports uint64) error {
	return t.credit(to, lamports)
}

// TransferLamports moves native balance out of a system-owned wallet.
func (t *Tx) TransferLamports(from Authority, to pubkey.PublicKey, lamports uint64) error {
	if err := t.debit(from, lamports); err != nil {
		return err
	}
	return t.credit(to, lamports)
}

// CreateAccount allocates space bytes at the address, owned by owner, funded
// with the rent-exempt minimum taken from payer. Both payer and address must
// authorize; the address does so by signature or as a program-derived signer.
func (t *Tx) CreateAccount(payer, address Authority, owner pubkey.PublicKey, space int) (*storage.Account, error) {
	if address.err != nil {
		return nil, address.err
	}
	if address.key.IsZero() {
		return nil, fmt.Errorf("%w: no address", ErrOwnerMismatch)
	}
	return t.allocate(payer, address.key, owner, space)
}

// WriteData replaces the data of an account. Only the owning program may
// write.
func (t *Tx) WriteData(addr pubkey.PublicKey, program Authority, data []byte) error {
	a, err := t.Account(addr)
	if err != nil {
		return err
	}
	if err := require(program, a.Owner); err != nil {
		return err
	}
	if len(data) > a.Space {
		return fmt.Errorf("write %d bytes into %d-byte account %s", len(data), a.Space, addr)
	}
	a.Data = data
	return t.st.UpdateAccount(a)
}

// CloseAccount deletes a program-owned account and sends its lamports to
// beneficiary. Token accounts must be closed with CloseTokenAccount.
func (t *Tx) CloseAccount(addr, beneficiary pubkey.PublicKey, program Authority) error {
	a, err := t.Account(addr)
	if err != nil {
		return err
	}
	if a.Owner == t.l.programs.Token || a.Owner == t.l.programs.System {
		return fmt.Errorf("%w: %s is owned by %s", ErrInvalidOwner, addr, a.Owner)
	}
	if err := require(program, a.Owner); err != nil {
		return err
	}
	return t.reclaim(a, beneficiary)
}

// allocate creates the account row after charging payer the rent.
func (t *Tx) allocate(payer Authority, addr, owner pubkey.PublicKey, space int) (*storage.Account, error) {
	if space < 0 {
		return nil, fmt.Errorf("negative account space %d", space)
	}
	exists, err := t.Exists(addr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAccountInUse, addr)
	}

	rent := t.l.rent.MinimumBalance(space)
	if err := t.debit(payer, rent); err != nil {
		return nil, fmt.Errorf("fund %s: %w", addr, err)
	}

	a := &storage.Account{
		Address:  addr,
		Owner:    owner,
		Lamports: rent,
		Space:    space,
		Data:     make([]byte, space),
	}
	if err := t.st.InsertAccount(a); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, fmt.Errorf("%w: %s", ErrAccountInUse, addr)
		}
		return nil, err
	}
	t.l.log.Debug("Account created", "address", addr, "owner", owner, "space", space, "rent", rent)
	return a, nil
}

// reclaim deletes an account and refunds its lamports.
func (t *Tx) reclaim(a *storage.Account, beneficiary pubkey.PublicKey) error {
	if beneficiary == a.Address {
		return fmt.Errorf("close %s into itself", a.Address)
	}
	if err := t.st.DeleteAccount(a.Address); err != nil {
		return notFound(err)
	}
	if err := t.credit(beneficiary, a.Lamports); err != nil {
		return err
	}
	t.l.log.Debug("Account closed", "address", a.Address, "beneficiary", beneficiary, "lamports", a.Lamports)
	return nil
}

// debit takes lamports from a system-owned wallet controlled by from.
func (t *Tx) debit(from Authority, lamports uint64) error {
	if from.err != nil {
		return from.err
	}
	a, err := t.st.GetAccount(from.key)
	if errors.Is(err, storage.ErrNotFound) {
		if lamports == 0 {
			return nil
		}
		return fmt.Errorf("%w: %s holds 0 lamports, needs %d", ErrInsufficientFunds, from.key, lamports)
	}
	if err != nil {
		return err
	}
	if a.Owner != t.l.programs.System {
		return fmt.Errorf("%w: payer %s is owned by %s", ErrInvalidOwner, from.key, a.Owner)
	}
	if a.Lamports < lamports {
		return fmt.Errorf("%w: %s holds %d lamports, needs %d", ErrInsufficientFunds, from.key, a.Lamports, lamports)
	}
	a.Lamports -= lamports
	return t.st.UpdateAccount(a)
}

// credit adds lamports to any account, creating a system wallet if needed.
func (t *Tx) credit(to pubkey.PublicKey, lamports uint64) error {
	a, err := t.st.GetAccount(to)
	if errors.Is(err, storage.ErrNotFound) {
		if lamports == 0 {
			return nil
		}
		if lamports > maxAmount {
			return ErrOverflow
		}
		return t.st.InsertAccount(&storage.Account{
			Address:  to,
			Owner:    t.l.programs.System,
			Lamports: lamports,
		})
	}
	if err != nil {
		return err
	}
	if a.Lamports, err = addChecked(a.Lamports, lamports); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return t.st.UpdateAccount(a)
}
