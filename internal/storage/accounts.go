package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
)

// Account is a ledger account row.
type Account struct {
	Address  pubkey.PublicKey `json:"address"`
	Owner    pubkey.PublicKey `json:"owner"`
	Lamports uint64           `json:"lamports"`
	Space    int              `json:"space"`
	Data     []byte           `json:"data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const accountColumns = `address, owner, lamports, space, data, created_at, updated_at`

// InsertAccount creates an account. It fails with ErrExists when the address
// is taken.
func (t *Tx) InsertAccount(a *Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.now
	}
	a.UpdatedAt = t.now

	_, err := t.tx.Exec(`
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		a.Address.String(),
		a.Owner.String(),
		a.Lamports,
		a.Space,
		a.Data,
		a.CreatedAt.Unix(),
		a.UpdatedAt.Unix(),
	)
	if isConstraintError(err) {
		return fmt.Errorf("%w: account %s", ErrExists, a.Address)
	}
	return err
}

// GetAccount loads an account by address.
func (t *Tx) GetAccount(addr pubkey.PublicKey) (*Account, error) {
	row := t.tx.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE address = ?`, addr.String())
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, addr)
	}
	return a, err
}

// UpdateAccount writes lamports and data back to an existing account.
func (t *Tx) UpdateAccount(a *Account) error {
	a.UpdatedAt = t.now
	res, err := t.tx.Exec(`
		UPDATE accounts SET lamports = ?, data = ?, updated_at = ?
		WHERE address = ?
	`, a.Lamports, a.Data, a.UpdatedAt.Unix(), a.Address.String())
	if err != nil {
		return err
	}
	return expectOneRow(res, "account", a.Address)
}

// DeleteAccount removes an account and, through cascade, any mint or token
// state attached to it.
func (t *Tx) DeleteAccount(addr pubkey.PublicKey) error {
	res, err := t.tx.Exec(`DELETE FROM accounts WHERE address = ?`, addr.String())
	if err != nil {
		return err
	}
	return expectOneRow(res, "account", addr)
}

// ListAccountsByOwner returns every account owned by program, oldest first.
func (t *Tx) ListAccountsByOwner(owner pubkey.PublicKey) ([]*Account, error) {
	rows, err := t.tx.Query(`
		SELECT `+accountColumns+` FROM accounts
		WHERE owner = ?
		ORDER BY created_at ASC, address ASC
	`, owner.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row scanner) (*Account, error) {
	var (
		address, owner       string
		lamports             int64
		createdAt, updatedAt int64
		a                    Account
	)
	if err := row.Scan(&address, &owner, &lamports, &a.Space, &a.Data, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if a.Address, err = pubkey.Parse(address); err != nil {
		return nil, fmt.Errorf("corrupt account address %q: %w", address, err)
	}
	if a.Owner, err = pubkey.Parse(owner); err != nil {
		return nil, fmt.Errorf("corrupt owner of %s: %w", address, err)
	}
	a.Lamports = uint64(lamports)
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)
	return &a, nil
}

func expectOneRow(res sql.Result, what string, addr pubkey.PublicKey) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, addr)
	}
	return nil
}
