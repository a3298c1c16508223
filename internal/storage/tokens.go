package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
)

// Mint is the state of an asset definition.
type Mint struct {
	Address   pubkey.PublicKey `json:"address"`
	Decimals  uint8            `json:"decimals"`
	Authority pubkey.PublicKey `json:"mint_authority"`
	Supply    uint64           `json:"supply"`
}

// TokenAccount is a balance of one mint controlled by one authority.
type TokenAccount struct {
	Address   pubkey.PublicKey `json:"address"`
	Mint      pubkey.PublicKey `json:"mint"`
	Authority pubkey.PublicKey `json:"authority"`
	Amount    uint64           `json:"amount"`
}

// InsertMint stores mint state. The backing account must already exist.
func (t *Tx) InsertMint(m *Mint) error {
	_, err := t.tx.Exec(`
		INSERT INTO mints (address, decimals, mint_authority, supply)
		VALUES (?, ?, ?, ?)
	`, m.Address.String(), m.Decimals, m.Authority.String(), m.Supply)
	if isConstraintError(err) {
		return fmt.Errorf("%w: mint %s", ErrExists, m.Address)
	}
	return err
}

// GetMint loads a mint.
func (t *Tx) GetMint(addr pubkey.PublicKey) (*Mint, error) {
	var (
		authority string
		supply    int64
		m         = Mint{Address: addr}
	)
	err := t.tx.QueryRow(`
		SELECT decimals, mint_authority, supply FROM mints WHERE address = ?
	`, addr.String()).Scan(&m.Decimals, &authority, &supply)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: mint %s", ErrNotFound, addr)
	}
	if err != nil {
		return nil, err
	}

	if m.Authority, err = pubkey.Parse(authority); err != nil {
		return nil, fmt.Errorf("corrupt mint authority of %s: %w", addr, err)
	}
	m.Supply = uint64(supply)
	return &m, nil
}

// UpdateMintSupply sets the circulating supply of a mint.
func (t *Tx) UpdateMintSupply(addr pubkey.PublicKey, supply uint64) error {
	res, err := t.tx.Exec(`UPDATE mints SET supply = ? WHERE address = ?`, supply, addr.String())
	if err != nil {
		return err
	}
	return expectOneRow(res, "mint", addr)
}

// InsertTokenAccount stores token account state. The backing account must
// already exist.
func (t *Tx) InsertTokenAccount(ta *TokenAccount) error {
	_, err := t.tx.Exec(`
		INSERT INTO token_accounts (address, mint, authority, amount)
		VALUES (?, ?, ?, ?)
	`, ta.Address.String(), ta.Mint.String(), ta.Authority.String(), ta.Amount)
	if isConstraintError(err) {
		return fmt.Errorf("%w: token account %s", ErrExists, ta.Address)
	}
	return err
}

// GetTokenAccount loads a token account.
func (t *Tx) GetTokenAccount(addr pubkey.PublicKey) (*TokenAccount, error) {
	row := t.tx.QueryRow(`
		SELECT address, mint, authority, amount FROM token_accounts WHERE address = ?
	`, addr.String())
	ta, err := scanTokenAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: token account %s", ErrNotFound, addr)
	}
	return ta, err
}

// UpdateTokenAmount sets the balance of a token account.
func (t *Tx) UpdateTokenAmount(addr pubkey.PublicKey, amount uint64) error {
	res, err := t.tx.Exec(`UPDATE token_accounts SET amount = ? WHERE address = ?`, amount, addr.String())
	if err != nil {
		return err
	}
	return expectOneRow(res, "token account", addr)
}

// ListTokenAccountsByAuthority returns all token accounts an authority controls.
func (t *Tx) ListTokenAccountsByAuthority(authority pubkey.PublicKey) ([]*TokenAccount, error) {
	rows, err := t.tx.Query(`
		SELECT address, mint, authority, amount FROM token_accounts
		WHERE authority = ?
		ORDER BY mint ASC
	`, authority.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TokenAccount
	for rows.Next() {
		ta, err := scanTokenAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ta)
	}
	return out, rows.Err()
}

func scanTokenAccount(row scanner) (*TokenAccount, error) {
	var (
		address, mint, authority string
		amount                   int64
	)
	if err := row.Scan(&address, &mint, &authority, &amount); err != nil {
		return nil, err
	}

	ta := &TokenAccount{Amount: uint64(amount)}
	var err error
	if ta.Address, err = pubkey.Parse(address); err != nil {
		return nil, fmt.Errorf("corrupt token account address %q: %w", address, err)
	}
	if ta.Mint, err = pubkey.Parse(mint); err != nil {
		return nil, fmt.Errorf("corrupt mint of %s: %w", address, err)
	}
	if ta.Authority, err = pubkey.Parse(authority); err != nil {
		return nil, fmt.Errorf("corrupt authority of %s: %w", address, err)
	}
	return ta, nil
}
