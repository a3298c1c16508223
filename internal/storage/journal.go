package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
)

// JournalEntry records a committed escrow transaction.
type JournalEntry struct {
	ID        string           `json:"id"`
	Kind      string           `json:"kind"`
	Signer    pubkey.PublicKey `json:"signer"`
	Escrow    pubkey.PublicKey `json:"escrow"`
	Receipt   json.RawMessage  `json:"receipt"`
	CreatedAt time.Time        `json:"created_at"`
}

// InsertJournalEntry records a transaction. A second entry with the same id
// fails with ErrExists.
func (t *Tx) InsertJournalEntry(e *JournalEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t.now
	}
	_, err := t.tx.Exec(`
		INSERT INTO tx_journal (id, kind, signer, escrow, receipt, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Kind, e.Signer.String(), e.Escrow.String(), string(e.Receipt), e.CreatedAt.Unix())
	if isConstraintError(err) {
		return fmt.Errorf("%w: transaction %s", ErrExists, e.ID)
	}
	return err
}

// GetJournalEntry loads a committed transaction by id.
func (t *Tx) GetJournalEntry(id string) (*JournalEntry, error) {
	var (
		signer, escrow, receipt string
		createdAt               int64
		e                       = JournalEntry{ID: id}
	)
	err := t.tx.QueryRow(`
		SELECT kind, signer, escrow, receipt, created_at FROM tx_journal WHERE id = ?
	`, id).Scan(&e.Kind, &signer, &escrow, &receipt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if e.Signer, err = pubkey.Parse(signer); err != nil {
		return nil, fmt.Errorf("corrupt journal signer: %w", err)
	}
	if e.Escrow, err = pubkey.Parse(escrow); err != nil {
		return nil, fmt.Errorf("corrupt journal escrow: %w", err)
	}
	e.Receipt = json.RawMessage(receipt)
	e.CreatedAt = time.Unix(createdAt, 0)
	return &e, nil
}

// ListJournalByEscrow returns the transactions that touched an escrow,
// oldest first.
func (t *Tx) ListJournalByEscrow(escrow pubkey.PublicKey) ([]*JournalEntry, error) {
	rows, err := t.tx.Query(`
		SELECT id, kind, signer, receipt, created_at FROM tx_journal
		WHERE escrow = ?
		ORDER BY created_at ASC, rowid ASC
	`, escrow.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*JournalEntry
	for rows.Next() {
		var (
			signer, receipt string
			createdAt       int64
			e               = JournalEntry{Escrow: escrow}
		)
		if err := rows.Scan(&e.ID, &e.Kind, &signer, &receipt, &createdAt); err != nil {
			return nil, err
		}
		if e.Signer, err = pubkey.Parse(signer); err != nil {
			return nil, fmt.Errorf("corrupt journal signer: %w", err)
		}
		e.Receipt = json.RawMessage(receipt)
		e.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &e)
	}
	return out, rows.Err()
}
