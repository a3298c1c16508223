package ledger

import (
	"errors"

	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
	"github.com/klingon-exchange/klingon-escrow/internal/storage"
)

// JournalEntry returns the committed transaction with the given id, if any.
func (t *Tx) JournalEntry(id string) (*storage.JournalEntry, bool, error) {
	e, err := t.st.GetJournalEntry(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// AppendJournal records a transaction as committed together with the
// current ledger transaction.
func (t *Tx) AppendJournal(e *storage.JournalEntry) error {
	return t.st.InsertJournalEntry(e)
}

// JournalFor lists the committed transactions that touched an address.
func (t *Tx) JournalFor(addr pubkey.PublicKey) ([]*storage.JournalEntry, error) {
	return t.st.ListJournalByEscrow(addr)
}

// AccountsOwnedBy lists every account owned by program.
func (t *Tx) AccountsOwnedBy(program pubkey.PublicKey) ([]*storage.Account, error) {
	return t.st.ListAccountsByOwner(program)
}
