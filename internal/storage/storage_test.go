package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := New(&Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testKey(t *testing.T) pubkey.PublicKey {
	t.Helper()
	kp, err := pubkey.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair() error = %v", err)
	}
	return kp.PublicKey()
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	store, err := New(&Config{DataDir: dir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Join(dir, DBFileName)); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if store.DB() == nil {
		t.Error("DB() returned nil")
	}

	for _, table := range []string{"accounts", "mints", "token_accounts", "tx_journal"} {
		var name string
		err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not found: %v", table, err)
		}
	}
}

func TestAccountCRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	addr, owner := testKey(t), testKey(t)

	err := store.Update(ctx, func(tx *Tx) error {
		return tx.InsertAccount(&Account{Address: addr, Owner: owner, Lamports: 500, Space: 3, Data: []byte{1, 2, 3}})
	})
	if err != nil {
		t.Fatalf("InsertAccount() error = %v", err)
	}

	err = store.Update(ctx, func(tx *Tx) error {
		return tx.InsertAccount(&Account{Address: addr, Owner: owner})
	})
	if !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate InsertAccount() error = %v, want ErrExists", err)
	}

	var got *Account
	err = store.View(ctx, func(tx *Tx) error {
		var err error
		got, err = tx.GetAccount(addr)
		return err
	})
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.Owner != owner || got.Lamports != 500 || got.Space != 3 || len(got.Data) != 3 {
		t.Errorf("GetAccount() = %+v", got)
	}

	err = store.Update(ctx, func(tx *Tx) error {
		got.Lamports = 10
		got.Data = []byte{9}
		return tx.UpdateAccount(got)
	})
	if err != nil {
		t.Fatalf("UpdateAccount() error = %v", err)
	}

	err = store.Update(ctx, func(tx *Tx) error {
		return tx.DeleteAccount(addr)
	})
	if err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}

	err = store.View(ctx, func(tx *Tx) error {
		_, err := tx.GetAccount(addr)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAccount() after delete error = %v, want ErrNotFound", err)
	}
}

func TestUpdateRollsBack(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	addr := testKey(t)
	boom := errors.New("boom")

	err := store.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertAccount(&Account{Address: addr, Owner: pubkey.Zero, Lamports: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	err = store.View(ctx, func(tx *Tx) error {
		_, err := tx.GetAccount(addr)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("account survived rollback: %v", err)
	}
}

func TestTokenAccounts(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	tokenProgram, mint, holder, authority := testKey(t), testKey(t), testKey(t), testKey(t)

	err := store.Update(ctx, func(tx *Tx) error {
		if err := tx.InsertAccount(&Account{Address: mint, Owner: tokenProgram}); err != nil {
			return err
		}
		if err := tx.InsertMint(&Mint{Address: mint, Decimals: 6, Authority: authority}); err != nil {
			return err
		}
		if err := tx.InsertAccount(&Account{Address: holder, Owner: tokenProgram}); err != nil {
			return err
		}
		return tx.InsertTokenAccount(&TokenAccount{Address: holder, Mint: mint, Authority: authority, Amount: 42})
	})
	if err != nil {
		t.Fatalf("setup error = %v", err)
	}

	err = store.Update(ctx, func(tx *Tx) error {
		if err := tx.UpdateTokenAmount(holder, 40); err != nil {
			return err
		}
		return tx.UpdateMintSupply(mint, 40)
	})
	if err != nil {
		t.Fatalf("update error = %v", err)
	}

	err = store.View(ctx, func(tx *Tx) error {
		m, err := tx.GetMint(mint)
		if err != nil {
			return err
		}
		if m.Decimals != 6 || m.Supply != 40 || m.Authority != authority {
			t.Errorf("GetMint() = %+v", m)
		}

		ta, err := tx.GetTokenAccount(holder)
		if err != nil {
			return err
		}
		if ta.Amount != 40 || ta.Mint != mint {
			t.Errorf("GetTokenAccount() = %+v", ta)
		}

		list, err := tx.ListTokenAccountsByAuthority(authority)
		if err != nil {
			return err
		}
		if len(list) != 1 {
			t.Errorf("ListTokenAccountsByAuthority() len = %d, want 1", len(list))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}

	// Deleting the account cascades to the token state.
	err = store.Update(ctx, func(tx *Tx) error {
		return tx.DeleteAccount(holder)
	})
	if err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}
	err = store.View(ctx, func(tx *Tx) error {
		_, err := tx.GetTokenAccount(holder)
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("token account survived delete: %v", err)
	}
}

func TestListAccountsByOwner(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	program := testKey(t)

	err := store.Update(ctx, func(tx *Tx) error {
		for i := 0; i < 3; i++ {
			if err := tx.InsertAccount(&Account{Address: testKey(t), Owner: program}); err != nil {
				return err
			}
		}
		return tx.InsertAccount(&Account{Address: testKey(t), Owner: pubkey.Zero})
	})
	if err != nil {
		t.Fatalf("setup error = %v", err)
	}

	err = store.View(ctx, func(tx *Tx) error {
		list, err := tx.ListAccountsByOwner(program)
		if err != nil {
			return err
		}
		if len(list) != 3 {
			t.Errorf("ListAccountsByOwner() len = %d, want 3", len(list))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
}

func TestJournal(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	signer, escrow := testKey(t), testKey(t)

	entry := &JournalEntry{
		ID:      "6f1c6c8e-6a43-4a57-9d0e-3b1f1d1b9d11",
		Kind:    "open",
		Signer:  signer,
		Escrow:  escrow,
		Receipt: json.RawMessage(`{"kind":"open"}`),
	}
	if err := store.Update(ctx, func(tx *Tx) error { return tx.InsertJournalEntry(entry) }); err != nil {
		t.Fatalf("InsertJournalEntry() error = %v", err)
	}

	err := store.Update(ctx, func(tx *Tx) error { return tx.InsertJournalEntry(entry) })
	if !errors.Is(err, ErrExists) {
		t.Errorf("duplicate InsertJournalEntry() error = %v, want ErrExists", err)
	}

	err = store.View(ctx, func(tx *Tx) error {
		got, err := tx.GetJournalEntry(entry.ID)
		if err != nil {
			return err
		}
		if got.Kind != "open" || got.Signer != signer || got.Escrow != escrow {
			t.Errorf("GetJournalEntry() = %+v", got)
		}
		if string(got.Receipt) != `{"kind":"open"}` {
			t.Errorf("Receipt = %s", got.Receipt)
		}

		list, err := tx.ListJournalByEscrow(escrow)
		if err != nil {
			return err
		}
		if len(list) != 1 {
			t.Errorf("ListJournalByEscrow() len = %d, want 1", len(list))
		}

		_, err = tx.GetJournalEntry("missing")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("GetJournalEntry(missing) error = %v, want ErrNotFound", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
}
