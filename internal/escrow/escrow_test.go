package escrow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/klingon-exchange/klingon-escrow/internal/config"
	"github.com/klingon-exchange/klingon-escrow/internal/ledger"
	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
	"github.com/klingon-exchange/klingon-escrow/internal/storage"
)

const startLamports = 10_000_000_000

var (
	tokenRent  = config.DefaultRent().MinimumBalance(config.TokenAccountSize)
	recordRent = config.DefaultRent().MinimumBalance(config.EscrowAccountSize)
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	ledger  *ledger.Ledger
	program *Program
	events  *recordingEmitter

	authority    *pubkey.Keypair
	maker, taker *pubkey.Keypair
	mintA, mintB pubkey.PublicKey
}

func newKeypair(t *testing.T) *pubkey.Keypair {
	t.Helper()
	kp, err := pubkey.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair() error = %v", err)
	}
	return kp
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.New(&storage.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	l := ledger.New(&ledger.Config{Store: store})
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		ledger:    l,
		program:   New(&Config{Ledger: l}),
		events:    &recordingEmitter{},
		authority: newKeypair(t),
		maker:     newKeypair(t),
		taker:     newKeypair(t),
	}
	f.program.SetEmitter(f.events)
	f.mintA = f.createMint()
	f.mintB = f.createMint()

	err = l.Update(f.ctx, nil, func(tx *ledger.Tx) error {
		for _, kp := range []*pubkey.Keypair{f.authority, f.maker, f.taker} {
			if err := tx.Airdrop(kp.PublicKey(), startLamports); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Airdrop() error = %v", err)
	}
	return f
}

func (f *fixture) createMint() pubkey.PublicKey {
	f.t.Helper()
	mint := newKeypair(f.t).PublicKey()
	auth := f.authority.PublicKey()
	err := f.ledger.Update(f.ctx, []pubkey.PublicKey{auth, mint}, func(tx *ledger.Tx) error {
		if err := tx.Airdrop(auth, tokenRent*2); err != nil {
			return err
		}
		_, err := tx.CreateMint(tx.Signer(auth), tx.Signer(mint), 6, auth)
		return err
	})
	if err != nil {
		f.t.Fatalf("CreateMint() error = %v", err)
	}
	return mint
}

// fund mints amount of mint into owner's associated account, paid by the
// mint authority.
func (f *fixture) fund(mint pubkey.PublicKey, owner *pubkey.Keypair, amount uint64) {
	f.t.Helper()
	auth := f.authority.PublicKey()
	err := f.ledger.Update(f.ctx, []pubkey.PublicKey{auth}, func(tx *ledger.Tx) error {
		ata, err := tx.EnsureAssociatedTokenAccount(tx.Signer(auth), owner.PublicKey(), mint)
		if err != nil {
			return err
		}
		return tx.MintTo(mint, ata, amount, tx.Signer(auth))
	})
	if err != nil {
		f.t.Fatalf("fund() error = %v", err)
	}
}

func (f *fixture) balance(owner pubkey.PublicKey, mint pubkey.PublicKey) uint64 {
	f.t.Helper()
	var n uint64
	err := f.ledger.View(f.ctx, func(tx *ledger.Tx) error {
		var err error
		n, err = tx.Balance(owner, mint)
		return err
	})
	if err != nil {
		f.t.Fatalf("Balance() error = %v", err)
	}
	return n
}

func (f *fixture) lamports(addr pubkey.PublicKey) uint64 {
	f.t.Helper()
	var n uint64
	err := f.ledger.View(f.ctx, func(tx *ledger.Tx) error {
		var err error
		n, err = tx.Lamports(addr)
		return err
	})
	if err != nil {
		f.t.Fatalf("Lamports() error = %v", err)
	}
	return n
}

func (f *fixture) exists(addr pubkey.PublicKey) bool {
	f.t.Helper()
	var ok bool
	err := f.ledger.View(f.ctx, func(tx *ledger.Tx) error {
		var err error
		ok, err = tx.Exists(addr)
		return err
	})
	if err != nil {
		f.t.Fatalf("Exists() error = %v", err)
	}
	return ok
}

func (f *fixture) open(seed, deposit, receive uint64) *Receipt {
	f.t.Helper()
	rcpt, err := f.program.Open(f.ctx, f.maker, OpenArgs{
		Seed:    seed,
		Deposit: deposit,
		Receive: receive,
		MintA:   f.mintA,
		MintB:   f.mintB,
	})
	if err != nil {
		f.t.Fatalf("Open() error = %v", err)
	}
	return rcpt
}

func TestDeriveRecord(t *testing.T) {
	program := pubkey.MustParse(config.DefaultEscrowProgramID)
	maker := newKeypair(t).PublicKey()

	addr, bump, err := DeriveRecord(program, maker, 1)
	if err != nil {
		t.Fatalf("DeriveRecord() error = %v", err)
	}
	again, bumpAgain, _ := DeriveRecord(program, maker, 1)
	if addr != again || bump != bumpAgain {
		t.Error("DeriveRecord() is not deterministic")
	}
	if addr.IsOnCurve() {
		t.Error("record address is on the curve")
	}

	other, _, _ := DeriveRecord(program, maker, 2)
	if other == addr {
		t.Error("different seeds derived the same address")
	}
	otherMaker, _, _ := DeriveRecord(program, newKeypair(t).PublicKey(), 1)
	if otherMaker == addr {
		t.Error("different makers derived the same address")
	}

	rec := &Escrow{Maker: maker, Seed: 1, Bump: bump}
	recreated, err := pubkey.CreateProgramAddress(rec.signerSeeds(), program)
	if err != nil || recreated != addr {
		t.Errorf("CreateProgramAddress() = %s, %v; want %s", recreated, err, addr)
	}

	vault, err := DeriveHolding(addr, maker)
	if err != nil {
		t.Fatalf("DeriveHolding() error = %v", err)
	}
	ata, _, _ := ledger.AssociatedTokenAddress(ledger.DefaultPrograms(), addr, maker)
	if vault != ata {
		t.Errorf("DeriveHolding() = %s, want %s", vault, ata)
	}
}

func TestRecordEncoding(t *testing.T) {
	rec := &Escrow{
		Seed:    42,
		Maker:   newKeypair(t).PublicKey(),
		MintA:   newKeypair(t).PublicKey(),
		MintB:   newKeypair(t).PublicKey(),
		Receive: 50,
		Bump:    254,
	}
	data, err := rec.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	if len(data) != config.EscrowAccountSize {
		t.Fatalf("encoded length = %d, want %d", len(data), config.EscrowAccountSize)
	}

	var got Escrow
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if got != *rec {
		t.Errorf("decoded %+v, want %+v", got, *rec)
	}

	data[0] ^= 0xff
	if err := got.UnmarshalBinary(data); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("bad discriminator error = %v, want ErrInvalidAccount", err)
	}
	if err := got.UnmarshalBinary(data[:10]); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("short data error = %v, want ErrInvalidAccount", err)
	}
}

func TestOpenThenComplete(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 100)
	f.fund(f.mintB, f.taker, 50)
	maker, taker := f.maker.PublicKey(), f.taker.PublicKey()

	opened := f.open(1, 100, 50)

	wantAddr, wantBump, _ := DeriveRecord(f.program.ID(), maker, 1)
	if opened.Escrow != wantAddr || opened.Record.Bump != wantBump {
		t.Errorf("Open() escrow = %s bump %d, want %s bump %d", opened.Escrow, opened.Record.Bump, wantAddr, wantBump)
	}
	if got := f.balance(maker, f.mintA); got != 0 {
		t.Errorf("maker A after open = %d, want 0", got)
	}
	vault, err := f.program.Vault(f.ctx, opened.Escrow)
	if err != nil {
		t.Fatalf("Vault() error = %v", err)
	}
	if vault.Amount != 100 || vault.Authority != opened.Escrow || vault.Address != opened.Vault {
		t.Errorf("Vault() = %+v", vault)
	}
	rec, err := f.program.Get(f.ctx, opened.Escrow)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Seed != 1 || rec.Maker != maker || rec.MintA != f.mintA || rec.MintB != f.mintB || rec.Receive != 50 {
		t.Errorf("Get() = %+v", rec)
	}
	if got := f.lamports(maker); got != startLamports-recordRent-tokenRent {
		t.Errorf("maker lamports after open = %d, want %d", got, startLamports-recordRent-tokenRent)
	}

	done, err := f.program.Complete(f.ctx, f.taker, opened.Escrow)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if done.Amount != 100 || done.Paid != 50 {
		t.Errorf("Complete() amount = %d paid = %d, want 100 and 50", done.Amount, done.Paid)
	}

	checks := []struct {
		name  string
		owner pubkey.PublicKey
		mint  pubkey.PublicKey
		want  uint64
	}{
		{"taker A", taker, f.mintA, 100},
		{"taker B", taker, f.mintB, 0},
		{"maker A", maker, f.mintA, 0},
		{"maker B", maker, f.mintB, 50},
	}
	for _, c := range checks {
		if got := f.balance(c.owner, c.mint); got != c.want {
			t.Errorf("%s = %d, want %d", c.name, got, c.want)
		}
	}
	if f.exists(opened.Escrow) || f.exists(opened.Vault) {
		t.Error("record or vault still exists after complete")
	}

	// Record rent returns to the maker, vault rent to the taker.
	if got := f.lamports(maker); got != startLamports-tokenRent {
		t.Errorf("maker lamports = %d, want %d", got, startLamports-tokenRent)
	}
	if got := f.lamports(taker); got != startLamports-tokenRent {
		t.Errorf("taker lamports = %d, want %d", got, startLamports-tokenRent)
	}

	if got := f.events.types(); len(got) != 2 || got[0] != EventOpened || got[1] != EventCompleted {
		t.Errorf("events = %v", got)
	}
}

func TestOpenThenCancel(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 10)
	maker := f.maker.PublicKey()

	opened := f.open(7, 10, 99)
	if got := f.balance(maker, f.mintA); got != 0 {
		t.Errorf("maker A after open = %d, want 0", got)
	}

	cancelled, err := f.program.Cancel(f.ctx, f.maker, opened.Escrow)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Amount != 10 {
		t.Errorf("Cancel() amount = %d, want 10", cancelled.Amount)
	}
	if got := f.balance(maker, f.mintA); got != 10 {
		t.Errorf("maker A after cancel = %d, want 10", got)
	}
	if f.exists(opened.Escrow) || f.exists(opened.Vault) {
		t.Error("record or vault still exists after cancel")
	}
	if got := f.lamports(maker); got != startLamports {
		t.Errorf("maker lamports = %d, want %d", got, startLamports)
	}

	// The address is free again.
	f.open(7, 10, 99)
}

func TestCancelByNonMaker(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 10)
	opened := f.open(3, 10, 5)

	_, err := f.program.Cancel(f.ctx, f.taker, opened.Escrow)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Cancel() by taker error = %v, want ErrUnauthorized", err)
	}
	vault, err := f.program.Vault(f.ctx, opened.Escrow)
	if err != nil {
		t.Fatalf("Vault() error = %v", err)
	}
	if vault.Amount != 10 {
		t.Errorf("vault = %d, want 10", vault.Amount)
	}
}

func TestTerminalStates(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 20)
	f.fund(f.mintB, f.taker, 10)

	cancelled := f.open(1, 10, 5)
	if _, err := f.program.Cancel(f.ctx, f.maker, cancelled.Escrow); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	completed := f.open(2, 10, 5)
	if _, err := f.program.Complete(f.ctx, f.taker, completed.Escrow); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	tests := []struct {
		name string
		run  func() error
	}{
		{"cancel after cancel", func() error {
			_, err := f.program.Cancel(f.ctx, f.maker, cancelled.Escrow)
			return err
		}},
		{"complete after cancel", func() error {
			_, err := f.program.Complete(f.ctx, f.taker, cancelled.Escrow)
			return err
		}},
		{"cancel after complete", func() error {
			_, err := f.program.Cancel(f.ctx, f.maker, completed.Escrow)
			return err
		}},
		{"complete after complete", func() error {
			_, err := f.program.Complete(f.ctx, f.taker, completed.Escrow)
			return err
		}},
		{"get after complete", func() error {
			_, err := f.program.Get(f.ctx, completed.Escrow)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestCompleteInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 100)
	f.fund(f.mintB, f.taker, 49)
	taker := f.taker.PublicKey()
	opened := f.open(1, 100, 50)
	lamportsBefore := f.lamports(taker)

	_, err := f.program.Complete(f.ctx, f.taker, opened.Escrow)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Complete() error = %v, want ErrInsufficientBalance", err)
	}

	if got := f.balance(taker, f.mintB); got != 49 {
		t.Errorf("taker B = %d, want 49", got)
	}
	if got := f.balance(taker, f.mintA); got != 0 {
		t.Errorf("taker A = %d, want 0", got)
	}
	if got := f.lamports(taker); got != lamportsBefore {
		t.Errorf("taker lamports = %d, want %d", got, lamportsBefore)
	}
	vault, err := f.program.Vault(f.ctx, opened.Escrow)
	if err != nil {
		t.Fatalf("Vault() error = %v", err)
	}
	if vault.Amount != 100 {
		t.Errorf("vault = %d, want 100", vault.Amount)
	}
}

func TestCompleteRollsBackPaymentOnLaterFailure(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 100)
	opened := f.open(1, 100, 50)

	// The taker can afford the maker's mint_b account but not its own
	// mint_a account, so Complete fails after paying the maker.
	taker := newKeypair(t)
	err := f.ledger.Update(f.ctx, nil, func(tx *ledger.Tx) error {
		return tx.Airdrop(taker.PublicKey(), tokenRent)
	})
	if err != nil {
		t.Fatalf("Airdrop() error = %v", err)
	}
	f.fund(f.mintB, taker, 50)

	_, err = f.program.Complete(f.ctx, taker, opened.Escrow)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Complete() error = %v, want ErrInsufficientBalance", err)
	}

	if got := f.balance(f.maker.PublicKey(), f.mintB); got != 0 {
		t.Errorf("maker B = %d, want 0", got)
	}
	if got := f.balance(taker.PublicKey(), f.mintB); got != 50 {
		t.Errorf("taker B = %d, want 50", got)
	}
	if got := f.lamports(taker.PublicKey()); got != tokenRent {
		t.Errorf("taker lamports = %d, want %d", got, tokenRent)
	}
	if !f.exists(opened.Escrow) {
		t.Error("record closed by a failed Complete")
	}
	vault, err := f.program.Vault(f.ctx, opened.Escrow)
	if err != nil {
		t.Fatalf("Vault() error = %v", err)
	}
	if vault.Amount != 100 {
		t.Errorf("vault = %d, want 100", vault.Amount)
	}
	if types := f.events.types(); len(types) != 1 || types[0] != EventOpened {
		t.Errorf("events = %v, want only %s", types, EventOpened)
	}
}

func TestOpenFailures(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 10)
	f.open(1, 10, 1)
	f.fund(f.mintA, f.maker, 10)

	tests := []struct {
		name    string
		args    OpenArgs
		wantErr error
	}{
		{"address in use", OpenArgs{Seed: 1, Deposit: 1, Receive: 1, MintA: f.mintA, MintB: f.mintB}, ErrAddressInUse},
		{"deposit exceeds balance", OpenArgs{Seed: 2, Deposit: 11, Receive: 1, MintA: f.mintA, MintB: f.mintB}, ErrInsufficientBalance},
		{"unknown mint", OpenArgs{Seed: 3, Deposit: 1, Receive: 1, MintA: f.mintA, MintB: newKeypair(t).PublicKey()}, ErrInvalidAccount},
		{"missing mint", OpenArgs{Seed: 4, Deposit: 1, Receive: 1, MintA: f.mintA}, ErrInvalidInstruction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.program.Open(f.ctx, f.maker, tt.args)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Open() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if got := f.balance(f.maker.PublicKey(), f.mintA); got != 10 {
		t.Errorf("maker A = %d, want 10", got)
	}
	list, err := f.program.List(f.ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() len = %d, want 1", len(list))
	}
}

func TestOpenWithoutRent(t *testing.T) {
	f := newFixture(t)
	broke := newKeypair(t)
	f.fund(f.mintA, broke, 5)

	_, err := f.program.Open(f.ctx, broke, OpenArgs{Seed: 1, Deposit: 5, Receive: 1, MintA: f.mintA, MintB: f.mintB})
	if !errors.Is(err, ErrInsufficientBalance) || !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("Open() error = %v, want ErrInsufficientBalance wrapping ledger.ErrInsufficientFunds", err)
	}
}

func TestReceiveZero(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 25)
	opened := f.open(9, 25, 0)

	// The taker has never held mint B.
	if _, err := f.program.Complete(f.ctx, f.taker, opened.Escrow); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got := f.balance(f.taker.PublicKey(), f.mintA); got != 25 {
		t.Errorf("taker A = %d, want 25", got)
	}
	if got := f.balance(f.maker.PublicKey(), f.mintB); got != 0 {
		t.Errorf("maker B = %d, want 0", got)
	}
}

func TestDepositZero(t *testing.T) {
	f := newFixture(t)
	opened := f.open(4, 0, 0)
	if _, err := f.program.Cancel(f.ctx, f.maker, opened.Escrow); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if f.exists(opened.Escrow) {
		t.Error("record still exists")
	}
}

func TestConcurrentCancelAndComplete(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 100)
	f.fund(f.mintB, f.taker, 50)
	opened := f.open(1, 100, 50)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.program.Cancel(f.ctx, f.maker, opened.Escrow)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.program.Complete(f.ctx, f.taker, opened.Escrow)
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrNotFound):
			t.Errorf("loser error = %v, want ErrNotFound", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d transitions succeeded, want exactly 1 (errors: %v)", succeeded, errs)
	}

	// Tokens are conserved either way.
	maker, taker := f.maker.PublicKey(), f.taker.PublicKey()
	if a := f.balance(maker, f.mintA) + f.balance(taker, f.mintA); a != 100 {
		t.Errorf("total A = %d, want 100", a)
	}
	if b := f.balance(maker, f.mintB) + f.balance(taker, f.mintB); b != 50 {
		t.Errorf("total B = %d, want 50", b)
	}
}

func TestExecuteReplay(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 100)
	f.fund(f.mintB, f.taker, 100)
	opened := f.open(1, 100, 50)

	tx, err := NewTransaction(f.taker, Instruction{Kind: KindComplete, Escrow: opened.Escrow})
	if err != nil {
		t.Fatalf("NewTransaction() error = %v", err)
	}
	first, err := f.program.Execute(f.ctx, tx)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	second, err := f.program.Execute(f.ctx, tx)
	if err != nil {
		t.Fatalf("replayed Execute() error = %v", err)
	}
	if !second.Replayed || second.TxID != first.TxID || second.Amount != first.Amount {
		t.Errorf("replay receipt = %+v, want copy of %+v", second, first)
	}
	if got := f.balance(f.taker.PublicKey(), f.mintB); got != 50 {
		t.Errorf("taker B = %d, want 50 (paid once)", got)
	}
	if got := len(f.events.types()); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}

	// Same id, different instruction.
	reused := *tx
	reused.Instruction = Instruction{Kind: KindCancel, Escrow: opened.Escrow}
	if err := reused.Sign(f.taker); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if _, err := f.program.Execute(f.ctx, &reused); !errors.Is(err, ErrInvalidInstruction) {
		t.Errorf("reused id error = %v, want ErrInvalidInstruction", err)
	}

	history, err := f.program.History(f.ctx, opened.Escrow)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Kind != KindOpen || history[1].Kind != KindComplete {
		t.Errorf("History() = %+v", history)
	}
}

func TestExecuteRejectsBadSignatures(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 100)

	tx, err := NewTransaction(f.maker, Instruction{Kind: KindOpen, Seed: 1, Deposit: 10, Receive: 1, MintA: f.mintA, MintB: f.mintB})
	if err != nil {
		t.Fatalf("NewTransaction() error = %v", err)
	}
	tx.Instruction.Deposit = 100
	if _, err := f.program.Execute(f.ctx, tx); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("tampered Execute() error = %v, want ErrUnauthorized", err)
	}

	// Signed by the taker but claiming to be the maker.
	forged := &Transaction{ID: tx.ID, Signer: f.maker.PublicKey(), Instruction: tx.Instruction}
	msg, err := forged.Message()
	if err != nil {
		t.Fatalf("Message() error = %v", err)
	}
	forged.Signature = f.taker.Sign(msg)
	if _, err := f.program.Execute(f.ctx, forged); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("forged Execute() error = %v, want ErrUnauthorized", err)
	}

	if err := tx.Sign(f.taker); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Sign() with wrong key error = %v, want ErrUnauthorized", err)
	}
	if got := f.balance(f.maker.PublicKey(), f.mintA); got != 100 {
		t.Errorf("maker A = %d, want 100", got)
	}
}

func TestListByMaker(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 30)
	f.fund(f.mintA, f.taker, 30)

	f.open(1, 10, 1)
	f.open(2, 10, 1)
	if _, err := f.program.Open(f.ctx, f.taker, OpenArgs{Seed: 1, Deposit: 10, Receive: 1, MintA: f.mintA, MintB: f.mintB}); err != nil {
		t.Fatalf("Open() by taker error = %v", err)
	}

	all, err := f.program.List(f.ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() len = %d, want 3", len(all))
	}
	mine, err := f.program.ListByMaker(f.ctx, f.maker.PublicKey())
	if err != nil {
		t.Fatalf("ListByMaker() error = %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("ListByMaker() len = %d, want 2", len(mine))
	}
	for _, e := range mine {
		if e.Maker != f.maker.PublicKey() {
			t.Errorf("ListByMaker() returned escrow of %s", e.Maker)
		}
	}
}

func TestGetRejectsForeignAccount(t *testing.T) {
	f := newFixture(t)
	if _, err := f.program.Get(f.ctx, f.maker.PublicKey()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(wallet) error = %v, want ErrNotFound", err)
	}
	if _, err := f.program.Get(f.ctx, newKeypair(t).PublicKey()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestGetWithVault(t *testing.T) {
	f := newFixture(t)
	f.fund(f.mintA, f.maker, 30)
	opened := f.open(4, 30, 10)

	rec, vault, err := f.program.GetWithVault(f.ctx, opened.Escrow)
	if err != nil {
		t.Fatalf("GetWithVault() error = %v", err)
	}
	if rec.Seed != 4 || rec.Maker != f.maker.PublicKey() {
		t.Errorf("record = %+v", rec)
	}
	if vault.Address != opened.Vault || vault.Amount != 30 || vault.Authority != opened.Escrow {
		t.Errorf("vault = %+v", vault)
	}

	if _, err := f.program.Cancel(f.ctx, f.maker, opened.Escrow); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, _, err := f.program.GetWithVault(f.ctx, opened.Escrow); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetWithVault() after cancel error = %v, want ErrNotFound", err)
	}
}
