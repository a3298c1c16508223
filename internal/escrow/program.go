// Package escrow implements the two-party swap program: a maker deposits
// token A into a vault controlled by a program-derived record address, and
// either cancels to get it back or lets a taker complete by paying token B.
package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/klingon-escrow/internal/config"
	"github.com/klingon-exchange/klingon-escrow/internal/ledger"
	"github.com/klingon-exchange/klingon-escrow/internal/metrics"
	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
	"github.com/klingon-exchange/klingon-escrow/internal/storage"
	"github.com/klingon-exchange/klingon-escrow/pkg/logging"
)

// Program executes escrow transactions against a ledger.
type Program struct {
	id      pubkey.PublicKey
	ledger  *ledger.Ledger
	emitter Emitter
	log     *logging.Logger
}

// Config holds program configuration.
type Config struct {
	ProgramID pubkey.PublicKey
	Ledger    *ledger.Ledger
}

// New creates a program with a no-op emitter.
func New(cfg *Config) *Program {
	id := cfg.ProgramID
	if id.IsZero() {
		id = pubkey.MustParse(config.DefaultEscrowProgramID)
	}
	return &Program{
		id:      id,
		ledger:  cfg.Ledger,
		emitter: NoopEmitter{},
		log:     logging.GetDefault().Component("escrow"),
	}
}

// ID returns the program id.
func (p *Program) ID() pubkey.PublicKey {
	return p.id
}

// SetEmitter configures where committed events go. nil discards them.
func (p *Program) SetEmitter(e Emitter) {
	if e == nil {
		e = NoopEmitter{}
	}
	p.emitter = e
}

// OpenArgs are the maker's terms.
type OpenArgs struct {
	Seed    uint64
	Deposit uint64
	Receive uint64
	MintA   pubkey.PublicKey
	MintB   pubkey.PublicKey
}

// Open creates an escrow and moves Deposit of MintA into its vault.
func (p *Program) Open(ctx context.Context, maker Signer, args OpenArgs) (*Receipt, error) {
	tx, err := NewTransaction(maker, Instruction{
		Kind:    KindOpen,
		Seed:    args.Seed,
		Deposit: args.Deposit,
		Receive: args.Receive,
		MintA:   args.MintA,
		MintB:   args.MintB,
	})
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, tx)
}

// Cancel returns the vault to the maker and closes the escrow.
func (p *Program) Cancel(ctx context.Context, maker Signer, escrow pubkey.PublicKey) (*Receipt, error) {
	tx, err := NewTransaction(maker, Instruction{Kind: KindCancel, Escrow: escrow})
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, tx)
}

// Complete pays the maker Receive of MintB, hands the vault to the taker and
// closes the escrow.
func (p *Program) Complete(ctx context.Context, taker Signer, escrow pubkey.PublicKey) (*Receipt, error) {
	tx, err := NewTransaction(taker, Instruction{Kind: KindComplete, Escrow: escrow})
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, tx)
}

// Execute verifies and runs a signed transaction in one ledger transaction.
// A transaction id that already committed returns its original receipt with
// Replayed set and moves nothing.
func (p *Program) Execute(ctx context.Context, tx *Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrInvalidInstruction)
	}
	kind := string(tx.Instruction.Kind)
	start := time.Now()

	rcpt, err := p.execute(ctx, tx)
	if err != nil {
		metrics.EscrowFailures.WithLabelValues(kind, Reason(err)).Inc()
		p.log.Warn("Transaction rejected", "tx", tx.ID, "kind", kind, "signer", tx.Signer, "error", err)
		return nil, err
	}
	if rcpt.Replayed {
		metrics.EscrowReplays.Inc()
		p.log.Debug("Transaction replayed", "tx", tx.ID, "kind", kind)
		return rcpt, nil
	}

	metrics.EscrowTransitions.WithLabelValues(kind).Inc()
	metrics.EscrowDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	p.log.Info("Escrow "+eventVerb(rcpt.Kind), "escrow", rcpt.Escrow, "signer", rcpt.Signer, "amount", rcpt.Amount, "tx", rcpt.TxID)
	p.emitter.Emit(Event{Type: eventFor(rcpt.Kind), Receipt: rcpt})
	return rcpt, nil
}

func (p *Program) execute(ctx context.Context, tx *Transaction) (*Receipt, error) {
	if err := tx.Instruction.Validate(); err != nil {
		return nil, err
	}
	if err := tx.Verify(); err != nil {
		return nil, err
	}

	var rcpt *Receipt
	err := p.ledger.Update(ctx, []pubkey.PublicKey{tx.Signer}, func(lt *ledger.Tx) error {
		entry, ok, err := lt.JournalEntry(tx.ID.String())
		if err != nil {
			return err
		}
		if ok {
			rcpt, err = replay(tx, entry)
			return err
		}

		ins := &tx.Instruction
		switch ins.Kind {
		case KindOpen:
			rcpt, err = p.open(lt, tx.Signer, ins)
		case KindCancel:
			rcpt, err = p.cancel(lt, tx.Signer, ins.Escrow)
		case KindComplete:
			rcpt, err = p.complete(lt, tx.Signer, ins.Escrow)
		}
		if err != nil {
			return err
		}
		rcpt.TxID = tx.ID
		rcpt.Kind = ins.Kind
		rcpt.Signer = tx.Signer

		data, err := json.Marshal(rcpt)
		if err != nil {
			return fmt.Errorf("encode receipt: %w", err)
		}
		return lt.AppendJournal(&storage.JournalEntry{
			ID:      tx.ID.String(),
			Kind:    string(ins.Kind),
			Signer:  tx.Signer,
			Escrow:  rcpt.Escrow,
			Receipt: data,
		})
	})
	if err != nil {
		return nil, classify(err)
	}
	return rcpt, nil
}

// replay answers a transaction id that already committed. Reusing an id for
// a different transaction is rejected.
func replay(tx *Transaction, entry *storage.JournalEntry) (*Receipt, error) {
	if entry.Signer != tx.Signer || entry.Kind != string(tx.Instruction.Kind) {
		return nil, fmt.Errorf("%w: transaction id %s already used", ErrInvalidInstruction, tx.ID)
	}
	rcpt, err := decodeReceipt(entry)
	if err != nil {
		return nil, err
	}
	rcpt.Replayed = true
	return rcpt, nil
}

func decodeReceipt(entry *storage.JournalEntry) (*Receipt, error) {
	var rcpt Receipt
	if err := json.Unmarshal(entry.Receipt, &rcpt); err != nil {
		return nil, fmt.Errorf("decode journaled receipt %s: %w", entry.ID, err)
	}
	return &rcpt, nil
}

func (p *Program) open(lt *ledger.Tx, maker pubkey.PublicKey, ins *Instruction) (*Receipt, error) {
	addr, bump, err := DeriveRecord(p.id, maker, ins.Seed)
	if errors.Is(err, pubkey.ErrBumpSeedNotFound) {
		return nil, fmt.Errorf("%w: no record address for seed %d: %w", ErrAddressInUse, ins.Seed, err)
	}
	if err != nil {
		return nil, err
	}
	taken, err := lt.Exists(addr)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("%w: escrow %s (seed %d)", ErrAddressInUse, addr, ins.Seed)
	}
	for _, mint := range []pubkey.PublicKey{ins.MintA, ins.MintB} {
		if _, err := lt.Mint(mint); err != nil {
			return nil, fmt.Errorf("%w: mint %s: %w", ErrInvalidAccount, mint, err)
		}
	}

	have, err := lt.Balance(maker, ins.MintA)
	if err != nil {
		return nil, err
	}
	if have < ins.Deposit {
		return nil, fmt.Errorf("%w: maker holds %d of %s, deposit is %d", ErrInsufficientBalance, have, ins.MintA, ins.Deposit)
	}

	rec := &Escrow{
		Address: addr,
		Seed:    ins.Seed,
		Maker:   maker,
		MintA:   ins.MintA,
		MintB:   ins.MintB,
		Receive: ins.Receive,
		Bump:    bump,
	}
	payer := lt.Signer(maker)
	if _, err := lt.CreateAccount(payer, lt.ProgramSigner(p.id, rec.signerSeeds()...), p.id, config.EscrowAccountSize); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	data, err := rec.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := lt.WriteData(addr, lt.ProgramAuthority(p.id), data); err != nil {
		return nil, fmt.Errorf("write record: %w", err)
	}

	vault, err := lt.CreateAssociatedTokenAccount(payer, addr, ins.MintA)
	if err != nil {
		return nil, fmt.Errorf("create vault: %w", err)
	}
	if ins.Deposit > 0 {
		makerATA, _, err := ledger.AssociatedTokenAddress(lt.Programs(), maker, ins.MintA)
		if err != nil {
			return nil, err
		}
		if err := lt.Transfer(ins.MintA, makerATA, vault, ins.Deposit, payer); err != nil {
			return nil, fmt.Errorf("deposit: %w", err)
		}
	}

	return &Receipt{Escrow: addr, Vault: vault, Record: rec, Amount: ins.Deposit}, nil
}

func (p *Program) cancel(lt *ledger.Tx, signer, addr pubkey.PublicKey) (*Receipt, error) {
	rec, err := p.load(lt, addr)
	if err != nil {
		return nil, err
	}
	if signer != rec.Maker {
		return nil, fmt.Errorf("%w: %s is not the maker of %s", ErrUnauthorized, signer, addr)
	}
	vault, held, err := p.vault(lt, rec)
	if err != nil {
		return nil, err
	}

	makerATA, err := lt.EnsureAssociatedTokenAccount(lt.Signer(signer), rec.Maker, rec.MintA)
	if err != nil {
		return nil, fmt.Errorf("maker token account: %w", err)
	}
	if err := p.drain(lt, rec, vault, held, makerATA, rec.Maker); err != nil {
		return nil, err
	}
	return &Receipt{Escrow: addr, Vault: vault, Record: rec, Amount: held}, nil
}

func (p *Program) complete(lt *ledger.Tx, taker, addr pubkey.PublicKey) (*Receipt, error) {
	rec, err := p.load(lt, addr)
	if err != nil {
		return nil, err
	}
	vault, held, err := p.vault(lt, rec)
	if err != nil {
		return nil, err
	}

	have, err := lt.Balance(taker, rec.MintB)
	if err != nil {
		return nil, err
	}
	if have < rec.Receive {
		return nil, fmt.Errorf("%w: taker holds %d of %s, escrow asks %d", ErrInsufficientBalance, have, rec.MintB, rec.Receive)
	}

	payer := lt.Signer(taker)
	makerATA, err := lt.EnsureAssociatedTokenAccount(payer, rec.Maker, rec.MintB)
	if err != nil {
		return nil, fmt.Errorf("maker token account: %w", err)
	}
	if rec.Receive > 0 {
		takerATA, _, err := ledger.AssociatedTokenAddress(lt.Programs(), taker, rec.MintB)
		if err != nil {
			return nil, err
		}
		if err := lt.Transfer(rec.MintB, takerATA, makerATA, rec.Receive, payer); err != nil {
			return nil, fmt.Errorf("pay maker: %w", err)
		}
	}

	takerATA, err := lt.EnsureAssociatedTokenAccount(payer, taker, rec.MintA)
	if err != nil {
		return nil, fmt.Errorf("taker token account: %w", err)
	}
	if err := p.drain(lt, rec, vault, held, takerATA, taker); err != nil {
		return nil, err
	}
	return &Receipt{Escrow: addr, Vault: vault, Record: rec, Amount: held, Paid: rec.Receive}, nil
}

// drain empties the vault into to, closes it with its rent going to
// vaultRent, then closes the record with its rent going to the maker.
func (p *Program) drain(lt *ledger.Tx, rec *Escrow, vault pubkey.PublicKey, held uint64, to, vaultRent pubkey.PublicKey) error {
	auth := lt.ProgramSigner(p.id, rec.signerSeeds()...)
	if err := lt.Transfer(rec.MintA, vault, to, held, auth); err != nil {
		return fmt.Errorf("withdraw vault: %w", err)
	}
	if err := lt.CloseTokenAccount(vault, vaultRent, auth); err != nil {
		return fmt.Errorf("close vault: %w", err)
	}
	if err := lt.CloseAccount(rec.Address, rec.Maker, lt.ProgramAuthority(p.id)); err != nil {
		return fmt.Errorf("close record: %w", err)
	}
	return nil
}

// load reads and checks the record at addr. An address the program does not
// own holds no escrow.
func (p *Program) load(lt *ledger.Tx, addr pubkey.PublicKey) (*Escrow, error) {
	acct, err := lt.Account(addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	if err != nil {
		return nil, err
	}
	if acct.Owner != p.id {
		return nil, fmt.Errorf("%w: %s is not an escrow record", ErrNotFound, addr)
	}

	rec := &Escrow{Address: addr}
	if err := rec.UnmarshalBinary(acct.Data); err != nil {
		return nil, err
	}
	derived, err := pubkey.CreateProgramAddress(rec.signerSeeds(), p.id)
	if err != nil || derived != addr {
		return nil, fmt.Errorf("%w: %s does not derive from its maker and seed", ErrInvalidAccount, addr)
	}
	return rec, nil
}

// vault returns the derived vault of rec and its balance.
func (p *Program) vault(lt *ledger.Tx, rec *Escrow) (pubkey.PublicKey, uint64, error) {
	addr, _, err := ledger.AssociatedTokenAddress(lt.Programs(), rec.Address, rec.MintA)
	if err != nil {
		return pubkey.Zero, 0, err
	}
	ta, err := lt.TokenAccount(addr)
	if err != nil {
		return pubkey.Zero, 0, fmt.Errorf("%w: vault %s: %w", ErrInvalidAccount, addr, err)
	}
	return addr, ta.Amount, nil
}

func eventVerb(kind Kind) string {
	switch kind {
	case KindOpen:
		return "opened"
	case KindCancel:
		return "cancelled"
	default:
		return "completed"
	}
}
