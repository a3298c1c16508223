// Package ledger implements the asset ledger the escrow program runs against:
// native lamport balances, mints, token accounts, rent-backed account
// creation and closing, and signature or program-derived authorization.
//
// All primitives run on a Tx obtained from Update. A Tx either commits every
// write made through it or none of them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/klingon-exchange/klingon-escrow/internal/config"
	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
	"github.com/klingon-exchange/klingon-escrow/internal/storage"
	"github.com/klingon-exchange/klingon-escrow/pkg/logging"
)

// Ledger errors
var (
	ErrAccountNotFound   = errors.New("ledger: account not found")
	ErrAccountInUse      = errors.New("ledger: account already in use")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrOwnerMismatch     = errors.New("ledger: authority does not control account")
	ErrMissingSignature  = errors.New("ledger: missing required signature")
	ErrMintMismatch      = errors.New("ledger: mint mismatch")
	ErrNonZeroBalance    = errors.New("ledger: token account still holds a balance")
	ErrInvalidOwner      = errors.New("ledger: account has the wrong owner program")
	ErrOverflow          = errors.New("ledger: amount overflow")
)

// maxAmount is the largest balance the store can hold.
const maxAmount = math.MaxInt64

// Programs are the ids of the built-in programs.
type Programs struct {
	System          pubkey.PublicKey
	Token           pubkey.PublicKey
	AssociatedToken pubkey.PublicKey
}

// DefaultPrograms returns the well-known program ids.
func DefaultPrograms() Programs {
	return Programs{
		System:          pubkey.MustParse(config.SystemProgramID),
		Token:           pubkey.MustParse(config.TokenProgramID),
		AssociatedToken: pubkey.MustParse(config.AssociatedTokenProgramID),
	}
}

// Ledger wraps the account store with the ledger rules.
type Ledger struct {
	store    *storage.Storage
	rent     config.RentConfig
	programs Programs
	log      *logging.Logger
}

// Config holds ledger configuration.
type Config struct {
	Store *storage.Storage
	Rent  config.RentConfig
}

// New creates a ledger over store.
func New(cfg *Config) *Ledger {
	rent := cfg.Rent
	if rent.ExemptionThreshold == 0 {
		rent = config.DefaultRent()
	}
	return &Ledger{
		store:    cfg.Store,
		rent:     rent,
		programs: DefaultPrograms(),
		log:      logging.GetDefault().Component("ledger"),
	}
}

// Rent returns the rent schedule.
func (l *Ledger) Rent() config.RentConfig {
	return l.rent
}

// Programs returns the built-in program ids.
func (l *Ledger) Programs() Programs {
	return l.programs
}

// Update runs fn in one atomic ledger transaction. signers are the keys whose
// signatures the caller has already verified; only they can authorize moves
// out of user-controlled accounts.
func (l *Ledger) Update(ctx context.Context, signers []pubkey.PublicKey, fn func(*Tx) error) error {
	return l.store.Update(ctx, func(st *storage.Tx) error {
		return fn(l.newTx(st, signers))
	})
}

// View runs fn for reads only. No signer is present, so every authorized
// primitive fails.
func (l *Ledger) View(ctx context.Context, fn func(*Tx) error) error {
	return l.store.View(ctx, func(st *storage.Tx) error {
		return fn(l.newTx(st, nil))
	})
}

func (l *Ledger) newTx(st *storage.Tx, signers []pubkey.PublicKey) *Tx {
	set := make(map[pubkey.PublicKey]struct{}, len(signers))
	for _, s := range signers {
		set[s] = struct{}{}
	}
	return &Tx{st: st, l: l, signers: set}
}

// Tx is one atomic ledger transaction.
type Tx struct {
	st      *storage.Tx
	l       *Ledger
	signers map[pubkey.PublicKey]struct{}
}

// Rent returns the rent schedule.
func (t *Tx) Rent() config.RentConfig {
	return t.l.rent
}

// Programs returns the built-in program ids.
func (t *Tx) Programs() Programs {
	return t.l.programs
}

// notFound converts storage misses into ErrAccountNotFound.
func notFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
	}
	return err
}

func addChecked(a, b uint64) (uint64, error) {
	if b > maxAmount || a > maxAmount-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}
