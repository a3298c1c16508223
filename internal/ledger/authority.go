package ledger

import (
	"fmt"

	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
)

// Authority is a key proven to have approved the current transaction, either
// by signature or by program derivation. Zero value authorizes nothing.
type Authority struct {
	key pubkey.PublicKey
	err error
}

// Key returns the key the authority speaks for.
func (a Authority) Key() pubkey.PublicKey {
	return a.key
}

// Err returns why the authority is unusable, or nil.
func (a Authority) Err() error {
	return a.err
}

// Signer returns the authority of a transaction signer. It carries
// ErrMissingSignature if key did not sign.
func (t *Tx) Signer(key pubkey.PublicKey) Authority {
	if _, ok := t.signers[key]; !ok {
		return Authority{key: key, err: fmt.Errorf("%w: %s", ErrMissingSignature, key)}
	}
	return Authority{key: key}
}

// ProgramSigner returns the authority of the address program derives from
// seeds (bump included). Only code running as program knows which seeds to
// pass, which is what keeps derived accounts out of reach of user keys.
func (t *Tx) ProgramSigner(program pubkey.PublicKey, seeds ...[]byte) Authority {
	key, err := pubkey.CreateProgramAddress(seeds, program)
	if err != nil {
		return Authority{err: fmt.Errorf("derive program signer: %w", err)}
	}
	return Authority{key: key}
}

// ProgramAuthority is the authority of a program over the accounts it owns.
func (t *Tx) ProgramAuthority(program pubkey.PublicKey) Authority {
	return Authority{key: program}
}

// require checks that auth is usable and speaks for want.
func require(auth Authority, want pubkey.PublicKey) error {
	if auth.err != nil {
		return auth.err
	}
	if auth.key.IsZero() || auth.key != want {
		return fmt.Errorf("%w: want %s, got %s", ErrOwnerMismatch, want, auth.key)
	}
	return nil
}
