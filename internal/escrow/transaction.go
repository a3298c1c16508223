package escrow

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
)

// Kind names an escrow transition.
type Kind string

const (
	KindOpen     Kind = "open"
	KindCancel   Kind = "cancel"
	KindComplete Kind = "complete"
)

// Signer signs transactions. *pubkey.Keypair satisfies it.
type Signer interface {
	PublicKey() pubkey.PublicKey
	Sign(message []byte) []byte
}

// Instruction is the body of a transaction. Open uses the seed, amount and
// mint fields; Cancel and Complete use Escrow only.
type Instruction struct {
	Kind    Kind             `json:"kind"`
	Escrow  pubkey.PublicKey `json:"escrow"`
	Seed    uint64           `json:"seed"`
	Deposit uint64           `json:"deposit"`
	Receive uint64           `json:"receive"`
	MintA   pubkey.PublicKey `json:"mint_a"`
	MintB   pubkey.PublicKey `json:"mint_b"`
}

// Validate checks that the instruction is well formed.
func (ins *Instruction) Validate() error {
	switch ins.Kind {
	case KindOpen:
		if ins.MintA.IsZero() || ins.MintB.IsZero() {
			return fmt.Errorf("%w: open needs both mints", ErrInvalidInstruction)
		}
	case KindCancel, KindComplete:
		if ins.Escrow.IsZero() {
			return fmt.Errorf("%w: %s needs an escrow address", ErrInvalidInstruction, ins.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInstruction, ins.Kind)
	}
	return nil
}

// Transaction is a signed instruction. ID doubles as the idempotency key: a
// transaction id that already committed is never executed again.
type Transaction struct {
	ID          uuid.UUID        `json:"id"`
	Signer      pubkey.PublicKey `json:"signer"`
	Instruction Instruction      `json:"instruction"`
	Signature   []byte           `json:"signature"`
}

// NewTransaction builds and signs a transaction with a fresh id.
func NewTransaction(signer Signer, ins Instruction) (*Transaction, error) {
	tx := &Transaction{
		ID:          uuid.New(),
		Signer:      signer.PublicKey(),
		Instruction: ins,
	}
	if err := tx.Sign(signer); err != nil {
		return nil, err
	}
	return tx, nil
}

// Message returns the bytes covered by the signature.
func (tx *Transaction) Message() ([]byte, error) {
	return json.Marshal(struct {
		ID          uuid.UUID        `json:"id"`
		Signer      pubkey.PublicKey `json:"signer"`
		Instruction Instruction      `json:"instruction"`
	}{tx.ID, tx.Signer, tx.Instruction})
}

// Sign sets Signature. signer must match Signer.
func (tx *Transaction) Sign(signer Signer) error {
	if signer.PublicKey() != tx.Signer {
		return fmt.Errorf("%w: signer %s does not match %s", ErrUnauthorized, signer.PublicKey(), tx.Signer)
	}
	msg, err := tx.Message()
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	tx.Signature = signer.Sign(msg)
	return nil
}

// Verify checks the signature over the message.
func (tx *Transaction) Verify() error {
	msg, err := tx.Message()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstruction, err)
	}
	if !pubkey.Verify(tx.Signer, msg, tx.Signature) {
		return fmt.Errorf("%w: bad signature from %s", ErrUnauthorized, tx.Signer)
	}
	return nil
}

// Receipt describes a committed transition.
type Receipt struct {
	TxID   uuid.UUID        `json:"tx_id"`
	Kind   Kind             `json:"kind"`
	Signer pubkey.PublicKey `json:"signer"`
	Escrow pubkey.PublicKey `json:"escrow"`
	Vault  pubkey.PublicKey `json:"vault"`
	Record *Escrow          `json:"record"`

	// Amount of MintA that entered (open) or left (cancel, complete) the vault.
	Amount uint64 `json:"amount"`
	// Paid is the MintB amount the taker paid on complete.
	Paid uint64 `json:"paid,omitempty"`

	Replayed bool `json:"replayed,omitempty"`
}
