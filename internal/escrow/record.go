package escrow

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/klingon-exchange/klingon-escrow/internal/config"
	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
)

// discriminator tags record data so arbitrary program-owned bytes are never
// mistaken for an escrow.
var discriminator = func() [8]byte {
	sum := sha256.Sum256([]byte("account:Escrow"))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}()

// Escrow is an open offer: Maker deposited some MintA into the vault and
// asks Receive units of MintB in exchange.
type Escrow struct {
	Address pubkey.PublicKey `json:"address"`
	Seed    uint64           `json:"seed"`
	Maker   pubkey.PublicKey `json:"maker"`
	MintA   pubkey.PublicKey `json:"mint_a"`
	MintB   pubkey.PublicKey `json:"mint_b"`
	Receive uint64           `json:"receive"`
	Bump    uint8            `json:"bump"`
}

// MarshalBinary encodes the record as stored in its account. Address is not
// part of the encoding.
func (e *Escrow) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, config.EscrowAccountSize)
	buf = append(buf, discriminator[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, e.Seed)
	buf = append(buf, e.Maker[:]...)
	buf = append(buf, e.MintA[:]...)
	buf = append(buf, e.MintB[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, e.Receive)
	buf = append(buf, e.Bump)
	return buf, nil
}

// UnmarshalBinary decodes account data written by MarshalBinary.
func (e *Escrow) UnmarshalBinary(data []byte) error {
	if len(data) < config.EscrowAccountSize {
		return fmt.Errorf("%w: record data is %d bytes", ErrInvalidAccount, len(data))
	}
	if !bytes.Equal(data[:8], discriminator[:]) {
		return fmt.Errorf("%w: not an escrow record", ErrInvalidAccount)
	}
	p := data[8:]
	e.Seed = binary.LittleEndian.Uint64(p)
	p = p[8:]
	copy(e.Maker[:], p)
	p = p[32:]
	copy(e.MintA[:], p)
	p = p[32:]
	copy(e.MintB[:], p)
	p = p[32:]
	e.Receive = binary.LittleEndian.Uint64(p)
	e.Bump = p[8]
	return nil
}

// signerSeeds are the seeds, bump included, that make the record address
// sign for its vault.
func (e *Escrow) signerSeeds() [][]byte {
	return [][]byte{[]byte(recordSeed), e.Maker.Bytes(), seedBytes(e.Seed), {e.Bump}}
}
