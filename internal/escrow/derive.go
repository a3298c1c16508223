package escrow

import (
	"encoding/binary"

	"github.com/klingon-exchange/klingon-escrow/internal/ledger"
	"github.com/klingon-exchange/klingon-escrow/internal/pubkey"
)

const recordSeed = "escrow"

func seedBytes(seed uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, seed)
}

// DeriveRecord returns the record address of maker's offer number seed under
// program. ErrBumpSeedNotFound means the pair has no valid address and the
// maker must pick another seed.
func DeriveRecord(program, maker pubkey.PublicKey, seed uint64) (pubkey.PublicKey, uint8, error) {
	return pubkey.FindProgramAddress([][]byte{[]byte(recordSeed), maker.Bytes(), seedBytes(seed)}, program)
}

// DeriveHolding returns the vault of a record: the associated token account
// of mintA whose wallet is the record address.
func DeriveHolding(record, mintA pubkey.PublicKey) (pubkey.PublicKey, error) {
	addr, _, err := ledger.AssociatedTokenAddress(ledger.DefaultPrograms(), record, mintA)
	return addr, err
}
