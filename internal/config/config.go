// Package config provides centralized configuration for the escrow daemon.
// Program ids, account sizes and rent parameters are defined here so that
// no other package hardcodes them.
package config

// =============================================================================
// Program Identifiers
// =============================================================================

// Well-known program ids (base58).
const (
	// DefaultEscrowProgramID is the address the escrow program runs under
	// unless the config file overrides it.
	DefaultEscrowProgramID = "HwpaZvifoU61b59fxa2Mo1YRLYuWUtn1spZ9XKs5QD5Z"

	// SystemProgramID owns plain wallets.
	SystemProgramID = "11111111111111111111111111111111"

	// TokenProgramID owns mints and token accounts.
	TokenProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"

	// AssociatedTokenProgramID namespaces associated token account derivation.
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// =============================================================================
// Account Sizes
// =============================================================================

// Account sizes in bytes, used for rent.
const (
	MintAccountSize  = 82
	TokenAccountSize = 165

	// EscrowAccountSize is the 8-byte type discriminator plus
	// seed(8) maker(32) mint_a(32) mint_b(32) receive(8) bump(1).
	EscrowAccountSize = 8 + 8 + 32 + 32 + 32 + 8 + 1
)

// =============================================================================
// Rent
// =============================================================================

// RentConfig holds the maintenance deposit schedule.
type RentConfig struct {
	// LamportsPerByteYear is the rent rate.
	LamportsPerByteYear uint64 `yaml:"lamports_per_byte_year"`

	// ExemptionThreshold is how many years of rent an account must hold.
	ExemptionThreshold uint64 `yaml:"exemption_threshold"`
}

// AccountStorageOverhead is charged on top of every account's data size.
const AccountStorageOverhead = 128

// DefaultRent mirrors the mainnet rent schedule.
func DefaultRent() RentConfig {
	return RentConfig{
		LamportsPerByteYear: 3480,
		ExemptionThreshold:  2,
	}
}

// MinimumBalance returns the deposit an account of size space must hold.
func (r RentConfig) MinimumBalance(space int) uint64 {
	return uint64(space+AccountStorageOverhead) * r.LamportsPerByteYear * r.ExemptionThreshold
}

// =============================================================================
// Faucet
// =============================================================================

// Faucet defaults.
const (
	DefaultAirdropLimit = 10_000_000_000 // 10 SOL in lamports
	DefaultKeystoreFile = "faucet.json"
)
