package types

// Native program addresses the host harness needs to know about.
// These are the same across Solana mainnet and X1.
var (
	// SystemProgramAddr is the System Program address. Accounts the host
	// has never seen are materialized as empty accounts owned by it.
	SystemProgramAddr = MustPubkeyFromBase58("11111111111111111111111111111111")
)
