// Package wallet keeps per-session signing credentials in process memory.
// A session binds at most one key per chain family: an EVM key covers every
// EVM chain in the registry at once, a Solana key covers the Solana chain.
// Nothing in this package is ever written to durable storage and key material
// never appears in logs or API responses.
package wallet
