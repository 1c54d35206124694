// Package chain houses the static registry of supported networks. It exposes
// normalized chain lookups, token catalogues, and the metadata every other
// component relies on: RPC endpoints, explorer URLs, faucet URLs, and native
// currency parameters for testnets such as Sepolia, Base Sepolia, and Solana
// Devnet.
package chain
