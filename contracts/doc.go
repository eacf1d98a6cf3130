// Package contracts assembles the reference token contract used by the
// command-line tools and end-to-end tests.
//
// The contract keeps balances in storage slots made of 12 zero bytes and the
// holder address, and the total supply in TotalSupplyKey. Amounts are 32-byte
// big-endian words. Token() is the deploy code: it credits the constructor
// argument to the deployer and returns Runtime() as the code to store.
package contracts
