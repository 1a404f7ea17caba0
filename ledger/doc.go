// Package ledger implements the ObscuraMint state machine: a series registry
// with bounded supply, a single-owner access controller and a confidential
// field store holding one encrypted address handle per series.
//
// All mutations run under one mutex, so the ledger has a global serial order.
// Each mutation is assigned the next block number and a transaction hash,
// builds a Changeset, commits it to a StateStore and only then applies it to
// memory. A failed validation or commit leaves the ledger unchanged.
//
// Two StateStore implementations are provided: MemoryStore for tests and
// ephemeral nodes, and BadgerStore which persists state under the
// OBSCURA:* key prefixes with msgpack-encoded records.
package ledger
