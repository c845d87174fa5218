// Package storage provides versioned persistence backends for serialized
// documents behind the interfaces.DocumentStorage contract: local filesystem,
// in-memory, S3-compatible object stores, IPFS, and PostgreSQL, plus a
// multi-backend aggregator with redundant writes. Backends are created from
// location URIs through the Factory.
//
// The integrity core computes digests over canonical bytes, so backends only
// guarantee byte fidelity. Linearization of concurrent updates is a backend
// capability: the memory and postgres backends reject two versions claiming
// the same predecessor with interfaces.ErrVersionConflict; the others accept
// writes as-is and leave conflict detection to chain validation on read.
package storage
