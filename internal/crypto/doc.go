// Package crypto is the per-user olm identity used by the account bootstrap.
//
// A Module wraps a goolm account (Curve25519 identity, Ed25519 signing key,
// one-time keys) and the olm sessions opened with peers. It is created fresh
// with New or rebuilt with Restore, and serialized with Persist into a
// store.OlmPersist whose blobs are standard olm pickles encrypted under the
// account secret. Restoring with a different secret fails with ErrWrongSecret.
//
// A Module is not safe for concurrent use. The account package confines it
// to the crypto worker.
package crypto
