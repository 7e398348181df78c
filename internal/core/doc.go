// Package core is the public operation surface of comm-core.
//
// A Module owns one worker per subsystem and routes every call to the right
// one: drafts, messages and batches to storage, account bootstrap and key
// export to crypto, relay client setup to network. Each call returns a
// *bridge.Promise that settles on the caller's Invoker, never on a worker.
//
//	loop := bridge.NewLoop()
//	m, err := core.New(core.Deps{Store: st, SecureStore: ss, Invoker: loop}, core.Options{})
//	...
//	keys, err := bridge.Await(ctx, loop, m.GetUserPublicKey())
//
// Payloads for ProcessMessageStoreOperations are decoded on the caller before
// anything is scheduled, so unsupported or malformed batches reject without
// opening a transaction. Classify maps any rejection to an ErrorKind.
package core
