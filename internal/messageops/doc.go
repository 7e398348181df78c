// Package messageops defines the message store operations a caller can batch
// together and applies a batch atomically.
//
// The operation kinds are a closed set:
//
//	remove                       {"ids": [...]}
//	remove_messages_for_threads  {"threadIDs": [...]}
//	replace                      {"id", "local_id", "thread", "user", "type",
//	                              "future_type", "content", "time", "media_infos"}
//	rekey                        {"from", "to"}
//
// Decode turns the JSON wire form into a Batch. Decoding happens before any
// transaction exists, so an unsupported kind or malformed payload rejects the
// whole batch without touching the store.
//
// ApplyBatch runs the batch inside one transaction. Operations apply in
// order, later ones observing earlier ones, and the batch commits only if
// every operation succeeds.
package messageops
