// Package registry holds the authoritative set of joined players.
//
// The Registry is shared by every session and injected where it is needed.
// It is split into shards keyed by an FNV-1a hash of the player id, each
// guarded by its own RWMutex, so sessions moving different players never
// contend on a single lock.
//
// The registry only stores state. Deriving and publishing the matching
// PlayerJoined, PlayerMoved and PlayerLeft events is the caller's job.
package registry
