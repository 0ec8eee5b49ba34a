// Package session runs the per-connection duplex pump.
//
// A Session owns one upgraded connection and moves through the states
// Connecting, AwaitingJoin, Active, Closing and Closed. Two goroutines run
// in an errgroup scope:
//
//   - inbound reads client frames, decodes them and applies Join, Move, Chat
//     and ChangeNick against the shared registry, publishing the resulting
//     events on the broadcast bus
//   - outbound waits until the client has joined, then relays every message
//     from the session's bus subscription to the client
//
// When either loop ends the scope is cancelled, the transport is closed to
// unblock the other loop, and after both have returned the player is removed
// from the registry exactly once. PlayerLeft is published only if the removal
// actually deleted an entry.
//
// Welcome and Error are written directly to the client and never go through
// the bus. ChangeNick updates the registry without any broadcast.
package session
