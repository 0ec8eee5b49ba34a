// Package ui renders the fieldsync terminal client.
//
// Model is a Bubble Tea model that mirrors the shared field from server
// messages (see Field) and turns key presses into client messages:
// arrow keys or WASD move, enter opens the chat prompt, n changes the
// nickname, q quits.
//
// Printer renders styled, non-interactive output such as the list of
// servers found by the discover command.
package ui
