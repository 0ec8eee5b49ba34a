// Package broadcast implements the in-process publish/subscribe bus that
// carries server messages to every connected session.
//
// A slow subscriber never slows down publishers or other subscribers: when
// its queue is full the oldest message it has not read is dropped and
// counted. Dropped messages are not reported as errors; clients converge on
// the next update for the same player.
package broadcast
