/*
Package session serializes access to channels.

Protocol runs on the same multisig must not interleave: each run reads the
channel, agrees on the next state with the counterparty and writes it back. The
Manager hands out one lock per multisig address, reference counted so idle
locks are reclaimed, and optionally backed by a distributed locker when several
replicas of a node share one store.
*/
package session
