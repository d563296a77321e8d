/*
Package domain contains the core data model of the channel machine.

It defines the channel state the protocols agree on, the messages exchanged
between counterparties, and the primitive operation tags the executor dispatches
to the host. This package is kept pure: no I/O, no signing, no transport.

# Key Entities

  - StateChannel: one multisig shared by exactly two owners, with its app instances.
  - AppInstance: an off-chain app installed in a channel, including the reserved free balance.
  - Commitment: an unsigned, immutable proposal reducible to a digest.
  - ProtocolMessage: the wire record exchanged between participants.
  - Opcode: a side-effecting capability supplied by the host (sign, send, persist).
*/
package domain
