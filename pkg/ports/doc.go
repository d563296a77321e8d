/*
Package ports defines the driven ports (interfaces) for the chanflow host.

These interfaces decouple the protocol engine from external implementations,
so a node can run against any message transport and any storage backend.

# Key Interfaces

  - Transport: Delivers protocol messages between participants.
  - MessageReceiver: Accepts inbound messages on behalf of a participant.
  - ChannelStore: Persists the agreed channel state.
  - DistributedLocker: Serializes protocol runs on the same channel across replicas.
*/
package ports
