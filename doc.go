/*
Package chanflow is an off-chain execution engine for two-party state channels.

Participants, identified by BIP32 extended public keys, run short declarative
handshakes (Setup, Install, Uninstall) that end with both of them holding the
same next channel state and a commitment signed by both owners.

# Concept

A protocol is a flow: for each role, an ordered list of steps. Steps are either
pure transforms over the run's context, or primitive operations the host
implements (sign, send, send-and-wait, persist). The Machine interprets flows
and never performs I/O itself, so it can be embedded behind any transport and
any store.

Runs are copy-on-write. A run works on a staged copy of the caller's channel
map and returns it only once the final persist step succeeds; a failing step
leaves the caller's map untouched.

# Usage

	m, err := chanflow.New(network)
	if err != nil {
		log.Fatal(err)
	}
	m.Register(domain.OpSign, registry.SignHandler(func(ctx context.Context, c domain.Commitment, i uint32) (domain.Signature, error) {
		return keys.Sign(c, i, false)
	}))
	m.Register(domain.OpSend, registry.SendHandler(router.Send))
	m.Register(domain.OpSendAndWait, registry.SendAndWaitHandler(router.SendAndWait))
	m.Register(domain.OpPersist, registry.PersistHandler(persist))

	channels, err := m.RunSetup(ctx, domain.SetupParams{
		InitiatingXpub:  me,
		RespondingXpub:  peer,
		MultisigAddress: multisig,
	}, channels)

Responders hand every inbound proposal to RunWithMessage. The pkg/node package
wires all of this together for a single participant.
*/
package chanflow
