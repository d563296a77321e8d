// Package protocol declares the Setup, Install and Uninstall handshakes as
// flows the executor interprets.
//
// Every two-party protocol has the same shape. The initiator (role 0) proposes,
// signs, sends and waits for the countersignature. The responder (role 1)
// recomputes the same proposal from the received params, checks the
// initiator's signature, countersigns and replies. Only the propose transform
// differs between protocols.
package protocol

import (
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/flow"
)

const (
	RoleInitiator = 0
	RoleResponder = 1
)

func twoParty(propose flow.Transform) flow.Flow {
	return flow.Flow{
		RoleInitiator: {
			flow.Do("propose", propose),
			flow.Op(domain.OpSign),
			flow.Do("wrap_proposal", wrapProposal),
			flow.Op(domain.OpSendAndWait),
			flow.Do("require_single_reply", requireSingleReply),
			flow.Do("validate_counterparty_signature", validateCounterpartySignature),
			flow.Do("finalize", finalize),
			flow.Op(domain.OpPersist),
		},
		RoleResponder: {
			flow.Do("propose", propose),
			flow.Do("validate_counterparty_signature", validateCounterpartySignature),
			flow.Op(domain.OpSign),
			flow.Do("wrap_reply", wrapReply),
			flow.Op(domain.OpSend),
			flow.Do("finalize", finalize),
			flow.Op(domain.OpPersist),
		},
	}
}

// Setup opens a channel.
func Setup() flow.Flow { return twoParty(proposeSetup) }

// Install installs an app funded from the free balance.
func Install() flow.Flow { return twoParty(proposeInstall) }

// Uninstall removes an app and credits the free balance.
func Uninstall() flow.Flow { return twoParty(proposeUninstall) }

// Flows returns every built-in protocol keyed by name.
func Flows() map[domain.Protocol]flow.Flow {
	return map[domain.Protocol]flow.Flow{
		domain.ProtocolSetup:     Setup(),
		domain.ProtocolInstall:   Install(),
		domain.ProtocolUninstall: Uninstall(),
	}
}
