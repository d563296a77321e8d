package commitment

import (
	"fmt"
	"slices"

	"github.com/aretw0/chanflow/pkg/domain"
)

// BuildSetup returns the setup commitment for a freshly created channel.
func BuildSetup(network domain.NetworkContext, ch *domain.StateChannel) (Setup, error) {
	fb, err := ch.FreeBalanceFor(domain.AssetETH)
	if err != nil {
		return Setup{}, err
	}
	return Setup{
		Network:     network,
		Multisig:    ch.MultisigAddress,
		Owners:      slices.Clone(ch.MultisigOwners),
		FreeBalance: snapshot(fb),
	}, nil
}

// BuildInstall returns the install commitment for appID, which must already be
// present in ch.
func BuildInstall(network domain.NetworkContext, ch *domain.StateChannel, appID domain.Digest) (Install, error) {
	app, ok := ch.App(appID)
	if !ok {
		return Install{}, fmt.Errorf("%w: %s", domain.ErrAppNotFound, appID)
	}
	fb, err := ch.FreeBalanceFor(app.Terms.AssetType)
	if err != nil {
		return Install{}, err
	}
	return Install{
		Network:         network,
		Multisig:        ch.MultisigAddress,
		Owners:          slices.Clone(ch.MultisigOwners),
		FreeBalance:     snapshot(fb),
		AppIdentityHash: appID,
		AppTermsHash:    app.Terms.Hash(),
		AppSeqNo:        app.AppSeqNo,
	}, nil
}

// BuildUninstall returns the uninstall commitment for removed, which must no
// longer be present in ch.
func BuildUninstall(network domain.NetworkContext, ch *domain.StateChannel, removed domain.AppInstance) (Uninstall, error) {
	id := removed.IdentityHash()
	if _, ok := ch.App(id); ok {
		return Uninstall{}, fmt.Errorf("app %s is still installed", id)
	}
	fb, err := ch.FreeBalanceFor(removed.Terms.AssetType)
	if err != nil {
		return Uninstall{}, err
	}
	return Uninstall{
		Network:                network,
		Multisig:               ch.MultisigAddress,
		Owners:                 slices.Clone(ch.MultisigOwners),
		FreeBalance:            snapshot(fb),
		RemovedAppIdentityHash: id,
		RemovedAppSeqNo:        removed.AppSeqNo,
	}, nil
}
