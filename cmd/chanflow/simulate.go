package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/aretw0/chanflow/pkg/adapters/memory"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/node"
	"github.com/aretw0/chanflow/pkg/observability"
	"github.com/aretw0/chanflow/pkg/transport"
	"github.com/aretw0/chanflow/pkg/xkeys"
	"github.com/spf13/cobra"
)

// simulationMultisig is the A-B channel; B and C use the zero address.
const simulationMultisig domain.Address = "0x00000000000000000000000000000000000000ab"

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run Setup, Install and Uninstall between in-process nodes",
	Long: `Creates three nodes A, B and C connected by an in-memory router. A and B
open a channel, install an app and uninstall it again; B then opens a second
channel with C. Every node checks the counterparty's signatures.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		levelName, _ := cmd.Flags().GetString("log-level")
		if levelName == "" {
			levelName = "warn"
		}
		logger, err := newLogger(levelName)
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return simulate(ctx, cmd.OutOrStdout(), logger)
	},
}

func init() {
	simulateCmd.Flags().Duration("timeout", 30*time.Second, "Deadline for the whole simulation")
	rootCmd.AddCommand(simulateCmd)
}

func simulate(ctx context.Context, out io.Writer, logger *slog.Logger) error {
	router := transport.NewRouter(transport.WithLogger(logger))
	hooks := observability.LoggingHooks(logger)

	nodes := make(map[string]*node.Node, 3)
	for _, name := range []string{"A", "B", "C"} {
		keys, _, err := xkeys.GenerateKeyring()
		if err != nil {
			return err
		}
		n, err := node.New(keys, domain.NetworkContext{}, memory.NewStore(), router,
			node.WithLogger(logger.With("node", name)),
			node.WithLifecycleHooks(hooks),
		)
		if err != nil {
			return err
		}
		router.Register(n.Xpub(), n)
		nodes[name] = n
		fmt.Fprintf(out, "node %s: %s\n", name, n.Xpub())
	}
	a, b, c := nodes["A"], nodes["B"], nodes["C"]

	ch, err := a.Setup(ctx, b.Xpub(), simulationMultisig)
	if err != nil {
		return fmt.Errorf("setup A-B: %w", err)
	}
	if err := router.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(out, "setup: channel %s owners %v\n", ch.MultisigAddress, ch.MultisigOwners)

	ch, app, err := a.Install(ctx, domain.InstallParams{
		RespondingXpub:            b.Xpub(),
		MultisigAddress:           simulationMultisig,
		InitiatorBalanceDecrement: big.NewInt(0),
		ResponderBalanceDecrement: big.NewInt(0),
		InitialState:              map[string]any{"counter": 0},
		Terms:                     domain.Terms{AssetType: domain.AssetETH, Limit: big.NewInt(0), Token: domain.AddressZero},
		AppInterface: domain.AppInterface{
			Addr:           domain.AddressZero,
			StateEncoding:  "tuple(uint256 counter)",
			ActionEncoding: "tuple(uint256 increment)",
		},
		DefaultTimeout: 10,
	})
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	if err := router.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(out, "install: app %s (seq %d), %d apps in channel\n", app.IdentityHash(), app.AppSeqNo, len(ch.AppInstances))

	ch, err = a.Uninstall(ctx, domain.UninstallParams{
		RespondingXpub:  b.Xpub(),
		MultisigAddress: simulationMultisig,
		AppIdentityHash: app.IdentityHash(),
	})
	if err != nil {
		return fmt.Errorf("uninstall: %w", err)
	}
	if err := router.Wait(); err != nil {
		return err
	}
	fb, err := ch.FreeBalanceFor(domain.AssetETH)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "uninstall: %d apps in channel, free balance version %d\n", len(ch.AppInstances), fb.VersionNumber)

	if _, err := b.Setup(ctx, c.Xpub(), domain.AddressZero); err != nil {
		return fmt.Errorf("setup B-C: %w", err)
	}
	if err := router.Wait(); err != nil {
		return err
	}
	channels, err := b.Channels(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "setup: node B holds %d channels\n", len(channels))

	if pending := router.Pending(); pending != 0 {
		return fmt.Errorf("%d runs still waiting on a reply", pending)
	}
	fmt.Fprintln(out, "simulation complete")
	return nil
}
