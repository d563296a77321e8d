package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/chanflow/pkg/xkeys"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new identity",
	Long:  `Generates a random seed, writes it hex-encoded to --out and prints the resulting xpub and owner address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		force, _ := cmd.Flags().GetBool("force")

		keys, seed, err := xkeys.GenerateKeyring()
		if err != nil {
			return err
		}
		flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		if force {
			flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		}
		f, err := os.OpenFile(out, flags, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create seed file: %w", err)
		}
		if _, err := fmt.Fprintln(f, hex.EncodeToString(seed)); err != nil {
			f.Close()
			return fmt.Errorf("failed to write seed file: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		return printIdentity(cmd, keys)
	},
}

var deriveCmd = &cobra.Command{
	Use:   "derive <xpub> [index]",
	Short: "Derive the address at an index of an xpub",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var index uint64
		if len(args) == 2 {
			var err error
			index, err = strconv.ParseUint(args[1], 10, 31)
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[1], err)
			}
		}
		addr, err := xkeys.KthAddress(args[0], uint32(index))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), addr)
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringP("out", "o", "chanflow.seed", "File to write the seed to")
	keygenCmd.Flags().Bool("force", false, "Overwrite an existing seed file")
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(deriveCmd)
}

// readKeyring loads the hex seed written by keygen.
func readKeyring(path string) (*xkeys.Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return xkeys.NewKeyring(seed)
}

func printIdentity(cmd *cobra.Command, keys *xkeys.Keyring) error {
	addr, err := keys.Address(0)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "xpub:    %s\naddress: %s\n", keys.Xpub(), addr)
	return nil
}
