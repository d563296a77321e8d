package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/chanflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of chanflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chanflow version %s\n", strings.TrimSpace(chanflow.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
