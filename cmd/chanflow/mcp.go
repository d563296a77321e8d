package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/chanflow/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the node's operations as MCP tools on stdio",
	Long: `Starts the node like serve, and additionally exposes channel setup, app
install and uninstall as Model Context Protocol tools on stdin/stdout.
Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		p, err := startPeer(cfg, logger)
		if err != nil {
			return err
		}
		defer p.close()

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting node", "addr", p.server.Addr, "xpub", p.node.Xpub())
			serverErrors <- p.server.ListenAndServe()
		}()
		defer p.server.Close()

		tools := mcp.NewServer(p.node, mcp.WithLogger(logger))
		stdioErrors := make(chan error, 1)
		go func() {
			stdioErrors <- tools.ServeStdio()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case err := <-stdioErrors:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
