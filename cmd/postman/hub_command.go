// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luxfi/postman"
)

func newHubCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Run the gRPC relay endpoints attach to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Hub.Addr
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("hub listen: %w", err)
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			hub := postman.NewHub(lis, postman.WithHubLogger(logger))
			return hub.Serve(runCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides hub.addr)")
	return cmd
}
