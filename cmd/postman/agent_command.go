// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/luxfi/postman/internal/agent"
)

func newAgentCommand(ctx *commandContext) *cobra.Command {
	var endpoint, transport, bridgeAddr string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Attach as an endpoint, serve ping/echo and expose the JSON-RPC bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ac := cfg.Agent
			if endpoint != "" {
				ac.Endpoint = endpoint
			}
			if transport != "" {
				ac.Transport = transport
			}
			if bridgeAddr != "" {
				ac.BridgeAddr = bridgeAddr
			}
			if ac.Endpoint == "" {
				return fmt.Errorf("agent endpoint is required (agent.endpoint or --endpoint)")
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := agent.New(runCtx, ac, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(runCtx)
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Endpoint name to attach as (overrides agent.endpoint)")
	cmd.Flags().StringVar(&transport, "transport", "", "Transport URI (overrides agent.transport)")
	cmd.Flags().StringVar(&bridgeAddr, "bridge", "", "Bridge listen address (overrides agent.bridge_addr)")
	return cmd
}
