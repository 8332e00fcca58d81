// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luxfi/postman"
)

func newCallCommand(ctx *commandContext) *cobra.Command {
	var bridge, payload string
	var timeout time.Duration
	var notify bool

	cmd := &cobra.Command{
		Use:   "call <endpoint> <name>",
		Short: "Emit a request through an agent's bridge and print the response",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bridge == "" {
				bridge = "http://" + cfg.Agent.BridgeAddr
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			bc, err := postman.NewBridgeClient(bridge, postman.WithBridgeLogger(logger))
			if err != nil {
				return err
			}

			var body any
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &body); err != nil {
					return fmt.Errorf("payload is not JSON: %w", err)
				}
			}

			callCtx, cancel := context.WithTimeout(cmd.Context(), timeout+5*time.Second)
			defer cancel()

			endpoint, name := postman.Endpoint(args[0]), args[1]
			if notify {
				if err := bc.Notify(callCtx, endpoint, name, body); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "sent")
				return nil
			}

			var reply any
			if err := bc.Emit(callCtx, endpoint, name, body, &reply, timeout); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reply)
		},
	}
	cmd.Flags().StringVar(&bridge, "bridge", "", "Bridge URL (defaults to http://agent.bridge_addr)")
	cmd.Flags().StringVarP(&payload, "data", "d", "", "JSON payload")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Call timeout")
	cmd.Flags().BoolVar(&notify, "notify", false, "Send without waiting for a response")
	return cmd
}
