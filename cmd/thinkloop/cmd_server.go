package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexcodex/thinkloop/agents"
	"github.com/lexcodex/thinkloop/server"
	"github.com/lexcodex/thinkloop/tui"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := openRuntime()
			if err != nil {
				return err
			}
			defer cleanup()
			if strings.TrimSpace(addr) == "" {
				addr = rt.Config.Server.Addr
			}
			api := &server.APIServer{Runtime: rt, Logger: slog.Default().With("component", "api")}
			cmd.Printf("Starting API server on %s using model %s\n", addr, rt.ModelID)
			return ignoreCanceled(api.ServeContext(cmd.Context(), addr))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", os.Getenv("THINKLOOP_ADDR"), "Listen address (default from the config file)")
	return cmd
}

func newRPCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rpc",
		Short: "Serve JSON-RPC 2.0 (ask, tools.list, reset) on stdin and stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, cleanup, err := openRuntime()
			if err != nil {
				return err
			}
			defer cleanup()
			// stdout carries the protocol, so logs go to stderr.
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)).With("component", "rpc")
			srv := server.NewRPCServer(rt, logger)
			return ignoreCanceled(srv.ServeStdio(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout()))
		},
	}
}

func newTUICmd() *cobra.Command {
	var modeName string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Full-screen chat with live agent steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := agents.ParseMode(modeName)
			if err != nil {
				return err
			}
			rt, cleanup, err := openRuntime()
			if err != nil {
				return err
			}
			defer cleanup()
			return ignoreCanceled(tui.Run(cmd.Context(), rt, mode))
		},
	}
	cmd.Flags().StringVarP(&modeName, "mode", "m", string(agents.ModeTool), "Agent mode ("+strings.Join(agents.ModeNames(), ", ")+")")
	return cmd
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
