package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gotftp/gotftp/internal/config"
	"github.com/gotftp/gotftp/internal/telemetry"
	"github.com/gotftp/gotftp/pkg/tftpclient"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())

		var ee exitError
		if e, ok := err.(exitError); ok {
			ee = e

			return ee.code
		}

		return 1
	}

	return 0
}

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func newRootCmd() *cobra.Command {
	defaults := config.ClientDefaults()

	cmd := &cobra.Command{
		Use:           "tftp",
		Short:         "TFTP client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			return repl(c)
		},
	}

	cmd.PersistentFlags().String("log-level", defaults.LogLevel, "debug, info, warn, or error")
	cmd.PersistentFlags().Duration("timeout", defaults.Timeout, "per-packet retransmission timeout")
	cmd.PersistentFlags().Uint16("blksize", defaults.Blksize, "requested block size")
	cmd.PersistentFlags().String("root", defaults.Root, "local directory for transfers, defaults to $HOME/tftp")

	cmd.AddCommand(newGetCmd(), newPutCmd())

	return cmd
}

func repl(cmd *cobra.Command) error {
	cfg, err := config.LoadClientConfig(cmd.Flags())
	if err != nil {
		return exitError{code: 2, err: fmt.Errorf("tftp: config: %w", err)}
	}

	log := telemetry.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	root, err := resolveRoot(cfg.Root)
	if err != nil {
		return exitError{code: 2, err: err}
	}

	client := tftpclient.NewClient(log, root)
	client.SetTimeout(uint(cfg.Timeout.Seconds()))
	client.SetBlksize(cfg.Blksize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tftpclient.NewCli(log, client).Read(ctx)

	return nil
}

// resolveRoot returns root unchanged unless empty, in which case it
// falls back to $HOME/tftp, creating it if missing.
func resolveRoot(root string) (string, error) {
	if root != "" {
		return root, nil
	}

	return config.DefaultClientRoot()
}

// newGetCmd and newPutCmd implement the one-shot non-interactive mode:
// tftp get host:port remote [local] [--blksize N] [--timeout S]
// tftp put host:port local [remote] [--blksize N] [--timeout S]
func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get host:port remote [local]",
		Short: "download a file in one shot",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, args, false)
		},
	}
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put host:port local [remote]",
		Short: "upload a file in one shot",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return oneShot(cmd, args, true)
		},
	}
}

func oneShot(cmd *cobra.Command, args []string, isPut bool) error {
	cfg, err := config.LoadClientConfig(cmd.Flags())
	if err != nil {
		return exitError{code: 2, err: fmt.Errorf("tftp: config: %w", err)}
	}

	log := telemetry.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	root, err := resolveRoot(cfg.Root)
	if err != nil {
		return exitError{code: 2, err: err}
	}

	addr, primary := args[0], args[1]

	secondary := primary
	if len(args) == 3 {
		secondary = args[2]
	}

	client := tftpclient.NewClient(log, root)
	client.SetTimeout(uint(cfg.Timeout.Seconds()))
	client.SetBlksize(cfg.Blksize)

	if err := client.Connect(addr); err != nil {
		return exitError{code: 1, err: err}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if isPut {
		// put host:port local [remote]
		local, remote := primary, secondary
		if err := client.PutAs(ctx, local, remote); err != nil {
			return exitError{code: 1, err: fmt.Errorf("tftp: put %s: %w", local, err)}
		}
	} else {
		// get host:port remote [local]
		remote, local := primary, secondary
		if err := client.GetAs(ctx, remote, local); err != nil {
			return exitError{code: 1, err: fmt.Errorf("tftp: get %s: %w", remote, err)}
		}
	}

	return nil
}
