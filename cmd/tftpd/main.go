package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gotftp/gotftp/internal/config"
	"github.com/gotftp/gotftp/internal/telemetry"
	"github.com/gotftp/gotftp/pkg/tftpengine"
	"github.com/gotftp/gotftp/pkg/tftpserver"
	"github.com/gotftp/gotftp/pkg/tftpstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		return exitCodeFor(err)
	}

	return 0
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tftpd",
		Short:         "TFTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			return serve(c)
		},
	}

	defaults := config.ServerDefaults()

	flags := cmd.Flags()
	flags.String("listen", defaults.Listen, "rendezvous address to listen on")
	flags.String("root", defaults.Root, "local directory or s3://bucket/prefix to serve")
	flags.Uint16("max-blksize", defaults.MaxBlksize, "maximum negotiable block size")
	flags.Duration("timeout", defaults.Timeout, "per-packet retransmission timeout")
	flags.Int("retries", defaults.Retries, "retransmissions before giving up on an unresponsive peer")
	flags.Bool("allow-overwrite", defaults.AllowOverwrite, "allow WRQ to overwrite an existing file")
	flags.String("log-level", defaults.LogLevel, "debug, info, warn, or error")
	flags.String("metrics-addr", defaults.MetricsAddr, "address to serve Prometheus /metrics on, empty to disable")
	flags.Bool("reuse-port", defaults.ReusePort, "set SO_REUSEPORT on the rendezvous socket")

	return cmd
}

func serve(cmd *cobra.Command) error {
	cfg, err := config.LoadServerConfig(cmd.Flags())
	if err != nil {
		return exitError{code: 2, err: fmt.Errorf("tftpd: config: %w", err)}
	}

	log := telemetry.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	store, err := openStore(cfg)
	if err != nil {
		return exitError{code: 2, err: fmt.Errorf("tftpd: root %q: %w", cfg.Root, err)}
	}

	reg := prometheus.NewRegistry()
	metrics := tftpserver.NewMetrics(reg)

	srv := tftpserver.New(tftpserver.Config{
		ListenAddr: cfg.Listen,
		ReusePort:  cfg.ReusePort,
		Engine: tftpengine.Config{
			MaxBlocksize: cfg.MaxBlksize,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.Retries,
		},
	}, store, log, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsSrv *telemetry.MetricsServer
	if cfg.MetricsAddr != "" {
		metricsSrv = telemetry.NewMetricsServer(cfg.MetricsAddr, reg, log)

		go func() {
			if err := metricsSrv.Serve(); err != nil {
				log.Errorf("metrics server: %s", err.Error())
			}
		}()

		log.Infof("serving metrics on %s", cfg.MetricsAddr)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(ctx) }()

	log.Infof("listening on %s", cfg.Listen)

	select {
	case err := <-serveErr:
		if err != nil {
			return exitError{code: 1, err: fmt.Errorf("tftpd: %w", err)}
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	if err := <-serveErr; err != nil {
		return exitError{code: 1, err: fmt.Errorf("tftpd: %w", err)}
	}

	return nil
}

func openStore(cfg config.ServerConfig) (tftpstore.Store, error) {
	if strings.HasPrefix(cfg.Root, "s3://") {
		return openS3Store(cfg.Root)
	}

	return tftpstore.NewFSStore(afero.NewOsFs(), cfg.Root, cfg.AllowOverwrite), nil
}

func openS3Store(root string) (tftpstore.Store, error) {
	rest := strings.TrimPrefix(root, "s3://")
	bucket, prefix, _ := strings.Cut(rest, "/")

	client, err := tftpstore.NewS3ClientFromConfig(context.Background(), tftpstore.S3ClientConfig{})
	if err != nil {
		return nil, fmt.Errorf("build s3 client: %w", err)
	}

	return tftpstore.NewS3Store(client, bucket, prefix), nil
}

// exitError carries a process exit code alongside the error, per the
// exit-code convention in the CLI surface spec: 0 success, 1 transfer
// failure, 2 startup/config error.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func exitCodeFor(err error) int {
	var ee exitError
	if e, ok := err.(exitError); ok {
		ee = e

		fmt.Fprintln(os.Stderr, ee.err.Error())

		return ee.code
	}

	fmt.Fprintln(os.Stderr, err.Error())

	return 1
}
