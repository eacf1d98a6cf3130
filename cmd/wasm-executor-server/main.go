package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-executor/config"
	"github.com/wippyai/wasm-executor/executor"
	"github.com/wippyai/wasm-executor/rpc"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "wasm-executor-server [HOST:PORT]",
		Short: "Serve contract execution over RPC",
		Long: `Listens for executor clients. Each client connection is multiplexed;
the client supplies the state provider for every transaction it submits.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Set(config.KeyListen, args[0])
			}
			cfg, log, err := config.Bootstrap(v, configFile)
			if err != nil {
				return err
			}
			defer log.Sync()
			return serve(cmd.Context(), cfg, log)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.Flags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	if err := config.RegisterFlags(v, cmd.Flags(),
		config.KeyListen,
		config.KeyMaxMemoryPages,
		config.KeyExecutionTimeout,
		config.KeyModuleCacheSize,
		config.KeyLogLevel,
		config.KeyLogFormat,
	); err != nil {
		panic(err)
	}
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	x, err := executor.New(ctx, cfg.Executor())
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}
	defer x.Close(context.Background())

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("serving",
		zap.Stringer("addr", ln.Addr()),
		zap.Uint32("max_memory_pages", cfg.MaxMemoryPages),
		zap.Duration("execution_timeout", cfg.ExecutionTimeout),
	)

	if err := rpc.NewServer(x, cfg.Server()).Serve(ctx, ln); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
