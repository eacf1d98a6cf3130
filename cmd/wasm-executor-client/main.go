package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-executor/config"
	"github.com/wippyai/wasm-executor/contracts"
	"github.com/wippyai/wasm-executor/ledger"
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
		Use:   "wasm-executor-client HOST:PORT",
		Short: "Run the token script against a remote executor",
		Long: `Connects to wasm-executor-server, then deploys the token contract as alice,
transfers to bob and queries totalSupply and bob's balance. State lives in a
local ledger that the server reaches through the connection.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := config.Bootstrap(v, configFile)
			if err != nil {
				return err
			}
			defer log.Sync()
			return run(cmd.Context(), args[0], cfg, log)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.Flags().StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	if err := config.RegisterFlags(v, cmd.Flags(),
		config.KeyLedgerPath,
		config.KeyLogLevel,
		config.KeyLogFormat,
	); err != nil {
		panic(err)
	}
	return cmd
}

func run(ctx context.Context, addr string, cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := ledger.Open(cfg.Ledger())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer l.Close()

	client, err := rpc.Dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()
	log.Info("connected", zap.String("addr", addr))

	steps, err := contracts.Script(ctx, client, l)
	for _, s := range steps {
		fmt.Printf("%-12s gas left %-10s contract %s\n", s.Name, s.Result.GasLeft.Dec(), s.Result.Contract.Hex())
		if len(s.Result.Data) > 0 && s.Name != "deploy" {
			fmt.Printf("%-12s result   0x%s\n", "", hex.EncodeToString(s.Result.Data))
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("\nCommitted %d blocks, %d receipts\n", len(l.Blocks()), len(l.Receipts()))
	return nil
}
