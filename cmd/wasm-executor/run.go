package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wippyai/wasm-executor/config"
	"github.com/wippyai/wasm-executor/contracts"
	"github.com/wippyai/wasm-executor/executor"
	"github.com/wippyai/wasm-executor/ledger"
	"github.com/wippyai/wasm-executor/types"
)

type runOptions struct {
	configFile string
	from       string
	gas        uint64
	args       string
	call       []string
}

func newRunCmd() *cobra.Command {
	v := viper.New()
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [FILE.wasm]",
		Short: "Run the token script, or deploy and call a contract file",
		Long: `Without a file, runs the built-in token script in-process: deploy as alice,
transfer to bob, totalSupply, balanceOf bob.

With a file, deploys it from --from with constructor --args, then performs one
call per --call with the given hex arguments. Every transaction is committed
to the ledger as its own block.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := config.Bootstrap(v, opts.configFile)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			x, err := executor.New(ctx, cfg.Executor())
			if err != nil {
				return fmt.Errorf("create executor: %w", err)
			}
			defer x.Close(context.Background())

			l, err := ledger.Open(cfg.Ledger())
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer l.Close()

			if len(args) == 0 {
				steps, err := contracts.Script(ctx, x, l)
				printSteps(steps)
				return err
			}
			return runFile(ctx, x, l, args[0], &opts)
		},
	}
	cmd.Flags().StringVar(&opts.configFile, "config", "", "config file (yaml, toml or json)")
	cmd.Flags().StringVar(&opts.from, "from", "alice", "sender alias")
	cmd.Flags().Uint64Var(&opts.gas, "gas", contracts.ScriptGas, "gas per transaction")
	cmd.Flags().StringVar(&opts.args, "args", "", "constructor arguments as hex")
	cmd.Flags().StringArrayVar(&opts.call, "call", nil, "call arguments as hex, repeatable")
	if err := config.RegisterFlags(v, cmd.Flags(),
		config.KeyMaxMemoryPages,
		config.KeyModuleCacheSize,
		config.KeyLedgerPath,
		config.KeyLogLevel,
		config.KeyLogFormat,
	); err != nil {
		panic(err)
	}
	return cmd
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func runFile(ctx context.Context, x *executor.Executor, l *ledger.Ledger, path string, opts *runOptions) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	ctorArgs, err := decodeHex(opts.args)
	if err != nil {
		return fmt.Errorf("--args: %w", err)
	}

	sender := ledger.AddressFromAlias(opts.from)
	gas := types.NewU256(opts.gas)
	zero := types.NewU256(0)

	var steps []contracts.Step
	defer func() { printSteps(steps) }()

	apply := func(name string, tx *types.Transaction) (*types.ResultData, error) {
		res, err := x.Execute(ctx, tx, l)
		if err != nil {
			l.Rollback()
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		l.IncNonce(sender)
		if _, err := l.AddTransaction(tx, res); err != nil {
			return nil, err
		}
		if err := l.Commit(); err != nil {
			return nil, err
		}
		steps = append(steps, contracts.Step{Name: name, Tx: tx, Result: res})
		return res, nil
	}

	deployed, err := apply("deploy", types.NewCreate(sender, zero, gas, zero, code, ctorArgs, types.H256{}))
	if err != nil {
		return err
	}
	for i, c := range opts.call {
		callArgs, err := decodeHex(c)
		if err != nil {
			return fmt.Errorf("--call %d: %w", i, err)
		}
		if _, err := apply(fmt.Sprintf("call#%d", i), types.NewCall(sender, deployed.Contract, zero, gas, zero, callArgs)); err != nil {
			return err
		}
	}
	return nil
}

func printSteps(steps []contracts.Step) {
	for _, s := range steps {
		res := s.Result
		fmt.Printf("%-12s gas left %-10s contract %s\n", s.Name, res.GasLeft.Dec(), res.Contract.Hex())
		if len(res.Data) > 0 && s.Name != "deploy" {
			fmt.Printf("%-12s result   0x%s\n", "", hex.EncodeToString(res.Data))
		}
		for _, log := range res.Logs {
			topics := make([]string, len(log.Topics))
			for i, t := range log.Topics {
				topics[i] = t.Hex()
			}
			fmt.Printf("%-12s log      %s [%s] 0x%s\n", "", log.Address.Hex(), strings.Join(topics, ", "), hex.EncodeToString(log.Data))
		}
	}
}
