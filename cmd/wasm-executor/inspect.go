package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wippyai/wasm-executor/config"
	"github.com/wippyai/wasm-executor/contracts"
	"github.com/wippyai/wasm-executor/loader"
	"github.com/wippyai/wasm-executor/schedule"
	"github.com/wippyai/wasm-executor/wasm"
)

func newInspectCmd() *cobra.Command {
	v := viper.New()
	var builtin string
	cmd := &cobra.Command{
		Use:   "inspect [FILE.wasm]",
		Short: "Show a contract's imports, exports, memory and metered size",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, "")
			if err != nil {
				return err
			}

			var name string
			var code []byte
			switch {
			case len(args) == 1:
				name = args[0]
				if code, err = os.ReadFile(name); err != nil {
					return fmt.Errorf("read file: %w", err)
				}
			case builtin == "token":
				name, code = "token (deploy)", contracts.Token()
			case builtin == "token-runtime":
				name, code = "token (runtime)", contracts.Runtime()
			default:
				return fmt.Errorf("need a file or --builtin token|token-runtime")
			}
			return inspect(name, code, schedule.Default().WithMaxMemoryPages(cfg.MaxMemoryPages))
		},
	}
	cmd.Flags().StringVar(&builtin, "builtin", "", "inspect a built-in contract: token or token-runtime")
	if err := config.RegisterFlags(v, cmd.Flags(), config.KeyMaxMemoryPages); err != nil {
		panic(err)
	}
	return cmd
}

func kindName(k byte) string {
	switch k {
	case wasm.KindFunc:
		return "func"
	case wasm.KindTable:
		return "table"
	case wasm.KindMemory:
		return "memory"
	case wasm.KindGlobal:
		return "global"
	}
	return fmt.Sprintf("kind(%d)", k)
}

func inspect(name string, code []byte, sched *schedule.Schedule) error {
	m, err := wasm.ParseModule(code)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	fmt.Printf("Module: %s\n", name)
	fmt.Printf("Size: %d bytes\n", len(code))
	fmt.Printf("Functions: %d defined, %d imported\n", len(m.Funcs), m.ImportedFuncCount())

	fmt.Printf("\nImports:\n")
	for _, imp := range m.Imports {
		fmt.Printf("  %s.%s (%s)\n", imp.Module, imp.Name, kindName(imp.Kind))
	}
	fmt.Printf("\nExports:\n")
	for _, exp := range m.Exports {
		fmt.Printf("  %s (%s %d)\n", exp.Name, kindName(exp.Kind), exp.Index)
	}
	for _, mem := range m.Memories {
		if mem.HasMax {
			fmt.Printf("\nMemory: %d..%d pages\n", mem.Min, mem.Max)
		} else {
			fmt.Printf("\nMemory: %d pages, no maximum\n", mem.Min)
		}
	}
	if m.Start != nil {
		fmt.Printf("Start function: %d\n", *m.Start)
	}

	loaded, err := loader.Load(code, sched)
	if err != nil {
		fmt.Printf("\nRejected: %v\n", err)
		return nil
	}
	fmt.Printf("\nMetered size: %d bytes\n", len(loaded.Code))
	fmt.Printf("Initial pages: %d (cap %d)\n", loaded.InitialPages, loaded.MaxPages)
	fmt.Printf("Code hash: %s\n", loaded.Hash.Hex())
	fmt.Printf("Initial memory gas: %d\n", uint64(loaded.InitialPages)*uint64(sched.Wasm.InitialMem))
	return nil
}
