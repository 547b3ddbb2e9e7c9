// Fleet CLI — операторская утилита для job'ов, устройств и workflow.
//
// Использование:
//
//	fleet [--config-file FILE] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	job       Постановка, просмотр и отмена job'ов
//	device    Состояние устройств и снятие карантина
//	node      Heartbeat воркеров
//	workflow  Проверка и список workflow
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Fleet/internal/cli"
	"github.com/shaiso/Fleet/internal/config"
	"github.com/shaiso/Fleet/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool
	var backend *cli.Connections

	rootCmd := &cobra.Command{
		Use:           "fleet",
		Short:         "Fleet CLI — device fleet workflow tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			logger := telemetry.NewLogger(os.Stderr, cfg.LogLevel, "text")
			backend = cli.NewConnections(cfg, logger)
			return nil
		},
	}

	config.SetupFlags(rootCmd.PersistentFlags())
	// CLI пишет логи только о проблемах
	logLevel := rootCmd.PersistentFlags().Lookup("log-level")
	logLevel.DefValue = "warn"
	_ = logLevel.Value.Set("warn")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	backendFn := func() cli.Backend { return backend }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewJobCmd(backendFn, outputFn),
		cli.NewDeviceCmd(backendFn, outputFn),
		cli.NewNodeCmd(backendFn, outputFn),
		cli.NewWorkflowCmd(backendFn, outputFn),
	)

	err := rootCmd.Execute()
	if backend != nil {
		if closeErr := backend.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
