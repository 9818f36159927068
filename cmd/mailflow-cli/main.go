// Mailflow CLI — инструмент командной строки для управления
// flows, шаблонами, контактами и списками через HTTP API.
//
// Использование:
//
//	mailflow [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	flow      Управление flows и подписками
//	template  Управление шаблонами писем
//	contact   Управление контактами
//	list      Управление списками рассылки
//	delivery  Журнал доставки
//	settings  Настройки выполнения
//	stats     Глобальная статистика
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Mailflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "mailflow",
		Short:         "Mailflow CLI — marketing automation tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewFlowCmd(clientFn, outputFn),
		cli.NewTemplateCmd(clientFn, outputFn),
		cli.NewContactCmd(clientFn, outputFn),
		cli.NewListCmd(clientFn, outputFn),
		cli.NewDeliveryCmd(clientFn, outputFn),
		cli.NewSettingsCmd(clientFn, outputFn),
		cli.NewStatsCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
