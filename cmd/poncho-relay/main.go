// Poncho-relay — оркестратор чат-событий: маршрутизация по цепочкам узлов,
// ожидание ответа пользователя, лимиты и LLM диалог с управлением контекстом.
//
// Использование:
//
//	poncho-relay serve --config config.yaml
//	poncho-relay console --preset console
//	poncho-relay chains list
//	poncho-relay chains validate chains.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version заполняется при сборке через -ldflags.
var version = "dev"

var (
	configPath string
	presetName string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "poncho-relay",
	Short: "Chat event relay with chain routing and LLM conversations",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: search ./, binary dir, parents)")
	rootCmd.PersistentFlags().StringVar(&presetName, "preset", "", "config preset overlay (console, group-bot, debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override app.log_level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(chainsCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
