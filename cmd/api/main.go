package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version задаётся при сборке: -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	configPath := envOr("CONFIG_PATH", "config/config.yaml")

	serve := func(cmd *cobra.Command, args []string) error {
		return run(configPath)
	}

	root := &cobra.Command{
		Use:          "keyserver",
		Short:        "Сервер пула API-ключей",
		SilenceUsage: true,
		RunE:         serve,
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "Путь к файлу конфигурации (env CONFIG_PATH)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP сервер (по умолчанию)",
		RunE:  serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
