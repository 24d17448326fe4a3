package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ivanoskov/expense_bot/internal/app"
	"github.com/ivanoskov/expense_bot/internal/config"
	"github.com/ivanoskov/expense_bot/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "expense-bot",
		Short: "Telegram-бот для учета расходов",
		Long: `expense-bot записывает расходы из сообщений и фото чеков в Supabase
и показывает итоги по месяцам и категориям.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnv()
		},
	}

	root.AddCommand(newServeCmd(), newPollCmd(), newSetWebhookCmd(), newSetCommandsCmd())
	return root
}

// build загружает конфигурацию и собирает приложение
func build(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, opts)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Принимать обновления через webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			return server.Run(ctx, a.Config.Server.Addr, a.Router(), a.Config.ShutdownTimeout(), a.Logger)
		},
	}
}

func newPollCmd() *cobra.Command {
	var inMemory bool

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Получать обновления через long polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, app.Options{InMemory: inMemory})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Bot.DeleteWebhook(); err != nil {
				return err
			}
			return a.Bot.Start(ctx)
		},
	}

	cmd.Flags().BoolVar(&inMemory, "memory", false, "Хранить расходы в памяти вместо Supabase")
	return cmd
}

func newSetWebhookCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "set-webhook",
		Short: "Зарегистрировать адрес webhook в Telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), app.Options{InMemory: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Bot.SetWebhook(url, a.Config.Telegram.WebhookSecret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Webhook set to %s\n", url)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Публичный адрес эндпоинта /webhook")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newSetCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-commands",
		Short: "Опубликовать список команд в меню Telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), app.Options{InMemory: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Bot.SetCommands(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Commands published")
			return nil
		},
	}
}
