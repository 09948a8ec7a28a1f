package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xaenox/chat-gateway/internal/server"
	"github.com/xaenox/chat-gateway/internal/telegram"
	"go.uber.org/zap"
)

func newSetWebhookCmd(configPath *string) *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "set-webhook",
		Short: "Register the webhook URL with Telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if baseURL != "" {
				cfg.Telegram.WebhookURL = baseURL
			}
			webhookURL := cfg.WebhookURL(server.WebhookPath(cfg.Telegram.Token))
			if webhookURL == "" {
				return errors.New("no webhook URL: set TELEGRAM_WEBHOOK_URL or pass --url")
			}

			tg, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.APITimeout, logger)
			if err != nil {
				return err
			}
			if err := tg.SetWebhook(webhookURL); err != nil {
				logger.Error("Failed to set webhook", zap.Error(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Webhook registered")
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "Public base URL; overrides telegram.webhook_url.")
	return cmd
}

func newWebhookInfoCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "webhook-info",
		Short: "Print the webhook status reported by Telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			tg, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.APITimeout, logger)
			if err != nil {
				return err
			}
			info, err := tg.WebhookInfo()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}
