package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpadapter "github.com/aradsms/smsbridge/internal/inbound_processor_service/adapters/http"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/app"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/provider"
	"github.com/aradsms/smsbridge/internal/platform/config"
	"github.com/aradsms/smsbridge/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "smsbridge",
		Short:         "Operate the SMS bridge: send messages and prepare webhook credentials",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SMSBRIDGE_CONFIG"), "path to config file")

	root.AddCommand(newSendCmd(&configPath), newWebhookIDCmd(), newTokenCmd(&configPath), newSanitizeCmd())
	return root
}

func newSendCmd(configPath *string) *cobra.Command {
	var req app.SendRequest
	cmd := &cobra.Command{
		Use:   "send <instance>",
		Short: "Send an SMS through a configured instance (by id or name)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, "text")

			sender := app.NewSender(app.StaticInstances(cfg.Instances), func(ic domain.InstanceConfig) app.SMSClient {
				return provider.NewMobileMessageClient(log, cfg.Provider.MobileMessageBaseURL, ic.APIUsername, ic.APIPassword, cfg.Provider.Timeout, nil)
			}, log)

			res, err := sender.Send(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&req.To, "to", "", "recipient phone number")
	cmd.Flags().StringVar(&req.Message, "message", "", "message text (max 765 characters)")
	cmd.Flags().StringVar(&req.Sender, "sender", "", "sender id (defaults to the instance default_sender)")
	cmd.Flags().StringVar(&req.CustomRef, "ref", "", "custom reference echoed by the provider")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func newWebhookIDCmd() *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "webhook-id",
		Short: "Generate a webhook id and shared secret for a new instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := app.GenerateWebhookID()
			if err != nil {
				return err
			}
			secret, err := app.GenerateSecret(32)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "webhook_id: %s\n", id)
			fmt.Fprintf(out, "webhook_secret: %s\n", secret)
			if baseURL != "" {
				fmt.Fprintf(out, "webhook_url: %s%s\n", strings.TrimRight(baseURL, "/"), app.WebhookPath(id))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "public base URL used to print the full webhook URL")
	return cmd
}

func newTokenCmd(configPath *string) *cobra.Command {
	var (
		subject   string
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the instance API, signed with http.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.HTTP.JWTSecret == "" {
				return errors.New("http.jwt_secret is not configured")
			}
			if expiresIn <= 0 {
				expiresIn = cfg.HTTP.JWTTokenExpiry
			}
			token, expiresAt, err := httpadapter.GenerateAPIToken(subject, cfg.HTTP.JWTSecret, expiresIn, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "token: %s\n", token)
			fmt.Fprintf(out, "expires_at: %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "operator name recorded in API logs")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "token lifetime (defaults to http.jwt_token_expiry)")
	return cmd
}

func newSanitizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize <text>",
		Short: "Show how an inbound body is sanitized before storage",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), app.Sanitize(strings.Join(args, " ")))
			return nil
		},
	}
}
